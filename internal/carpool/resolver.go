package carpool

import (
	"context"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/logger"
)

// Resolver implements the cross-DB peer lookup. Mega-carpool failures
// degrade to primary-only results.
type Resolver struct {
	store Store
	mega  MegaStore
}

// NewResolver creates a new peer resolver. mega may be nil when the
// federation database is not configured.
func NewResolver(store Store, mega MegaStore) *Resolver {
	return &Resolver{store: store, mega: mega}
}

// GetSameGroupUsers returns the distinct users sharing an active group with
// the given user, expanded across the enterprise federation.
func (r *Resolver) GetSameGroupUsers(ctx context.Context, userID int64) ([]int64, error) {
	groups, err := r.store.ActiveGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	groupIDs := make([]int64, 0, len(groups))
	var enterpriseIDs []int64
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
		if g.EnterpriseID != nil {
			enterpriseIDs = append(enterpriseIDs, *g.EnterpriseID)
		}
	}

	peerEnterprises := r.expandEnterprises(ctx, userID, enterpriseIDs)
	if len(peerEnterprises) > 0 {
		enterpriseGroups, err := r.store.GroupIDsByEnterprise(ctx, peerEnterprises)
		if err != nil {
			return nil, err
		}
		groupIDs = unionIDs(groupIDs, enterpriseGroups)
	}

	members, err := r.store.GroupMemberIDs(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// expandEnterprises resolves the mega clusters, falling back to the input
// set when the secondary database is unreachable.
func (r *Resolver) expandEnterprises(ctx context.Context, userID int64, enterpriseIDs []int64) []int64 {
	if len(enterpriseIDs) == 0 || r.mega == nil {
		return enterpriseIDs
	}

	peers, err := r.mega.PeerEnterprises(ctx, enterpriseIDs)
	if err != nil {
		logger.Get().Warn("mega-carpool lookup failed, degraded to primary-only peers",
			zap.Int64("user_id", userID), zap.Error(err))
		return enterpriseIDs
	}
	return unionIDs(enterpriseIDs, peers)
}

func unionIDs(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
