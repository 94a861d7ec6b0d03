package carpool

import (
	"context"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/logger"
)

// Service cleans up carpool relations after group membership changes.
type Service struct {
	store    Store
	resolver *Resolver
}

// NewService creates a new carpool relation service
func NewService(store Store, resolver *Resolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// ProcessCarpoolRelationForGroup runs after a user leaves a group or a group
// is disabled. A nil userID means whole-group teardown. The operation is
// idempotent: a second run with no intervening change is a no-op.
func (s *Service) ProcessCarpoolRelationForGroup(ctx context.Context, groupID int64, userID *int64) error {
	affected, err := s.affectedUsers(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if len(affected) == 0 {
		return nil
	}

	peerSets := make(map[int64]map[int64]bool, len(affected))
	for _, uid := range affected {
		peers, err := s.resolver.GetSameGroupUsers(ctx, uid)
		if err != nil {
			return err
		}
		set := make(map[int64]bool, len(peers))
		for _, p := range peers {
			set[p] = true
		}
		peerSets[uid] = set
	}

	touched := make(map[int64]bool)

	if err := s.cleanupInvitations(ctx, affected, peerSets, touched); err != nil {
		return err
	}
	if err := s.cleanupMatches(ctx, affected, peerSets, touched); err != nil {
		return err
	}
	return s.recomputeStatistics(ctx, touched)
}

func (s *Service) affectedUsers(ctx context.Context, groupID int64, userID *int64) ([]int64, error) {
	if userID != nil {
		return []int64{*userID}, nil
	}
	return s.store.GroupMemberIDs(ctx, []int64{groupID})
}

// cleanupInvitations deletes in-flight invitation edges whose two sides are
// no longer peers.
func (s *Service) cleanupInvitations(ctx context.Context, affected []int64, peerSets map[int64]map[int64]bool, touched map[int64]bool) error {
	edges, err := s.store.SearchingInvitationEdges(ctx, affected)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if s.stillPeers(peerSets, edge.InviterUserID, edge.InvitedUserID) {
			continue
		}

		if err := s.store.DeleteInvitationEdge(ctx, edge.EdgeID); err != nil {
			return err
		}
		touched[edge.InviterReservationID] = true
		touched[edge.InvitedReservationID] = true

		remaining, err := s.store.CountInvitations(ctx, edge.InvitedReservationID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			logger.Get().Debug("no other invite so remove",
				zap.Int64("reservation_id", edge.InvitedReservationID))
		}
	}
	return nil
}

// cleanupMatches deletes match statistics between users who are no longer
// peers.
func (s *Service) cleanupMatches(ctx context.Context, affected []int64, peerSets map[int64]map[int64]bool, touched map[int64]bool) error {
	pairs, err := s.store.MatchPairs(ctx, affected)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if s.stillPeers(peerSets, pair.UserID, pair.MatchUserID) {
			continue
		}

		if err := s.store.DeleteMatchStatistic(ctx, pair.ID); err != nil {
			return err
		}
		logger.Get().Info("removed stale match",
			zap.Int64("reservation_id", pair.ReservationID),
			zap.Int64("match_reservation_id", pair.MatchReservationID),
		)
		touched[pair.ReservationID] = true
		touched[pair.MatchReservationID] = true
	}
	return nil
}

// stillPeers checks peer membership from whichever side is an affected user.
// An edge where neither side was affected is out of scope and kept.
func (s *Service) stillPeers(peerSets map[int64]map[int64]bool, a, b int64) bool {
	if set, ok := peerSets[a]; ok {
		return set[b]
	}
	if set, ok := peerSets[b]; ok {
		return set[a]
	}
	return true
}

// recomputeStatistics refreshes the aggregates for every touched reservation
// from the surviving rows.
func (s *Service) recomputeStatistics(ctx context.Context, touched map[int64]bool) error {
	for reservationID := range touched {
		sent, received, matches, err := s.store.ReservationCounts(ctx, reservationID)
		if err != nil {
			return err
		}
		err = s.store.UpsertReservationMatch(ctx, &ReservationMatch{
			ReservationID:  reservationID,
			InviteSent:     sent,
			InviteReceived: received,
			Matches:        matches,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
