package bytemark

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/internal/notification"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// Notifier dispatches push notifications for newly granted free tickets.
type Notifier interface {
	Send(ctx context.Context, req *notification.SendRequest) ([]int64, error)
}

// Service maintains the per-user Bytemark ticket cache.
type Service struct {
	store    Store
	client   UpstreamClient
	notifier Notifier
	maxAge   time.Duration
	now      func() time.Time
}

// NewService creates a new ticket cache service. notifier may be nil.
func NewService(store Store, client UpstreamClient, notifier Notifier, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = 60 * time.Minute
	}
	return &Service{
		store:    store,
		client:   client,
		notifier: notifier,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// BuildTicketCache creates the user's cache when absent. Existing caches are
// left untouched.
func (s *Service) BuildTicketCache(ctx context.Context, userID int64) error {
	cache, err := s.store.GetCache(ctx, userID)
	if err != nil {
		return err
	}
	if cache != nil {
		return nil
	}
	return s.refresh(ctx, userID, nil)
}

// CheckTicketCache dispatches to build or incremental update.
func (s *Service) CheckTicketCache(ctx context.Context, userID int64) error {
	cache, err := s.store.GetCache(ctx, userID)
	if err != nil {
		return err
	}
	return s.refresh(ctx, userID, cache)
}

// UpdateTicketCache refreshes incrementally against the given cache. A nil
// cache is loaded first.
func (s *Service) UpdateTicketCache(ctx context.Context, userID int64, cache *TicketsCache) error {
	if cache == nil {
		var err error
		cache, err = s.store.GetCache(ctx, userID)
		if err != nil {
			return err
		}
	}
	return s.refresh(ctx, userID, cache)
}

// CheckTicketCacheTimeout refreshes only when the cache is older than the
// configured max age (60 minutes by default).
func (s *Service) CheckTicketCacheTimeout(ctx context.Context, userID int64) error {
	cache, err := s.store.GetCache(ctx, userID)
	if err != nil {
		return err
	}
	if cache == nil {
		return s.refresh(ctx, userID, nil)
	}
	if cache.Age(s.now()) < s.maxAge {
		return nil
	}
	return s.refresh(ctx, userID, cache)
}

// BuildCacheIfEmpty bootstraps the cache for every user with an OAuth token
// when no cache documents exist yet. Per-user failures are isolated.
func (s *Service) BuildCacheIfEmpty(ctx context.Context) error {
	count, err := s.store.CountCaches(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	users, err := s.store.UsersWithOAuthToken(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		if err := s.BuildTicketCache(ctx, userID); err != nil {
			logger.Get().Warn("ticket cache bootstrap failed for user",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	logger.Get().Info("ticket cache bootstrap complete", zap.Int("users", len(users)))
	return nil
}

// Tickets refreshes and returns the user's pass cache.
func (s *Service) Tickets(ctx context.Context, userID int64) (*TicketsCache, error) {
	if err := s.CheckTicketCache(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.GetCache(ctx, userID)
}

// RefreshStaleCaches sweeps every user with an OAuth token and refreshes the
// caches past their max age. Per-user failures are isolated.
func (s *Service) RefreshStaleCaches(ctx context.Context) error {
	users, err := s.store.UsersWithOAuthToken(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		if err := s.CheckTicketCacheTimeout(ctx, userID); err != nil {
			logger.Get().Warn("ticket cache refresh failed for user",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// refresh implements the fetch-hash-merge protocol. existing may be nil for
// an initial build.
func (s *Service) refresh(ctx context.Context, userID int64, existing *TicketsCache) error {
	token, err := s.store.OAuthToken(ctx, userID)
	if errors.Is(err, ErrNoOAuthToken) {
		return nil
	}
	if err != nil {
		return err
	}

	passesV1, err := s.client.GetPasses(ctx, token)
	if err != nil {
		logger.Get().Error("bytemark v1 pass fetch failed",
			zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	// A v4 failure still updates passes; passes4 keeps its previous data.
	passesV4, v4Err := s.client.GetExpiredPasses(ctx, token)
	if v4Err != nil {
		logger.Get().Warn("bytemark v4 pass fetch failed, retaining previous data",
			zap.Int64("user_id", userID), zap.Error(v4Err))
	}

	now := s.now()
	nowUnix := now.Unix()

	var oldPasses, oldPasses4 []PassEntry
	if existing != nil {
		oldPasses = existing.Passes
		oldPasses4 = existing.Passes4
	}

	newPasses := s.buildEntries(passesV1, oldPasses, nowUnix)

	newPasses4 := oldPasses4
	if v4Err == nil {
		newPasses4 = mergeEntries(passesV4, oldPasses4, nowUnix)
	}

	cache := &TicketsCache{
		UserID:    userID,
		Timestamp: nowUnix,
		Passes:    newPasses,
		Passes4:   newPasses4,
	}

	if err := s.writeLogs(ctx, userID, cache, nowUnix); err != nil {
		logger.Get().Warn("ticket cache log write failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.store.UpsertCache(ctx, cache); err != nil {
		return err
	}

	s.notifyFreeTickets(ctx, userID, oldPasses, newPasses)
	return nil
}

// buildEntries converts the v1 list into a full replacement, flagging free
// tickets and carrying existing flags forward.
func (s *Service) buildEntries(passes []UpstreamPass, old []PassEntry, nowUnix int64) []PassEntry {
	flagged := make(map[string]bool, len(old))
	for _, e := range old {
		if e.FreeTicketStatus == 1 {
			flagged[e.PassUUID] = true
		}
	}

	entries := make([]PassEntry, 0, len(passes))
	for _, p := range passes {
		e := PassEntry{
			PassUUID:    p.PassUUID,
			Timestamp:   nowUnix,
			Status:      p.Status,
			Payload:     string(p.Raw),
			PayloadHash: HashPayload(p.Raw),
		}
		if flagged[p.PassUUID] || p.IsFreeTicketProduct() {
			e.FreeTicketStatus = 1
		}
		entries = append(entries, e)
	}
	return entries
}

// mergeEntries applies the v4 entry-wise merge: entries with an unchanged
// payload hash keep their existing timestamp.
func mergeEntries(passes []UpstreamPass, old []PassEntry, nowUnix int64) []PassEntry {
	existing := make(map[string]PassEntry, len(old))
	for _, e := range old {
		existing[e.PassUUID] = e
	}

	entries := make([]PassEntry, 0, len(passes))
	for _, p := range passes {
		hash := HashPayload(p.Raw)
		if prev, ok := existing[p.PassUUID]; ok && prev.PayloadHash == hash {
			entries = append(entries, prev)
			continue
		}

		e := PassEntry{
			PassUUID:    p.PassUUID,
			Timestamp:   nowUnix,
			Status:      p.Status,
			Payload:     string(p.Raw),
			PayloadHash: hash,
		}
		if prev, ok := existing[p.PassUUID]; ok && prev.FreeTicketStatus == 1 {
			e.FreeTicketStatus = 1
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *Service) writeLogs(ctx context.Context, userID int64, cache *TicketsCache, nowUnix int64) error {
	if err := s.store.InsertRefreshLog(ctx, &RefreshLog{UserID: userID, Timestamp: nowUnix}); err != nil {
		return err
	}

	logs := make([]TicketLog, 0, len(cache.Passes)+len(cache.Passes4))
	for _, e := range append(append([]PassEntry{}, cache.Passes...), cache.Passes4...) {
		logs = append(logs, TicketLog{
			UserID:      userID,
			PassUUID:    e.PassUUID,
			Status:      e.Status,
			PayloadHash: e.PayloadHash,
			Timestamp:   nowUnix,
		})
	}
	return s.store.InsertTicketLogs(ctx, logs)
}

// notifyFreeTickets pushes a free-ticket notification for passes that gained
// the flag in this refresh.
func (s *Service) notifyFreeTickets(ctx context.Context, userID int64, old, current []PassEntry) {
	if s.notifier == nil {
		return
	}

	wasFlagged := make(map[string]bool, len(old))
	for _, e := range old {
		if e.FreeTicketStatus == 1 {
			wasFlagged[e.PassUUID] = true
		}
	}

	for _, e := range current {
		if e.FreeTicketStatus != 1 || wasFlagged[e.PassUUID] {
			continue
		}
		_, err := s.notifier.Send(ctx, &notification.SendRequest{
			Users: []int64{userID},
			Type:  notification.TypeFreeTicket,
			Title: "Free ticket added",
			Body:  "A free transit ticket has been added to your account.",
			Meta:  map[string]interface{}{"pass_uuid": e.PassUUID},
		})
		if err != nil {
			logger.Get().Warn("free ticket notification failed",
				zap.Int64("user_id", userID),
				zap.String("pass_uuid", e.PassUUID),
				zap.Error(err),
			)
		}
	}
}
