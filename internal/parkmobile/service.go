package parkmobile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/internal/notification"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// Notifier enqueues the meter-expiry push notifications.
type Notifier interface {
	Send(ctx context.Context, req *notification.SendRequest) ([]int64, error)
}

// Service runs the parking event state machine jobs.
type Service struct {
	store    Store
	tokens   TokenClient
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new parking monitor service
func NewService(store Store, tokens TokenClient, notifier Notifier) *Service {
	return &Service{store: store, tokens: tokens, notifier: notifier, now: time.Now}
}

// CheckOnGoingEvents alerts users whose meter expires within the look-ahead
// window. Rows move to ALERTED only when their notification was enqueued.
func (s *Service) CheckOnGoingEvents(ctx context.Context) error {
	now := s.now()
	events, err := s.store.AlertCandidates(ctx, now, now.Add(alertLookAhead))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var alerted []int64
	for _, e := range events {
		if e.AlertBefore == nil {
			continue
		}

		title := "Parking Reminder"
		body := fmt.Sprintf("Your meter will expire in %d minutes.", *e.AlertBefore)
		_, err := s.notifier.Send(ctx, &notification.SendRequest{
			Users: []int64{e.UserID},
			Type:  notification.TypeParkingAlert,
			Title: title,
			Body:  body,
			Meta: map[string]interface{}{
				"id":    e.ID,
				"title": title,
				"body":  body,
			},
		})
		if err != nil {
			logger.Get().Warn("parking alert enqueue failed",
				zap.Int64("event_id", e.ID),
				zap.Int64("user_id", e.UserID),
				zap.Error(err),
			)
			continue
		}
		alerted = append(alerted, e.ID)
	}

	updated, err := s.store.MarkAlerted(ctx, alerted)
	if err != nil {
		return err
	}
	logger.Get().Info("parking alerts dispatched",
		zap.Int("candidates", len(events)), zap.Int64("alerted", updated))
	return nil
}

// CheckFinishedAndExpiredEvents advances past-due events. EXPIRED runs first
// over the broader set with the earlier cutoff, then FINISHED over live rows.
func (s *Service) CheckFinishedAndExpiredEvents(ctx context.Context) error {
	now := s.now()

	expired, err := s.store.ExpireEvents(ctx, now.Add(-expiryGrace))
	if err != nil {
		return err
	}

	finished, err := s.store.FinishEvents(ctx, now)
	if err != nil {
		return err
	}

	if expired > 0 || finished > 0 {
		logger.Get().Info("parking events advanced",
			zap.Int64("expired", expired), zap.Int64("finished", finished))
	}
	return nil
}

// UpdateToken rotates the shared upstream OAuth token: insert the new grant,
// then drop rows that expire within the next minute.
func (s *Service) UpdateToken(ctx context.Context) error {
	grant, err := s.tokens.FetchToken(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.store.InsertToken(ctx, &APIToken{
		Token:   grant.AccessToken,
		Expires: now.Add(time.Duration(grant.ExpiresIn) * time.Second).UTC(),
	})
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteExpiredTokens(ctx, now.Add(time.Minute))
	if err != nil {
		return err
	}
	logger.Get().Info("parkmobile token rotated", zap.Int64("purged", deleted))
	return nil
}

// PurgeOutdatedCache drops price objects older than 30 days and event
// history older than 90 days.
func (s *Service) PurgeOutdatedCache(ctx context.Context) error {
	now := s.now()

	prices, err := s.store.PurgePriceObjects(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	history, err := s.store.PurgeEventHistory(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		return err
	}

	if prices > 0 || history > 0 {
		logger.Get().Info("parkmobile cache purged",
			zap.Int64("price_objects", prices), zap.Int64("event_history", history))
	}
	return nil
}
