package notification

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/eventbus"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// maxRecipients bounds one logical push event.
const maxRecipients = 500

// Publisher is the queue side of the pipeline.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// Service persists notifications and dispatches cloud-message tasks.
type Service struct {
	store Store
	bus   Publisher
}

// NewService creates a new notification service. bus may be nil, in which
// case notifications are stored but never pushed.
func NewService(store Store, bus Publisher) *Service {
	return &Service{store: store, bus: bus}
}

// Send persists the notification tree in one transaction, then enqueues one
// cloud-message task per recipient. Queue failures leave the recipient row at
// send_status=0; the message remains readable in-app.
func (s *Service) Send(ctx context.Context, req *SendRequest) ([]int64, error) {
	if len(req.Users) == 0 {
		return nil, common.NewValidationError("at least one recipient is required")
	}
	if len(req.Users) > maxRecipients {
		return nil, common.NewValidationError("too many recipients in one event")
	}

	meta := "{}"
	if req.Meta != nil {
		raw, err := json.Marshal(req.Meta)
		if err != nil {
			return nil, common.NewBadRequestError("meta is not serializable", err)
		}
		meta = string(raw)
	}

	now := time.Now()
	n := &Notification{
		MsgData:          meta,
		StartedOn:        now,
		EndedOn:          now.Add(notificationWindow),
		Silent:           SilentFlag(req.Silent),
		NotificationType: req.Type,
	}
	msg := &NotificationMsg{
		MsgTitle: req.Title,
		MsgBody:  req.Body,
		Lang:     NormalizeLang(req.Lang),
	}

	recipients, err := s.store.CreateNotification(ctx, n, msg, req.Users)
	if err != nil {
		logger.Get().Error("failed to persist notification",
			zap.Int("notification_type", req.Type), zap.Error(err))
		return nil, common.NewInternalError("failed to persist notification", err)
	}

	ids := make([]int64, 0, len(recipients))
	for _, nu := range recipients {
		ids = append(ids, nu.ID)
	}

	if req.NoPush || s.bus == nil {
		return ids, nil
	}

	for _, nu := range recipients {
		if err := s.enqueue(ctx, n, msg, req, nu.UserID); err != nil {
			logger.Get().Warn("cloud message enqueue failed",
				zap.Int64("notification_id", n.ID),
				zap.Int64("user_id", nu.UserID),
				zap.Error(err),
			)
			continue
		}
		if err := s.store.MarkDispatched(ctx, nu.ID); err != nil {
			logger.Get().Warn("failed to mark recipient dispatched",
				zap.Int64("notification_user_id", nu.ID), zap.Error(err))
		}
	}

	return ids, nil
}

func (s *Service) enqueue(ctx context.Context, n *Notification, msg *NotificationMsg, req *SendRequest, userID int64) error {
	task := eventbus.CloudMessageTask{
		NotificationID: n.ID,
		UserIDs:        []int64{userID},
		Type:           n.NotificationType,
		Title:          msg.MsgTitle,
		Body:           msg.MsgBody,
		Meta:           n.MsgData,
		Image:          req.Image,
		Language:       msg.Lang,
		Silent:         req.Silent,
		EndedOn:        n.EndedOn,
		QueuedAt:       time.Now(),
	}

	event, err := eventbus.NewEvent("cloud_message", "notification-service", task)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, eventbus.SubjectCloudMessage, event)
}
