package notification

import (
	"context"
	"encoding/json"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/eventbus"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// Messenger is the push delivery backend (FCM in production).
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Dispatcher consumes cloud-message tasks and delivers them to the user's
// registered devices.
type Dispatcher struct {
	store     Store
	messenger Messenger
}

// NewDispatcher creates a new push dispatcher
func NewDispatcher(store Store, messenger Messenger) *Dispatcher {
	return &Dispatcher{store: store, messenger: messenger}
}

// HandleCloudMessage is the queue handler for cloud-message tasks. Returning
// an error causes redelivery, so device-level failures are swallowed.
func (d *Dispatcher) HandleCloudMessage(ctx context.Context, event *eventbus.Event) error {
	var task eventbus.CloudMessageTask
	if err := json.Unmarshal(event.Data, &task); err != nil {
		logger.Get().Warn("malformed cloud message task", zap.Error(err))
		return nil
	}

	for _, userID := range task.UserIDs {
		tokens, err := d.store.DeviceTokens(ctx, userID)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			continue
		}

		msg := &messaging.MulticastMessage{
			Tokens: tokens,
			Data: map[string]string{
				"notification_id":   strconv.FormatInt(task.NotificationID, 10),
				"notification_type": strconv.Itoa(task.Type),
				"meta":              task.Meta,
			},
		}
		if !task.Silent {
			msg.Notification = &messaging.Notification{
				Title:    task.Title,
				Body:     task.Body,
				ImageURL: task.Image,
			}
		}

		resp, err := d.messenger.SendEachForMulticast(ctx, msg)
		if err != nil {
			logger.Get().Warn("push multicast failed",
				zap.Int64("user_id", userID),
				zap.Int64("notification_id", task.NotificationID),
				zap.Error(err),
			)
			continue
		}
		if resp.FailureCount > 0 {
			logger.Get().Warn("push partially delivered",
				zap.Int64("user_id", userID),
				zap.Int("success", resp.SuccessCount),
				zap.Int("failure", resp.FailureCount),
			)
		}
	}

	return nil
}
