package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movesmart/maas-backend/pkg/eventbus"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateNotification(ctx context.Context, n *Notification, msg *NotificationMsg, userIDs []int64) ([]*NotificationUser, error) {
	args := m.Called(ctx, n, msg, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*NotificationUser), args.Error(1)
}

func (m *mockStore) MarkDispatched(ctx context.Context, notificationUserID int64) error {
	return m.Called(ctx, notificationUserID).Error(0)
}

func (m *mockStore) DeviceTokens(ctx context.Context, userID int64) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockBus struct {
	mock.Mock
	published []*eventbus.Event
}

func (m *mockBus) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	m.published = append(m.published, event)
	return m.Called(ctx, subject, event).Error(0)
}

func recipients(msgID int64, userIDs ...int64) []*NotificationUser {
	out := make([]*NotificationUser, 0, len(userIDs))
	for i, uid := range userIDs {
		out = append(out, &NotificationUser{
			ID:                int64(1000 + i),
			NotificationMsgID: msgID,
			UserID:            uid,
			SendStatus:        SendStatusQueued,
		})
	}
	return out
}

func TestNormalizeLang(t *testing.T) {
	assert.Equal(t, "en_us", NormalizeLang("en-US"))
	assert.Equal(t, "en_us", NormalizeLang("en_us")) // idempotent
	assert.Equal(t, "en_us", NormalizeLang(""))
	assert.Equal(t, "pt_br", NormalizeLang("pt-BR"))
}

func TestSend_PersistsAndEnqueuesPerUser(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}

	store.On("CreateNotification", mock.Anything,
		mock.MatchedBy(func(n *Notification) bool {
			return n.Silent == "F" &&
				n.EndedOn.Sub(n.StartedOn) == 7*24*time.Hour
		}),
		mock.MatchedBy(func(msg *NotificationMsg) bool {
			return msg.Lang == "en_us"
		}),
		[]int64{1, 2, 3},
	).Run(func(args mock.Arguments) {
		args.Get(1).(*Notification).ID = 77
	}).Return(recipients(5, 1, 2, 3), nil)

	bus.On("Publish", mock.Anything, eventbus.SubjectCloudMessage, mock.Anything).Return(nil)
	store.On("MarkDispatched", mock.Anything, mock.Anything).Return(nil).Times(3)

	svc := NewService(store, bus)
	ids, err := svc.Send(context.Background(), &SendRequest{
		Users: []int64{1, 2, 3},
		Type:  TypeParkingAlert,
		Title: "Meter expiring",
		Body:  "Your meter will expire in 15 minutes.",
		Lang:  "en-US",
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// One task per recipient, single-user lists
	require.Len(t, bus.published, 3)
	var task eventbus.CloudMessageTask
	require.NoError(t, json.Unmarshal(bus.published[0].Data, &task))
	assert.Equal(t, int64(77), task.NotificationID)
	assert.Equal(t, []int64{1}, task.UserIDs)
	assert.Equal(t, TypeParkingAlert, task.Type)

	store.AssertExpectations(t)
}

func TestSend_NoPushSkipsQueue(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}

	store.On("CreateNotification", mock.Anything, mock.Anything, mock.Anything, []int64{1}).
		Return(recipients(5, 1), nil)

	svc := NewService(store, bus)
	ids, err := svc.Send(context.Background(), &SendRequest{
		Users:  []int64{1},
		Title:  "t",
		Body:   "b",
		NoPush: true,
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Empty(t, bus.published)
	store.AssertNotCalled(t, "MarkDispatched", mock.Anything, mock.Anything)
}

func TestSend_EnqueueFailureLeavesStatusQueued(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}

	store.On("CreateNotification", mock.Anything, mock.Anything, mock.Anything, []int64{1, 2}).
		Return(recipients(5, 1, 2), nil)

	// First enqueue fails, second succeeds
	bus.On("Publish", mock.Anything, eventbus.SubjectCloudMessage, mock.Anything).
		Return(errors.New("nats down")).Once()
	bus.On("Publish", mock.Anything, eventbus.SubjectCloudMessage, mock.Anything).
		Return(nil).Once()
	store.On("MarkDispatched", mock.Anything, int64(1001)).Return(nil).Once()

	svc := NewService(store, bus)
	ids, err := svc.Send(context.Background(), &SendRequest{
		Users: []int64{1, 2},
		Title: "t",
		Body:  "b",
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkDispatched", mock.Anything, int64(1000))
}

func TestSend_DBFailureReturnsNoIDs(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}

	store.On("CreateNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	svc := NewService(store, bus)
	ids, err := svc.Send(context.Background(), &SendRequest{
		Users: []int64{1},
		Title: "t",
		Body:  "b",
	})
	assert.Error(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, bus.published)
}

func TestSend_RecipientCap(t *testing.T) {
	users := make([]int64, 501)
	for i := range users {
		users[i] = int64(i + 1)
	}

	svc := NewService(&mockStore{}, &mockBus{})
	_, err := svc.Send(context.Background(), &SendRequest{Users: users, Title: "t", Body: "b"})
	assert.Error(t, err)

	_, err = svc.Send(context.Background(), &SendRequest{Title: "t", Body: "b"})
	assert.Error(t, err)
}
