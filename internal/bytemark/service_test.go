package bytemark

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movesmart/maas-backend/internal/notification"
)

type mockStore struct {
	mock.Mock
	upserted *TicketsCache
}

func (m *mockStore) OAuthToken(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockStore) UsersWithOAuthToken(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockStore) GetCache(ctx context.Context, userID int64) (*TicketsCache, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TicketsCache), args.Error(1)
}

func (m *mockStore) UpsertCache(ctx context.Context, cache *TicketsCache) error {
	m.upserted = cache
	return m.Called(ctx, cache).Error(0)
}

func (m *mockStore) CountCaches(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertRefreshLog(ctx context.Context, log *RefreshLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *mockStore) InsertTicketLogs(ctx context.Context, logs []TicketLog) error {
	return m.Called(ctx, logs).Error(0)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error) {
	args := m.Called(ctx, oauthToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]UpstreamPass), args.Error(1)
}

func (m *mockClient) GetExpiredPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error) {
	args := m.Called(ctx, oauthToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]UpstreamPass), args.Error(1)
}

type mockNotifier struct {
	sent []*notification.SendRequest
}

func (m *mockNotifier) Send(ctx context.Context, req *notification.SendRequest) ([]int64, error) {
	m.sent = append(m.sent, req)
	return []int64{1}, nil
}

func upstreamPass(uuid, productUUID, timeCreated string) UpstreamPass {
	raw := fmt.Sprintf(`{"uuid":%q,"status":"USABLE","time_created":%q,"product_uuid":%q}`,
		uuid, timeCreated, productUUID)
	return UpstreamPass{
		PassUUID:    uuid,
		Status:      "USABLE",
		TimeCreated: timeCreated,
		ProductUUID: productUUID,
		Raw:         json.RawMessage(raw),
	}
}

func newTestService(store *mockStore, client *mockClient, notifier Notifier) *Service {
	return NewService(store, client, notifier, 60*time.Minute)
}

func expectLogWrites(store *mockStore) {
	store.On("InsertRefreshLog", mock.Anything, mock.Anything).Return(nil)
	store.On("InsertTicketLogs", mock.Anything, mock.Anything).Return(nil)
}

func TestHashPayload(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sum := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), HashPayload(payload))
}

func TestSortByTimeCreated(t *testing.T) {
	passes := []UpstreamPass{
		upstreamPass("c", "p", "2025-03-01T00:00:00Z"),
		upstreamPass("a", "p", "2025-01-01T00:00:00Z"),
		upstreamPass("b", "p", "2025-02-01T00:00:00Z"),
	}
	SortByTimeCreated(passes)
	assert.Equal(t, "a", passes[0].PassUUID)
	assert.Equal(t, "b", passes[1].PassUUID)
	assert.Equal(t, "c", passes[2].PassUUID)
}

func TestBuildTicketCache_CreatesWithHashes(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}

	store.On("GetCache", mock.Anything, int64(1)).Return(nil, nil)
	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{
		upstreamPass("p1", "prod-a", "2025-01-01T00:00:00Z"),
		upstreamPass("p2", "prod-b", "2025-02-01T00:00:00Z"),
	}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.BuildTicketCache(context.Background(), 1))

	require.NotNil(t, store.upserted)
	require.Len(t, store.upserted.Passes, 2)
	for _, e := range store.upserted.Passes {
		assert.Equal(t, HashPayload([]byte(e.Payload)), e.PayloadHash)
		assert.Equal(t, 0, e.FreeTicketStatus)
	}
	assert.NotZero(t, store.upserted.Timestamp)
}

func TestBuildTicketCache_ExistingCacheUntouched(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}
	store.On("GetCache", mock.Anything, int64(1)).Return(&TicketsCache{UserID: 1}, nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.BuildTicketCache(context.Background(), 1))
	client.AssertNotCalled(t, "GetPasses", mock.Anything, mock.Anything)
}

func TestRefresh_NoOAuthTokenIsEmpty(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}
	store.On("GetCache", mock.Anything, int64(1)).Return(nil, nil)
	store.On("OAuthToken", mock.Anything, int64(1)).Return("", ErrNoOAuthToken)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.CheckTicketCache(context.Background(), 1))
	client.AssertNotCalled(t, "GetPasses", mock.Anything, mock.Anything)
	assert.Nil(t, store.upserted)
}

func TestUpdate_MergeRetainsUnchangedPasses4(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}

	p := upstreamPass("p4", "prod-a", "2025-01-01T00:00:00Z")
	oldEntry := PassEntry{
		PassUUID:    "p4",
		Timestamp:   1000,
		Status:      "USABLE",
		Payload:     string(p.Raw),
		PayloadHash: HashPayload(p.Raw),
	}
	existing := &TicketsCache{
		UserID:    1,
		Timestamp: 1000,
		Passes4:   []PassEntry{oldEntry},
	}

	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{p}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.UpdateTicketCache(context.Background(), 1, existing))

	// Unchanged hash keeps the old timestamp
	require.Len(t, store.upserted.Passes4, 1)
	assert.Equal(t, int64(1000), store.upserted.Passes4[0].Timestamp)
}

func TestUpdate_ChangedPass4GetsNewTimestamp(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}

	changed := upstreamPass("p4", "prod-a", "2025-01-01T00:00:00Z")
	existing := &TicketsCache{
		UserID:    1,
		Timestamp: 1000,
		Passes4: []PassEntry{{
			PassUUID:    "p4",
			Timestamp:   1000,
			PayloadHash: "different-hash",
		}},
	}

	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{changed}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.UpdateTicketCache(context.Background(), 1, existing))

	require.Len(t, store.upserted.Passes4, 1)
	assert.Greater(t, store.upserted.Passes4[0].Timestamp, int64(1000))
	assert.Equal(t, HashPayload(changed.Raw), store.upserted.Passes4[0].PayloadHash)
}

func TestRefresh_V4FailureRetainsPreviousData(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}

	existing := &TicketsCache{
		UserID:  1,
		Passes4: []PassEntry{{PassUUID: "old4", Timestamp: 1000}},
	}

	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{
		upstreamPass("p1", "prod-a", "2025-01-01T00:00:00Z"),
	}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return(nil, errors.New("upstream 500"))
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.UpdateTicketCache(context.Background(), 1, existing))

	require.Len(t, store.upserted.Passes, 1)
	require.Len(t, store.upserted.Passes4, 1)
	assert.Equal(t, "old4", store.upserted.Passes4[0].PassUUID)
}

func TestRefresh_FreeTicketFlagAndNotification(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}
	notifier := &mockNotifier{}

	free := upstreamPass("pf", "2417edb7-856c-43ee-b3df-c508b8be259b", "2025-01-01T00:00:00Z")
	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{free}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, notifier)
	require.NoError(t, svc.UpdateTicketCache(context.Background(), 1, &TicketsCache{UserID: 1}))

	require.Len(t, store.upserted.Passes, 1)
	assert.Equal(t, 1, store.upserted.Passes[0].FreeTicketStatus)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification.TypeFreeTicket, notifier.sent[0].Type)
}

func TestRefresh_FreeTicketFlagPersists(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}
	notifier := &mockNotifier{}

	// Product no longer in the free set, but flag was set before
	plain := upstreamPass("pf", "ordinary-product", "2025-01-01T00:00:00Z")
	existing := &TicketsCache{
		UserID: 1,
		Passes: []PassEntry{{PassUUID: "pf", FreeTicketStatus: 1}},
	}

	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok", nil)
	client.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{plain}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, notifier)
	require.NoError(t, svc.UpdateTicketCache(context.Background(), 1, existing))

	require.Len(t, store.upserted.Passes, 1)
	assert.Equal(t, 1, store.upserted.Passes[0].FreeTicketStatus)
	// Already flagged: no new notification
	assert.Empty(t, notifier.sent)
}

func TestCheckTicketCacheTimeout(t *testing.T) {
	now := time.Now()

	fresh := &TicketsCache{UserID: 1, Timestamp: now.Add(-30 * time.Minute).Unix()}
	store := &mockStore{}
	client := &mockClient{}
	store.On("GetCache", mock.Anything, int64(1)).Return(fresh, nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.CheckTicketCacheTimeout(context.Background(), 1))
	client.AssertNotCalled(t, "GetPasses", mock.Anything, mock.Anything)

	stale := &TicketsCache{UserID: 2, Timestamp: now.Add(-61 * time.Minute).Unix()}
	store2 := &mockStore{}
	client2 := &mockClient{}
	store2.On("GetCache", mock.Anything, int64(2)).Return(stale, nil)
	store2.On("OAuthToken", mock.Anything, int64(2)).Return("tok", nil)
	client2.On("GetPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	client2.On("GetExpiredPasses", mock.Anything, "tok").Return([]UpstreamPass{}, nil)
	expectLogWrites(store2)
	store2.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc2 := newTestService(store2, client2, nil)
	require.NoError(t, svc2.CheckTicketCacheTimeout(context.Background(), 2))
	client2.AssertCalled(t, "GetPasses", mock.Anything, "tok")
}

func TestBuildCacheIfEmpty(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{}

	store.On("CountCaches", mock.Anything).Return(int64(0), nil)
	store.On("UsersWithOAuthToken", mock.Anything).Return([]int64{1, 2}, nil)
	store.On("GetCache", mock.Anything, mock.Anything).Return(nil, nil)
	store.On("OAuthToken", mock.Anything, int64(1)).Return("tok1", nil)
	// User 2 fails; bootstrap continues
	store.On("OAuthToken", mock.Anything, int64(2)).Return("", errors.New("db error"))
	client.On("GetPasses", mock.Anything, "tok1").Return([]UpstreamPass{}, nil)
	client.On("GetExpiredPasses", mock.Anything, "tok1").Return([]UpstreamPass{}, nil)
	expectLogWrites(store)
	store.On("UpsertCache", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, client, nil)
	require.NoError(t, svc.BuildCacheIfEmpty(context.Background()))

	// Non-empty cache set skips bootstrap entirely
	store2 := &mockStore{}
	store2.On("CountCaches", mock.Anything).Return(int64(5), nil)
	svc2 := newTestService(store2, &mockClient{}, nil)
	require.NoError(t, svc2.BuildCacheIfEmpty(context.Background()))
	store2.AssertNotCalled(t, "UsersWithOAuthToken", mock.Anything)
}
