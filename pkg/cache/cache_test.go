package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// MockRedisClient implements the Redis operations needed by cache.Manager
type MockRedisClient struct {
	mu       sync.RWMutex
	data     map[string]string
	expiry   map[string]time.Time
	getError error
	setError error
	delError error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		data:   make(map[string]string),
		expiry: make(map[string]time.Time),
	}
}

func (m *MockRedisClient) GetString(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getError != nil {
		return "", m.getError
	}

	if exp, ok := m.expiry[key]; ok && time.Now().After(exp) {
		return "", redis.Nil
	}

	val, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return val, nil
}

func (m *MockRedisClient) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setError != nil {
		return m.setError
	}

	var strVal string
	switch v := value.(type) {
	case string:
		strVal = v
	case []byte:
		strVal = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		strVal = string(data)
	}

	m.data[key] = strVal
	if expiration > 0 {
		m.expiry[key] = time.Now().Add(expiration)
	}
	return nil
}

func (m *MockRedisClient) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.delError != nil {
		return m.delError
	}

	for _, key := range keys {
		delete(m.data, key)
		delete(m.expiry, key)
	}
	return nil
}

// MockManager wraps cache operations for testing
type MockManager struct {
	redis *MockRedisClient
}

func NewMockManager(redis *MockRedisClient) *MockManager {
	return &MockManager{redis: redis}
}

func (m *MockManager) Get(ctx context.Context, key string, result interface{}) error {
	data, err := m.redis.GetString(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), result)
}

func (m *MockManager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

func (m *MockManager) Delete(ctx context.Context, keys ...string) error {
	return m.redis.Delete(ctx, keys...)
}

type testBalance struct {
	UserID  int64   `json:"user_id"`
	Balance float64 `json:"balance"`
}

// ============== Cache Manager Tests ==============

func TestMockManager_Get_Success(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	bal := testBalance{UserID: 101, Balance: 12.5}
	_ = manager.Set(ctx, Keys.Wallet(101), bal, time.Hour)

	var result testBalance
	err := manager.Get(ctx, Keys.Wallet(101), &result)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.UserID != bal.UserID {
		t.Errorf("expected UserID %d, got %d", bal.UserID, result.UserID)
	}
	if result.Balance != bal.Balance {
		t.Errorf("expected Balance %f, got %f", bal.Balance, result.Balance)
	}
}

func TestMockManager_Get_CacheMiss(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	var result testBalance
	err := manager.Get(ctx, "nonexistent", &result)
	if err == nil {
		t.Fatal("expected error for cache miss")
	}
}

func TestMockManager_Get_Error(t *testing.T) {
	mock := NewMockRedisClient()
	mock.getError = errors.New("connection error")
	manager := NewMockManager(mock)
	ctx := context.Background()

	var result testBalance
	err := manager.Get(ctx, Keys.Wallet(1), &result)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "connection error" {
		t.Errorf("expected 'connection error', got %v", err)
	}
}

func TestMockManager_Get_InvalidJSON(t *testing.T) {
	mock := NewMockRedisClient()
	mock.data["invalid"] = "not valid json"
	manager := NewMockManager(mock)
	ctx := context.Background()

	var result testBalance
	err := manager.Get(ctx, "invalid", &result)
	if err == nil {
		t.Fatal("expected JSON unmarshal error")
	}
}

func TestMockManager_Set_WithZeroTTL(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	err := manager.Set(ctx, Keys.Wallet(1), testBalance{UserID: 1}, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := mock.expiry[Keys.Wallet(1)]; ok {
		t.Error("expected no expiry for zero TTL")
	}
}

func TestMockManager_Delete_Success(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	_ = manager.Set(ctx, Keys.Wallet(1), testBalance{UserID: 1}, time.Hour)
	_ = manager.Set(ctx, Keys.Wallet(2), testBalance{UserID: 2}, time.Hour)

	err := manager.Delete(ctx, Keys.Wallet(1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var result testBalance
	err = manager.Get(ctx, Keys.Wallet(1), &result)
	if err == nil {
		t.Error("expected cache miss after deletion")
	}

	err = manager.Get(ctx, Keys.Wallet(2), &result)
	if err != nil {
		t.Error("expected wallet:2 to still exist")
	}
}

func TestMockManager_Delete_NonexistentKey(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	err := manager.Delete(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("expected no error for nonexistent key, got %v", err)
	}
}

// ============== Cache Keys Tests ==============

func TestCacheKeys_Wallet(t *testing.T) {
	key := Keys.Wallet(4711)
	expected := "wallet:4711"
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}

func TestCacheKeys_PointsHistory(t *testing.T) {
	tests := []struct {
		userID   int64
		offset   int
		expected string
	}{
		{1, 0, "points_history:1:offset:0"},
		{2, 20, "points_history:2:offset:20"},
		{3, 100, "points_history:3:offset:100"},
	}

	for _, tc := range tests {
		key := Keys.PointsHistory(tc.userID, tc.offset)
		if key != tc.expected {
			t.Errorf("expected %s, got %s", tc.expected, key)
		}
	}
}

func TestCacheKeys_TicketCache(t *testing.T) {
	key := Keys.TicketCache(55)
	expected := "tickets:55"
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}

func TestCacheKeys_ParkingToken(t *testing.T) {
	if Keys.ParkingToken() != "parkmobile:token" {
		t.Errorf("unexpected key %s", Keys.ParkingToken())
	}
}

func TestCacheKeys_SurveyActor(t *testing.T) {
	key := Keys.SurveyActor(9)
	expected := "survey_actor:9"
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}

// ============== Cache TTL Tests ==============

func TestCacheTTL(t *testing.T) {
	if TTL.Short() != 5*time.Minute {
		t.Errorf("unexpected short TTL %v", TTL.Short())
	}
	if TTL.Medium() != 15*time.Minute {
		t.Errorf("unexpected medium TTL %v", TTL.Medium())
	}
	if TTL.Long() != time.Hour {
		t.Errorf("unexpected long TTL %v", TTL.Long())
	}
	if TTL.VeryLong() != 24*time.Hour {
		t.Errorf("unexpected very long TTL %v", TTL.VeryLong())
	}
}

// ============== Expiration Tests ==============

func TestCache_TTLExpiration(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	_ = manager.Set(ctx, "short-lived", "value", 1*time.Millisecond)

	time.Sleep(10 * time.Millisecond)

	var result string
	err := manager.Get(ctx, "short-lived", &result)
	if err == nil {
		t.Error("expected cache miss after TTL expiration")
	}
}

// ============== Concurrent Access Tests ==============

func TestCache_ConcurrentAccess(t *testing.T) {
	mock := NewMockRedisClient()
	manager := NewMockManager(mock)
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int64) {
			defer wg.Done()
			bal := testBalance{UserID: idx}
			if err := manager.Set(ctx, Keys.Wallet(idx), bal, time.Hour); err != nil {
				errCh <- err
			}
		}(int64(i))
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int64) {
			defer wg.Done()
			var result testBalance
			// Ignore cache miss errors, we just care about race conditions
			_ = manager.Get(ctx, Keys.Wallet(idx), &result)
		}(int64(i))
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent operation error: %v", err)
	}
}
