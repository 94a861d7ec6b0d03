package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/jwtkeys"
	"github.com/movesmart/maas-backend/pkg/middleware"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUser(ctx context.Context, userID int64) (*AuthUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AuthUser), args.Error(1)
}

func (m *mockStore) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetToken(ctx context.Context, token string) (*AuthUserToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AuthUserToken), args.Error(1)
}

func (m *mockStore) InsertToken(ctx context.Context, t *AuthUserToken) error {
	t.ID = 999
	return m.Called(ctx, t).Error(0)
}

func (m *mockStore) DisableToken(ctx context.Context, tokenID int64) error {
	return m.Called(ctx, tokenID).Error(0)
}

const (
	primarySecret = "primary-signing-secret"
	rotateSecret  = "previous-signing-secret"
)

func testKeys(t *testing.T) jwtkeys.KeyProvider {
	t.Helper()
	keys, err := jwtkeys.New(
		base64.StdEncoding.EncodeToString([]byte(primarySecret)),
		base64.StdEncoding.EncodeToString([]byte(rotateSecret)),
	)
	require.NoError(t, err)
	return keys
}

func signToken(t *testing.T, secret string, userID int64, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.ErrorCode
}

func newService(store *mockStore, keys jwtkeys.KeyProvider) *Service {
	return NewService(store, keys, 30*24*time.Hour, 7*24*time.Hour)
}

func activeToken(token string, userID int64, expiresOn time.Time) *AuthUserToken {
	return &AuthUserToken{ID: 5, UserID: userID, Token: token, ExpiresOn: expiresOn}
}

func TestVerify_HappyPath(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(20*24*time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store.On("GetToken", mock.Anything, token).
		Return(activeToken(token, 42, time.Now().Add(20*24*time.Hour)), nil)

	result, err := newService(store, keys).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.UserID)
	assert.Empty(t, result.RefreshedToken)
}

func TestVerify_RotationKeyAccepted(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, rotateSecret, 42, time.Now().Add(20*24*time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store.On("GetToken", mock.Anything, token).
		Return(activeToken(token, 42, time.Now().Add(20*24*time.Hour)), nil)

	result, err := newService(store, keys).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.UserID)
}

func TestVerify_ExpiredToken(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(-time.Hour))

	_, err := newService(&mockStore{}, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeTokenExpired, errorCode(t, err))
}

func TestVerify_ForeignKeyRejected(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, "some-other-secret", 42, time.Now().Add(time.Hour))

	_, err := newService(&mockStore{}, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeTokenChanged, errorCode(t, err))
}

func TestVerify_UnknownUser(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(nil, ErrNotFound)

	_, err := newService(store, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeTokenFailed, errorCode(t, err))
}

func TestVerify_BlockedUser(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(true, nil)

	_, err := newService(store, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeUserBlocked, errorCode(t, err))
}

func TestVerify_DisabledOrUnregisteredToken(t *testing.T) {
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store.On("GetToken", mock.Anything, token).Return(nil, ErrNotFound)

	_, err := newService(store, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeTokenFailed, errorCode(t, err))

	disabled := activeToken(token, 42, time.Now().Add(time.Hour))
	disabled.Disabled = true
	store2 := &mockStore{}
	store2.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store2.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store2.On("GetToken", mock.Anything, token).Return(disabled, nil)

	_, err = newService(store2, keys).Verify(context.Background(), token)
	assert.Equal(t, common.CodeTokenFailed, errorCode(t, err))
}

func TestVerify_RefreshWithinWindow(t *testing.T) {
	keys := testKeys(t)
	// Expires in 3 days: inside the 7 day refresh window
	token := signToken(t, primarySecret, 42, time.Now().Add(3*24*time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store.On("GetToken", mock.Anything, token).
		Return(activeToken(token, 42, time.Now().Add(3*24*time.Hour)), nil)
	store.On("InsertToken", mock.Anything, mock.MatchedBy(func(t *AuthUserToken) bool {
		remaining := time.Until(t.ExpiresOn)
		return t.UserID == 42 && remaining > 29*24*time.Hour && remaining <= 30*24*time.Hour
	})).Return(nil)
	store.On("DisableToken", mock.Anything, int64(5)).Return(nil)

	result, err := newService(store, keys).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RefreshedToken)
	assert.NotEqual(t, token, result.RefreshedToken)
	store.AssertExpectations(t)

	// The replacement must verify under the primary key
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(result.RefreshedToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(primarySecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
}

func TestMiddleware_BypassAndRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keys := testKeys(t)
	svc := newService(&mockStore{}, keys)

	router := gin.New()
	router.Use(Middleware(svc, []string{"/auth", "/healthz"}, []string{"/legacy"}))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/legacy/thing", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/wallet", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Bypass path needs no token
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Forward path passes through too
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/legacy/thing", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Guarded path without a token fails with TOKEN_REQUIRED
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeTokenRequired)
}

func TestMiddleware_SetsUserAndRefreshHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keys := testKeys(t)
	token := signToken(t, primarySecret, 42, time.Now().Add(2*24*time.Hour))

	store := &mockStore{}
	store.On("GetUser", mock.Anything, int64(42)).Return(&AuthUser{ID: 42}, nil)
	store.On("IsBlocked", mock.Anything, int64(42)).Return(false, nil)
	store.On("GetToken", mock.Anything, token).
		Return(activeToken(token, 42, time.Now().Add(2*24*time.Hour)), nil)
	store.On("InsertToken", mock.Anything, mock.Anything).Return(nil)
	store.On("DisableToken", mock.Anything, int64(5)).Return(nil)

	var gotUserID int64
	router := gin.New()
	router.Use(Middleware(newService(store, keys), nil, nil))
	router.GET("/wallet", func(c *gin.Context) {
		gotUserID, _ = middleware.GetUserID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), gotUserID)
	assert.NotEmpty(t, w.Header().Get(AccessTokenHeader))
}
