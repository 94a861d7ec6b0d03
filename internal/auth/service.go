package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/jwtkeys"
	"github.com/movesmart/maas-backend/pkg/logger"
)

// Service verifies access tokens and issues replacements when they near
// expiry. Tokens are HS256-signed with the primary key; the rotation key is
// accepted on decode only.
type Service struct {
	store         Store
	keys          jwtkeys.KeyProvider
	lifetime      time.Duration
	refreshWindow time.Duration
}

// NewService creates a new auth service
func NewService(store Store, keys jwtkeys.KeyProvider, lifetime, refreshWindow time.Duration) *Service {
	return &Service{
		store:         store,
		keys:          keys,
		lifetime:      lifetime,
		refreshWindow: refreshWindow,
	}
}

// Verify checks the token signature, the account, the block list and the
// token registry. When the token is inside the refresh window a replacement
// is issued: the old row is disabled and the new token returned.
func (s *Service) Verify(ctx context.Context, tokenString string) (*VerifyResult, error) {
	claims, err := s.decode(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewTokenFailedError()
		}
		return nil, common.NewInternalError("failed to load user", err)
	}
	if user.Disabled {
		return nil, common.NewTokenFailedError()
	}

	blocked, err := s.store.IsBlocked(ctx, user.ID)
	if err != nil {
		return nil, common.NewInternalError("failed to check block list", err)
	}
	if blocked {
		return nil, common.NewUserBlockedError()
	}

	stored, err := s.store.GetToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewTokenFailedError()
		}
		return nil, common.NewInternalError("failed to load token", err)
	}
	if stored.Disabled {
		return nil, common.NewTokenFailedError()
	}

	result := &VerifyResult{UserID: user.ID}

	if time.Now().Add(s.refreshWindow).After(stored.ExpiresOn) {
		replacement, err := s.CreateAccessToken(ctx, user.ID)
		if err != nil {
			// The presented token is still valid; refresh is best-effort.
			logger.Get().Warn("token refresh failed",
				zap.Int64("user_id", user.ID), zap.Error(err))
			return result, nil
		}
		if err := s.store.DisableToken(ctx, stored.ID); err != nil {
			logger.Get().Warn("failed to disable superseded token",
				zap.Int64("token_id", stored.ID), zap.Error(err))
		}
		result.RefreshedToken = replacement
	}

	return result, nil
}

// decode parses the JWT with the primary key, retrying signature failures
// once with the rotation key.
func (s *Service) decode(tokenString string) (*Claims, error) {
	keys := s.keys.VerifyKeys()
	if len(keys) == 0 {
		return nil, common.NewTokenFailedError()
	}

	var lastErr error
	for _, key := range keys {
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err == nil {
			return claims, nil
		}

		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.NewTokenExpiredError()
		}
		lastErr = err
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			continue // try the rotation key
		}
		break
	}

	if lastErr != nil {
		logger.Get().Debug("token rejected by all verify keys", zap.Error(lastErr))
	}
	return nil, common.NewTokenChangedError()
}

// CreateAccessToken signs a fresh token with the primary key and records it.
func (s *Service) CreateAccessToken(ctx context.Context, userID int64) (string, error) {
	now := time.Now()
	expiresOn := now.Add(s.lifetime)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresOn),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.keys.SigningKey())
	if err != nil {
		return "", err
	}

	err = s.store.InsertToken(ctx, &AuthUserToken{
		UserID:    userID,
		Token:     signed,
		ExpiresOn: expiresOn,
	})
	if err != nil {
		return "", err
	}
	return signed, nil
}
