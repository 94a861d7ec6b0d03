package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUser is the minimal account row the verifier needs.
type AuthUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email,omitempty"`
	Disabled  bool      `json:"disabled"`
	CreatedOn time.Time `json:"created_on"`
}

// AuthUserToken is one issued access token. A refresh disables the old row
// and inserts a new one.
type AuthUserToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	Disabled  bool      `json:"disabled"`
	ExpiresOn time.Time `json:"expires_on"`
	CreatedOn time.Time `json:"created_on"`
}

// Claims is the JWT payload for access tokens.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// VerifyResult is the outcome of a successful token verification.
type VerifyResult struct {
	UserID int64
	// RefreshedToken is set when the presented token entered the refresh
	// window and a replacement was issued.
	RefreshedToken string
}
