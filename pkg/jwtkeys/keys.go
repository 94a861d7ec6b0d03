package jwtkeys

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/movesmart/maas-backend/pkg/config"
)

var (
	// ErrNoKeys is returned when neither signing key is configured.
	ErrNoKeys = errors.New("jwtkeys: no signing keys configured")
)

// KeyProvider resolves HMAC secrets for token signing and verification.
// SigningKey returns the primary secret; VerifyKeys returns every secret a
// presented token may have been signed with, primary first.
type KeyProvider interface {
	SigningKey() []byte
	VerifyKeys() [][]byte
}

// DualKeys holds the primary signing key plus an optional rotate key. During
// a key rollover both keys verify, only the primary signs, so tokens minted
// under the old key keep working until they age out.
type DualKeys struct {
	primary []byte
	rotate  []byte
}

// New decodes the base64-encoded secrets. The rotate key may be empty.
func New(primaryB64, rotateB64 string) (*DualKeys, error) {
	if primaryB64 == "" {
		return nil, ErrNoKeys
	}

	primary, err := base64.StdEncoding.DecodeString(primaryB64)
	if err != nil {
		return nil, fmt.Errorf("jwtkeys: decode primary key: %w", err)
	}

	k := &DualKeys{primary: primary}

	if rotateB64 != "" {
		rotate, err := base64.StdEncoding.DecodeString(rotateB64)
		if err != nil {
			return nil, fmt.Errorf("jwtkeys: decode rotate key: %w", err)
		}
		k.rotate = rotate
	}

	return k, nil
}

// NewFromConfig builds the key set from the shared JWT configuration.
func NewFromConfig(cfg config.JWTConfig) (*DualKeys, error) {
	return New(cfg.Key, cfg.RotateKey)
}

// SigningKey returns the primary secret used to mint tokens.
func (k *DualKeys) SigningKey() []byte {
	return k.primary
}

// VerifyKeys returns the secrets accepted on verification, primary first.
func (k *DualKeys) VerifyKeys() [][]byte {
	if k.rotate == nil {
		return [][]byte{k.primary}
	}
	return [][]byte{k.primary, k.rotate}
}
