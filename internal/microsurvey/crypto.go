package microsurvey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// IdentifierCipher seals and opens the identity blob embedded in form
// response payloads.
type IdentifierCipher struct {
	aead cipher.AEAD
}

// NewIdentifierCipher builds the cipher from a base64-encoded AES key.
func NewIdentifierCipher(base64Key string) (*IdentifierCipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &IdentifierCipher{aead: aead}, nil
}

// Seal encrypts the identifier into a URL-safe token for embedding in a
// form link.
func (c *IdentifierCipher) Seal(id FormsIdentifier) (string, error) {
	plain, err := json.Marshal(id)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token back into the identifier.
func (c *IdentifierCipher) Open(token string) (*FormsIdentifier, error) {
	sealed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode identifier: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return nil, fmt.Errorf("identifier too short")
	}

	nonce, body := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("open identifier: %w", err)
	}

	var id FormsIdentifier
	if err := json.Unmarshal(plain, &id); err != nil {
		return nil, fmt.Errorf("unmarshal identifier: %w", err)
	}
	return &id, nil
}
