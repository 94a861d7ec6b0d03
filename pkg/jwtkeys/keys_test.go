package jwtkeys

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestNew_PrimaryOnly(t *testing.T) {
	keys, err := New(b64("primary-secret"), "")
	require.NoError(t, err)

	assert.Equal(t, []byte("primary-secret"), keys.SigningKey())
	require.Len(t, keys.VerifyKeys(), 1)
	assert.Equal(t, []byte("primary-secret"), keys.VerifyKeys()[0])
}

func TestNew_WithRotateKey(t *testing.T) {
	keys, err := New(b64("new-secret"), b64("old-secret"))
	require.NoError(t, err)

	// Primary signs, both verify, primary first
	assert.Equal(t, []byte("new-secret"), keys.SigningKey())
	require.Len(t, keys.VerifyKeys(), 2)
	assert.Equal(t, []byte("new-secret"), keys.VerifyKeys()[0])
	assert.Equal(t, []byte("old-secret"), keys.VerifyKeys()[1])
}

func TestNew_MissingPrimary(t *testing.T) {
	_, err := New("", b64("old-secret"))
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestNew_InvalidBase64(t *testing.T) {
	_, err := New("not-base64!!", "")
	assert.Error(t, err)

	_, err = New(b64("ok"), "not-base64!!")
	assert.Error(t, err)
}
