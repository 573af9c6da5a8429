package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessionToken_RoundTrip(t *testing.T) {
	token, err := GenerateSessionToken(testSecret, "sess-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateSessionToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "reelqueue", claims.Issuer)
}

func TestSessionToken_Rejects(t *testing.T) {
	expired, err := GenerateSessionToken(testSecret, "sess-1", -time.Minute)
	require.NoError(t, err)
	valid, err := GenerateSessionToken(testSecret, "sess-1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		key   string
	}{
		{"expired", expired, testSecret},
		{"wrong key", valid, "another-secret"},
		{"garbage", "not.a.jwt", testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSessionToken(tt.key, tt.token)
			assert.Error(t, err)
		})
	}

	_, err = GenerateSessionToken(testSecret, "", time.Hour)
	assert.Error(t, err)
}

func TestTokenCipher(t *testing.T) {
	c, err := NewTokenCipher([]byte(testSecret))
	require.NoError(t, err)

	sealed, err := c.Encrypt("IGQVJ-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "IGQVJ")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "IGQVJ-token", plain)

	other, err := NewTokenCipher([]byte(strings.Repeat("x", 32)))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = c.Decrypt("%%%")
	assert.Error(t, err)
	_, err = c.Decrypt("AAAA")
	assert.Error(t, err)

	_, err = NewTokenCipher([]byte("short"))
	assert.Error(t, err)
}

func TestGenerateRandomKey(t *testing.T) {
	a, err := GenerateRandomKey(16)
	require.NoError(t, err)
	b, err := GenerateRandomKey(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 22)
}
