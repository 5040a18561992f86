package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(accessExpiry time.Duration) *JWTManager {
	return NewJWTManager("test-secret-key", accessExpiry, 24*time.Hour)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.GenerateAccessToken("user-1", "alice@example.com", "alice")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Nickname)
}

func TestAccessToken_Expired(t *testing.T) {
	m := newTestManager(-time.Minute)

	token, err := m.GenerateAccessToken("user-1", "", "alice")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	m := newTestManager(time.Hour)
	other := NewJWTManager("different-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateAccessToken("user-1", "", "alice")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.GenerateRefreshToken("user-1")
	require.NoError(t, err)

	userID, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestRefreshToken_Tampered(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.GenerateRefreshToken("user-1")
	require.NoError(t, err)

	_, err = m.ValidateRefreshToken(token + "x")
	assert.Error(t, err)
}
