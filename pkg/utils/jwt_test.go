package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "z-chat-ai")
	tok, err := m.GenerateToken("user-1", "pro", time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "pro", claims.Plan)
	assert.Equal(t, TokenTypeAccess, claims.Type)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", "z-chat-ai")
	past := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return past }
	expired, err := m.GenerateToken("user-1", "", time.Hour)
	require.NoError(t, err)
	m.now = time.Now

	other := NewJWTManager("other-secret", "z-chat-ai")
	forged, err := other.GenerateToken("user-1", "", time.Hour)
	require.NoError(t, err)

	wrongIssuer := NewJWTManager("secret", "someone-else")
	foreign, err := wrongIssuer.GenerateToken("user-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrExpiredToken},
		{"bad signature", forged, ErrInvalidToken},
		{"wrong issuer", foreign, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ParseToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
