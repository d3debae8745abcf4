package middleware

import (
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, refresh, err := GenerateJWT("64f000000000000000000001", "admin@example.com", 424242)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, refresh)

	claims := &JwtCustomClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "64f000000000000000000001", claims.AdminID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, int64(424242), claims.TelegramID)
	assert.Greater(t, claims.ExpiresAt, claims.IssuedAt)
}

func TestGenerateJWTRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, _, err := GenerateJWT("id", "admin@example.com", 1)
	assert.Error(t, err)
}
