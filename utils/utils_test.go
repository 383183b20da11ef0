package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("Day"))
	assert.True(t, IsValidInterval("Quarter"))
	assert.False(t, IsValidInterval("day"))
	assert.False(t, IsValidInterval("Day(timestamp)); DROP TABLE x; --"))
}

func TestParseTimeRange(t *testing.T) {
	now := time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)

	t.Run("defaults to the last seven days", func(t *testing.T) {
		start, end, err := ParseTimeRange("", "", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-7*24*time.Hour), start)
		assert.Equal(t, now, end)
	})

	t.Run("parses explicit bounds", func(t *testing.T) {
		start, end, err := ParseTimeRange("2025-03-01T00:00:00Z", "2025-03-02T00:00:00Z", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		_, _, err := ParseTimeRange("yesterday", "", now)
		assert.ErrorContains(t, err, "'start'")
		_, _, err = ParseTimeRange("", "2025-03-02", now)
		assert.ErrorContains(t, err, "'end'")
	})

	t.Run("rejects inverted ranges", func(t *testing.T) {
		_, _, err := ParseTimeRange("2025-03-02T00:00:00Z", "2025-03-01T00:00:00Z", now)
		assert.Error(t, err)
	})
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(testSecret, "owner-1", "owner@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, "owner-1", claims.Subject)
}

func TestValidateJWT_Rejects(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateJWT([]byte("other"), "owner-1", "", time.Hour)
		require.NoError(t, err)
		_, err = ValidateJWT(testSecret, token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateJWT(testSecret, "owner-1", "", -time.Minute)
		require.NoError(t, err)
		_, err = ValidateJWT(testSecret, token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "owner-1"})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ValidateJWT(testSecret, s)
		assert.Error(t, err)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := ValidateJWT(nil, "a.b.c")
		assert.Error(t, err)
		_, err = GenerateJWT(nil, "owner-1", "", time.Hour)
		assert.Error(t, err)
	})
}
