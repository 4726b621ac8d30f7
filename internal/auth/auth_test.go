package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndValidate(t *testing.T) {
	j := NewJWT("secret")
	token, err := j.Sign(Identity{UserID: 42, Username: "alice"}, time.Hour)
	require.NoError(t, err)

	id, err := j.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Username: "alice"}, id)
}

func TestValidateRejects(t *testing.T) {
	j := NewJWT("secret")
	ctx := context.Background()

	other, err := NewJWT("other").Sign(Identity{UserID: 1}, time.Hour)
	require.NoError(t, err)
	_, err = j.ValidateToken(ctx, other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := j.Sign(Identity{UserID: 1}, -time.Minute)
	require.NoError(t, err)
	_, err = j.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = j.ValidateToken(ctx, noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = j.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = j.ValidateToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, bad := range []string{"", "abc", "Basic abc", "Bearer "} {
		_, ok := BearerToken(bad)
		assert.False(t, ok, bad)
	}
}
