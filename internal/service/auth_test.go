package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "learner-1",
		TokenType:        TokenTypeAccess,
	}
}

func TestValidateToken(t *testing.T) {
	a := NewAuthService("secret")

	claims, err := a.ValidateToken(sign(t, "secret", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "learner-1", claims.UserID)
}

func TestValidateTokenRejects(t *testing.T) {
	a := NewAuthService("secret")

	_, err := a.ValidateToken(sign(t, "other", validClaims()))
	assert.Error(t, err, "wrong secret")

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = a.ValidateToken(sign(t, "secret", expired))
	assert.Error(t, err, "expired")

	noUser := validClaims()
	noUser.UserID = ""
	_, err = a.ValidateToken(sign(t, "secret", noUser))
	assert.EqualError(t, err, "token missing user id")

	refresh := validClaims()
	refresh.TokenType = "refresh"
	_, err = a.ValidateToken(sign(t, "secret", refresh))
	assert.EqualError(t, err, "access token required")

	_, err = a.ValidateToken("not-a-token")
	assert.Error(t, err)
}
