package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const TokenSecret = "test-secret"

// Issue HS256 access token the way commerce API does
func AccessToken(t *testing.T, subject string, username string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":        subject,
		"username":   username,
		"exp":        expiresAt.Unix(),
		"iat":        time.Now().Unix(),
		"token_type": "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TokenSecret))
	require.NoError(t, err, "token must be signed")
	return token
}
