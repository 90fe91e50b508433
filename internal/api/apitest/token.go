package apitest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"promptpal/internal/models"
)

var signingKey = []byte("apitest-signing-key")

// Token signs a bearer token for user carrying the claims the backend issues.
// A negative ttl yields an expired token.
func Token(t testing.TB, user models.Identity, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"iss":     "promptpal",
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if user.ID != "" {
		claims["sub"] = user.ID
	}
	if user.DisplayName != "" {
		claims["name"] = user.DisplayName
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
