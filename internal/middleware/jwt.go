// internal/middleware/jwt.go
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// Claims represents the JWT claims the backend issues
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IdentityFromToken resolves the current user from a bearer token. The
// signature is not checked here: the backend verifies it on every request,
// the client only needs to know who it is acting as. An empty token is an
// anonymous visitor.
func IdentityFromToken(tokenString string) (models.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return models.Identity{}, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return models.Identity{}, utils.NewAppError(utils.ErrUnauthorized, "Invalid token", err)
	}

	// Check if token is expired
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return models.Identity{}, utils.NewAppError(utils.ErrUnauthorized, "Token expired", nil)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return models.Identity{}, utils.NewAppError(utils.ErrUnauthorized, "Token has no user id", nil)
	}
	name := claims.Name
	if name == "" {
		name = id
	}
	return models.Identity{ID: id, DisplayName: name}, nil
}

// BearerTransport attaches the configured token to every outgoing request.
type BearerTransport struct {
	Token string
	Base  http.RoundTripper
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == "" {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(t.Token, "Bearer "))
	return base.RoundTrip(clone)
}

// NewHTTPClient returns an http.Client that authenticates with token.
func NewHTTPClient(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &BearerTransport{Token: token},
	}
}
