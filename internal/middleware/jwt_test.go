package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promptpal/internal/api"
	"promptpal/internal/api/apitest"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

func TestIdentityFromToken(t *testing.T) {
	token := apitest.Token(t, models.Identity{ID: "u-1", DisplayName: "Ada"}, time.Hour)

	id, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: "u-1", DisplayName: "Ada"}, id)

	id, err = IdentityFromToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.ID)
}

func TestIdentityFromToken_NameFallsBackToID(t *testing.T) {
	token := apitest.Token(t, models.Identity{ID: "u-2"}, time.Hour)

	id, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-2", id.DisplayName)
}

func TestIdentityFromToken_SubjectFallback(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-3"}).SignedString([]byte("k"))
	require.NoError(t, err)

	id, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: "u-3", DisplayName: "u-3"}, id)
}

func TestIdentityFromToken_Anonymous(t *testing.T) {
	id, err := IdentityFromToken("")
	require.NoError(t, err)
	assert.True(t, id.IsAnonymous())
}

func TestIdentityFromToken_Rejects(t *testing.T) {
	expired := apitest.Token(t, models.Identity{ID: "u-1"}, -time.Minute)
	noUser := apitest.Token(t, models.Identity{}, time.Hour)

	for name, token := range map[string]string{
		"garbage": "not-a-jwt",
		"expired": expired,
		"no user": noUser,
	} {
		t.Run(name, func(t *testing.T) {
			id, err := IdentityFromToken(token)
			assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized), "got %v", err)
			assert.True(t, id.IsAnonymous())
		})
	}
}

func TestBearerTransport(t *testing.T) {
	srv := apitest.NewServer(t)

	client := api.NewClient(srv.URL, NewHTTPClient("abc", time.Second), nil, zap.NewNop())
	_, err := client.FetchTrends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", srv.LastAuthorization())

	client = api.NewClient(srv.URL, NewHTTPClient("", time.Second), nil, zap.NewNop())
	_, err = client.FetchTrends(context.Background())
	require.NoError(t, err)
	assert.Empty(t, srv.LastAuthorization())
}
