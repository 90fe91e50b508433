package engine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"promptpal/internal/api"
	"promptpal/internal/api/apitest"
	"promptpal/internal/commenttree"
	"promptpal/internal/config"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

var alice = models.Identity{ID: "alice", DisplayName: "Alice"}

func newTestEngine(t *testing.T, actorTimeout time.Duration) (*Engine, *apitest.Server) {
	srv := apitest.NewServer(t)
	srv.AddTrend(models.Trend{ID: "t1", Title: "Cinematic portraits", AuthorID: "bob", VoteScore: 3})
	srv.SeedComments("t1",
		models.Comment{ID: "c1", Content: "love it", AuthorID: "bob", AuthorDisplayName: "Bob", CreatedAt: time.Unix(100, 0)},
		models.Comment{ID: "c2", Content: "same", AuthorID: "carol", AuthorDisplayName: "Carol", CreatedAt: time.Unix(200, 0), ParentID: strPtr("c1")},
	)

	logger := zaptest.NewLogger(t)
	metrics := utils.NewMetricsCollector()
	client := api.NewClient(srv.URL, nil, metrics, logger)
	e := NewEngine(actor.NewActorSystem(), client, metrics, logger, &config.EngineConfig{ActorTimeout: actorTimeout})
	t.Cleanup(e.Shutdown)
	return e, srv
}

func strPtr(s string) *string { return &s }

func TestEngine_OpenTrendLoadsThreadAndFeed(t *testing.T) {
	e, srv := newTestEngine(t, 2*time.Second)
	ctx := context.Background()

	forest, err := e.OpenTrend(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, forest.Roots, 1)
	assert.Equal(t, "c1", forest.Roots[0].Comment.ID)
	assert.Equal(t, "Bob", forest.Roots[0].Replies[0].ParentAuthorDisplayName)

	trends, err := e.Trends(ctx)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, "Cinematic portraits", trends[0].Title)

	assert.Equal(t, 1, srv.Calls(apitest.OpFetchTrends))
	assert.Equal(t, 1, srv.Calls(apitest.OpFetchComments))
}

func TestEngine_CommentFlow(t *testing.T) {
	e, srv := newTestEngine(t, 2*time.Second)
	ctx := context.Background()
	_, err := e.OpenTrend(ctx, "t1")
	require.NoError(t, err)

	created, err := e.Submit(ctx, "t1", "nice work", strPtr("c2"), alice)
	require.NoError(t, err)
	assert.Equal(t, "nice work", created.Content)

	vote, err := e.Vote(ctx, "t1", created.ID, models.VoteUp, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, vote.VoteScore)
	assert.Equal(t, models.Upvoted, vote.UserVote)

	forest, err := e.Thread(ctx, "t1")
	require.NoError(t, err)
	rows := commenttree.Render(forest)
	require.Len(t, rows, 3)
	assert.Equal(t, created.ID, rows[2].Node.Comment.ID)
	assert.Equal(t, 2, rows[2].Depth)

	removed, err := e.Delete(ctx, "t1", "c1", alice)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Empty(t, srv.Comments("t1"))

	list, err := e.Comments(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_FailedSubmitRollsBack(t *testing.T) {
	e, srv := newTestEngine(t, 2*time.Second)
	ctx := context.Background()
	_, err := e.OpenTrend(ctx, "t1")
	require.NoError(t, err)

	srv.FailWith(apitest.OpCreateComment, http.StatusInternalServerError)
	_, err = e.Submit(ctx, "t1", "will fail", nil, alice)
	assert.True(t, utils.IsErrorCode(err, utils.ErrServer), "got %v", err)

	list, err := e.Comments(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestEngine_VoteTrend(t *testing.T) {
	e, _ := newTestEngine(t, 2*time.Second)
	ctx := context.Background()
	_, err := e.LoadTrends(ctx)
	require.NoError(t, err)

	vote, err := e.VoteTrend(ctx, "t1", models.VoteUp, alice)
	require.NoError(t, err)
	assert.Equal(t, 4, vote.VoteScore)

	_, err = e.VoteTrend(ctx, "t1", models.VoteUp, models.Identity{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
}

func TestEngine_ClosedSessionIsStale(t *testing.T) {
	e, _ := newTestEngine(t, 2*time.Second)
	ctx := context.Background()

	_, err := e.Thread(ctx, "t1")
	assert.True(t, utils.IsErrorCode(err, utils.ErrStaleSession))

	_, err = e.OpenTrend(ctx, "t1")
	require.NoError(t, err)
	e.CloseTrend("t1")

	_, err = e.Submit(ctx, "t1", "late", nil, alice)
	assert.True(t, utils.IsErrorCode(err, utils.ErrStaleSession))
}

func TestEngine_CloseAnswersInFlightRequests(t *testing.T) {
	e, srv := newTestEngine(t, 2*time.Second)
	ctx := context.Background()
	_, err := e.OpenTrend(ctx, "t1")
	require.NoError(t, err)

	gate := srv.Block(apitest.OpCreateComment)
	defer gate.Release()

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, "t1", "in flight", nil, alice)
		errCh <- err
	}()
	select {
	case <-gate.Entered():
	case <-time.After(2 * time.Second):
		t.Fatal("submit never reached the server")
	}

	e.CloseTrend("t1")
	select {
	case err := <-errCh:
		assert.True(t, utils.IsErrorCode(err, utils.ErrStaleSession), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit was not answered after close")
	}
}

func TestEngine_ActorTimeout(t *testing.T) {
	e, srv := newTestEngine(t, 100*time.Millisecond)
	gate := srv.Block(apitest.OpFetchTrends)
	defer gate.Release()

	_, err := e.LoadTrends(context.Background())
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout), "got %v", err)
}

func TestEngine_OpenTrendRequiresID(t *testing.T) {
	e, _ := newTestEngine(t, time.Second)
	_, err := e.OpenTrend(context.Background(), "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}
