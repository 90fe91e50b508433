package actors

import (
	stdctx "context"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"promptpal/internal/api"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

const waitFor = 2 * time.Second

// fakeCall is one backend request held until the test answers it.
type fakeCall struct {
	op      string
	id      string
	body    api.CreateCommentRequest
	dir     models.VoteDirection
	respond chan fakeResult
}

type fakeResult struct {
	comments []models.Comment
	comment  *models.Comment
	trends   []models.Trend
	vote     *api.VoteResponse
	ok       bool
	err      error
}

func (c *fakeCall) reply(r fakeResult) { c.respond <- r }

func (c *fakeCall) fail(code string) {
	c.respond <- fakeResult{err: utils.NewAppError(code, c.op+" failed", nil)}
}

// fakeBackend hands every request to the test through calls.
type fakeBackend struct {
	calls chan *fakeCall
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(chan *fakeCall, 16)}
}

func (f *fakeBackend) do(ctx stdctx.Context, c *fakeCall) fakeResult {
	c.respond = make(chan fakeResult, 1)
	select {
	case f.calls <- c:
	case <-ctx.Done():
		return fakeResult{err: ctx.Err()}
	}
	select {
	case r := <-c.respond:
		return r
	case <-ctx.Done():
		return fakeResult{err: ctx.Err()}
	}
}

func (f *fakeBackend) next(t *testing.T, op string) *fakeCall {
	t.Helper()
	select {
	case c := <-f.calls:
		require.Equal(t, op, c.op)
		return c
	case <-time.After(waitFor):
		t.Fatalf("no %s request arrived", op)
		return nil
	}
}

func (f *fakeBackend) idle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s request", c.op)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fakeBackend) FetchComments(ctx stdctx.Context, trendID string) ([]models.Comment, error) {
	r := f.do(ctx, &fakeCall{op: "fetch_comments", id: trendID})
	return r.comments, r.err
}

func (f *fakeBackend) CreateComment(ctx stdctx.Context, trendID string, req api.CreateCommentRequest) (*models.Comment, error) {
	r := f.do(ctx, &fakeCall{op: "create_comment", id: trendID, body: req})
	return r.comment, r.err
}

func (f *fakeBackend) DeleteComment(ctx stdctx.Context, commentID string) (bool, error) {
	r := f.do(ctx, &fakeCall{op: "delete_comment", id: commentID})
	return r.ok, r.err
}

func (f *fakeBackend) VoteComment(ctx stdctx.Context, commentID string, dir models.VoteDirection) (*api.VoteResponse, error) {
	r := f.do(ctx, &fakeCall{op: "vote_comment", id: commentID, dir: dir})
	return r.vote, r.err
}

func (f *fakeBackend) FetchTrends(ctx stdctx.Context) ([]models.Trend, error) {
	r := f.do(ctx, &fakeCall{op: "fetch_trends"})
	return r.trends, r.err
}

func (f *fakeBackend) VoteTrend(ctx stdctx.Context, trendID string, dir models.VoteDirection) (*api.VoteResponse, error) {
	r := f.do(ctx, &fakeCall{op: "vote_trend", id: trendID, dir: dir})
	return r.vote, r.err
}

type harness struct {
	system  *actor.ActorSystem
	backend *fakeBackend
	metrics *utils.MetricsCollector
	pid     *actor.PID
}

func newSessionHarness(t *testing.T) *harness {
	h := &harness{
		system:  actor.NewActorSystem(),
		backend: newFakeBackend(),
		metrics: utils.NewMetricsCollector(),
	}
	logger := zaptest.NewLogger(t)
	h.pid = h.system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewCommentSessionActor("trend-1", h.backend, h.metrics, logger)
	}))
	t.Cleanup(func() { h.system.Root.StopFuture(h.pid).Wait() })
	return h
}

func newFeedHarness(t *testing.T) *harness {
	h := &harness{
		system:  actor.NewActorSystem(),
		backend: newFakeBackend(),
		metrics: utils.NewMetricsCollector(),
	}
	logger := zaptest.NewLogger(t)
	h.pid = h.system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTrendFeedActor(h.backend, h.metrics, logger)
	}))
	t.Cleanup(func() { h.system.Root.StopFuture(h.pid).Wait() })
	return h
}

func (h *harness) send(msg interface{}) *actor.Future {
	return h.system.Root.RequestFuture(h.pid, msg, waitFor)
}

// ask sends msg and returns the reply, failing on timeouts but not on
// AppError replies.
func (h *harness) ask(t *testing.T, msg interface{}) interface{} {
	t.Helper()
	result, err := h.send(msg).Result()
	require.NoError(t, err)
	return result
}

func await(t *testing.T, f *actor.Future) interface{} {
	t.Helper()
	result, err := f.Result()
	require.NoError(t, err)
	return result
}

func requireCode(t *testing.T, result interface{}, code string) {
	t.Helper()
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok, "expected *utils.AppError, got %T (%v)", result, result)
	require.Equal(t, code, appErr.Code, appErr.Error())
}

func (h *harness) comments(t *testing.T) []models.Comment {
	t.Helper()
	return h.ask(t, &GetCommentsMsg{}).([]models.Comment)
}

var (
	alice = models.Identity{ID: "alice", DisplayName: "Alice"}
	base  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func comment(id, parent string, minute int) models.Comment {
	c := models.Comment{
		ID:                id,
		TrendID:           "trend-1",
		Content:           "comment " + id,
		AuthorID:          "author-" + id,
		AuthorDisplayName: "user" + id,
		CreatedAt:         base.Add(time.Duration(minute) * time.Minute),
	}
	if parent != "" {
		c.ParentID = &parent
	}
	return c
}

// load seeds the session with list through a completed load.
func (h *harness) load(t *testing.T, list ...models.Comment) {
	t.Helper()
	f := h.send(&LoadCommentsMsg{})
	h.backend.next(t, "fetch_comments").reply(fakeResult{comments: list})
	await(t, f)
}

func commentIDs(list []models.Comment) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}
