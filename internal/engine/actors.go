package engine

import (
	"context"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promptpal/internal/commenttree"
	"promptpal/internal/config"
	"promptpal/internal/engine/actors"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// Backend is everything the engine's actors need from the REST API.
type Backend interface {
	actors.CommentsAPI
	actors.TrendsAPI
}

// Engine coordinates communication between actors: one comment session per
// open trend plus the trend feed.
type Engine struct {
	system  *actor.ActorSystem
	client  Backend
	metrics *utils.MetricsCollector
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*actor.PID
	feed     *actor.PID
}

func NewEngine(system *actor.ActorSystem, client Backend, metrics *utils.MetricsCollector, logger *zap.Logger, cfg *config.EngineConfig) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig().Engine
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		system:   system,
		client:   client,
		metrics:  metrics,
		logger:   logger,
		timeout:  cfg.ActorTimeout,
		sessions: make(map[string]*actor.PID),
	}

	// Spawn trend feed actor
	feedProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewTrendFeedActor(client, metrics, logger.Named("feed"))
	})
	e.feed = system.Root.Spawn(feedProps)
	return e
}

// OpenTrend starts, or reuses, the session for trendID and loads the trend
// feed and the trend's comments concurrently.
func (e *Engine) OpenTrend(ctx context.Context, trendID string) (*commenttree.Forest, error) {
	if trendID == "" {
		return nil, utils.NewValidationError("trend id is required")
	}

	e.mu.Lock()
	if _, ok := e.sessions[trendID]; !ok {
		props := actor.PropsFromProducer(func() actor.Actor {
			return actors.NewCommentSessionActor(trendID, e.client, e.metrics, e.logger.Named("session"))
		})
		e.sessions[trendID] = e.system.Root.Spawn(props)
		e.logger.Info("opened trend session", zap.String("trend", trendID))
	}
	e.mu.Unlock()

	var forest *commenttree.Forest
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.LoadTrends(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		forest, err = e.RefreshComments(gctx, trendID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forest, nil
}

// CloseTrend stops the session of trendID. Callers still waiting on it get
// a stale-session error and late network results are dropped.
func (e *Engine) CloseTrend(trendID string) {
	e.mu.Lock()
	pid, ok := e.sessions[trendID]
	delete(e.sessions, trendID)
	e.mu.Unlock()

	if ok {
		e.system.Root.StopFuture(pid).Wait()
		e.logger.Info("closed trend session", zap.String("trend", trendID))
	}
}

// Shutdown closes every session and the trend feed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.CloseTrend(id)
	}
	e.system.Root.StopFuture(e.feed).Wait()
}

// RefreshComments reloads the trend's comments from the server.
func (e *Engine) RefreshComments(ctx context.Context, trendID string) (*commenttree.Forest, error) {
	result, err := e.requestSession(ctx, trendID, &actors.LoadCommentsMsg{})
	if err != nil {
		return nil, err
	}
	return result.(*commenttree.Forest), nil
}

// Thread returns the current comment forest of an open trend.
func (e *Engine) Thread(ctx context.Context, trendID string) (*commenttree.Forest, error) {
	result, err := e.requestSession(ctx, trendID, &actors.GetThreadMsg{})
	if err != nil {
		return nil, err
	}
	return result.(*commenttree.Forest), nil
}

// Comments returns a copy of the flat comment list of an open trend.
func (e *Engine) Comments(ctx context.Context, trendID string) ([]models.Comment, error) {
	result, err := e.requestSession(ctx, trendID, &actors.GetCommentsMsg{})
	if err != nil {
		return nil, err
	}
	return result.([]models.Comment), nil
}

// Submit posts a comment, or a reply when parentID is set, and returns the
// server's copy.
func (e *Engine) Submit(ctx context.Context, trendID, content string, parentID *string, author models.Identity) (models.Comment, error) {
	startTime := time.Now()
	result, err := e.requestSession(ctx, trendID, &actors.SubmitCommentMsg{
		Content:  content,
		ParentID: parentID,
		Author:   author,
	})
	e.metrics.AddOperationLatency("engine_submit", time.Since(startTime))
	if err != nil {
		return models.Comment{}, err
	}
	return result.(*actors.SubmitResult).Comment, nil
}

// Delete removes a comment and its replies, returning how many records went.
func (e *Engine) Delete(ctx context.Context, trendID, commentID string, actorIdentity models.Identity) (int, error) {
	result, err := e.requestSession(ctx, trendID, &actors.DeleteCommentMsg{
		CommentID: commentID,
		Actor:     actorIdentity,
	})
	if err != nil {
		return 0, err
	}
	return result.(*actors.DeleteResult).Removed, nil
}

// Vote casts voter's vote on a comment.
func (e *Engine) Vote(ctx context.Context, trendID, commentID string, dir models.VoteDirection, voter models.Identity) (*actors.VoteResult, error) {
	result, err := e.requestSession(ctx, trendID, &actors.VoteCommentMsg{
		CommentID: commentID,
		Direction: dir,
		Voter:     voter,
	})
	if err != nil {
		return nil, err
	}
	return result.(*actors.VoteResult), nil
}

// LoadTrends reloads the trend feed from the server.
func (e *Engine) LoadTrends(ctx context.Context) ([]models.Trend, error) {
	result, err := e.request(ctx, e.feed, "TrendFeedActor", &actors.LoadTrendsMsg{})
	if err != nil {
		return nil, err
	}
	return result.([]models.Trend), nil
}

// Trends returns the trend feed as last loaded.
func (e *Engine) Trends(ctx context.Context) ([]models.Trend, error) {
	result, err := e.request(ctx, e.feed, "TrendFeedActor", &actors.GetTrendsMsg{})
	if err != nil {
		return nil, err
	}
	return result.([]models.Trend), nil
}

// VoteTrend casts voter's vote on a trend.
func (e *Engine) VoteTrend(ctx context.Context, trendID string, dir models.VoteDirection, voter models.Identity) (*actors.VoteResult, error) {
	result, err := e.request(ctx, e.feed, "TrendFeedActor", &actors.VoteTrendMsg{
		TrendID:   trendID,
		Direction: dir,
		Voter:     voter,
	})
	if err != nil {
		return nil, err
	}
	return result.(*actors.VoteResult), nil
}

func (e *Engine) requestSession(ctx context.Context, trendID string, msg interface{}) (interface{}, error) {
	e.mu.Lock()
	pid, ok := e.sessions[trendID]
	e.mu.Unlock()
	if !ok {
		return nil, utils.NewStaleSessionError(trendID)
	}
	return e.request(ctx, pid, "CommentSessionActor", msg)
}

// request sends msg to pid and waits for the reply. AppError replies are
// returned as errors.
func (e *Engine) request(ctx context.Context, pid *actor.PID, name string, msg interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.NewActorTimeoutError(name, err)
	}
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, utils.NewActorTimeoutError(name, context.DeadlineExceeded)
	}

	future := e.system.Root.RequestFuture(pid, msg, timeout)
	result, err := future.Result()
	if err != nil {
		e.logger.Warn("actor request failed", zap.String("actor", name), zap.Error(err))
		return nil, utils.NewActorTimeoutError(name, err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}
