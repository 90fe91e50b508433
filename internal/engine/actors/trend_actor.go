package actors

import (
	stdctx "context"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"promptpal/internal/api"
	"promptpal/internal/models"
	"promptpal/internal/utils"
	"promptpal/internal/voting"
)

// TrendsAPI is the part of the backend the trend feed talks to.
type TrendsAPI interface {
	FetchTrends(ctx stdctx.Context) ([]models.Trend, error)
	VoteTrend(ctx stdctx.Context, trendID string, dir models.VoteDirection) (*api.VoteResponse, error)
}

// Message types for TrendFeedActor
type (
	// LoadTrendsMsg replaces the feed with the server's. Replies []models.Trend.
	LoadTrendsMsg struct{}

	// GetTrendsMsg replies a copy of the feed.
	GetTrendsMsg struct{}

	// VoteTrendMsg casts a vote on a trend. Replies *VoteResult.
	VoteTrendMsg struct {
		TrendID   string
		Direction models.VoteDirection
		Voter     models.Identity
	}

	trendsLoadedMsg struct {
		request    uint64
		generation uint64
		trends     []models.Trend
		err        error
	}

	trendVotedMsg struct {
		request uint64
		prior   models.Trend
		applied voting.Tally
		voterID string
		resp    *api.VoteResponse
		err     error
	}
)

// TrendFeedActor owns the trends list and applies optimistic votes to it
// with the same rules as comment votes.
type TrendFeedActor struct {
	client   TrendsAPI
	metrics  *utils.MetricsCollector
	logger   *zap.Logger
	inflight *inflight

	trends            []models.Trend
	loadGeneration    uint64
	appliedGeneration uint64
}

func NewTrendFeedActor(client TrendsAPI, metrics *utils.MetricsCollector, logger *zap.Logger) actor.Actor {
	return &TrendFeedActor{
		client:   client,
		metrics:  metrics,
		logger:   logger,
		inflight: newInflight(metrics),
	}
}

func (a *TrendFeedActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug("trend feed started", zap.String("pid", context.Self().String()))

	case *actor.Stopping:
		a.inflight.close(context, utils.NewStaleSessionError("feed"))

	case *LoadTrendsMsg:
		a.loadGeneration++
		request := a.inflight.track(context, "load_trends")
		client, generation := a.client, a.loadGeneration
		a.inflight.run(context, func(ctx stdctx.Context) interface{} {
			trends, err := client.FetchTrends(ctx)
			return &trendsLoadedMsg{request: request, generation: generation, trends: trends, err: err}
		})

	case *GetTrendsMsg:
		context.Respond(copyTrends(a.trends))

	case *VoteTrendMsg:
		a.handleVote(context, msg)

	case *trendsLoadedMsg:
		a.handleLoaded(context, msg)

	case *trendVotedMsg:
		a.handleVoted(context, msg)
	}
}

func (a *TrendFeedActor) handleLoaded(context actor.Context, msg *trendsLoadedMsg) {
	if msg.generation <= a.appliedGeneration {
		a.metrics.IncrementDiscarded()
		a.inflight.finish(context, msg.request, copyTrends(a.trends))
		return
	}
	if msg.err != nil {
		a.logger.Warn("failed to load trends", zap.Error(msg.err))
		a.inflight.finish(context, msg.request, utils.AsAppError(msg.err))
		return
	}
	a.appliedGeneration = msg.generation
	a.trends = copyTrends(msg.trends)
	for i := range a.trends {
		a.trends[i].SyncState = models.Confirmed
	}
	a.inflight.finish(context, msg.request, copyTrends(a.trends))
}

func (a *TrendFeedActor) handleVote(context actor.Context, msg *VoteTrendMsg) {
	if msg.Voter.IsAnonymous() {
		context.Respond(utils.NewAuthRequiredError("vote"))
		return
	}
	if !msg.Direction.Valid() {
		context.Respond(utils.NewValidationError("unknown vote direction " + string(msg.Direction)))
		return
	}
	idx := findTrend(a.trends, msg.TrendID)
	if idx < 0 {
		context.Respond(utils.NewNotFoundError("Trend", msg.TrendID))
		return
	}

	prior := copyTrend(a.trends[idx])
	a.updateTrend(idx, func(t *models.Trend) {
		setTrendTally(t, trendTally(t).Apply(msg.Voter.ID, msg.Direction))
		t.SyncState = models.Pending
	})
	applied := trendTally(&a.trends[idx])

	request := a.inflight.track(context, "vote_trend")
	client, dir, voterID := a.client, msg.Direction, msg.Voter.ID
	a.inflight.run(context, func(ctx stdctx.Context) interface{} {
		resp, err := client.VoteTrend(ctx, prior.ID, dir)
		return &trendVotedMsg{request: request, prior: prior, applied: applied, voterID: voterID, resp: resp, err: err}
	})
}

func (a *TrendFeedActor) handleVoted(context actor.Context, msg *trendVotedMsg) {
	idx := findTrend(a.trends, msg.prior.ID)
	if msg.err != nil {
		// A reload or a later vote that touched the trend since owns its numbers.
		if idx >= 0 && a.trends[idx].SyncState == models.Pending && trendTally(&a.trends[idx]).Equal(msg.applied) {
			a.updateTrend(idx, func(t *models.Trend) {
				setTrendTally(t, trendTally(&msg.prior))
				t.SyncState = models.Failed
			})
		}
		a.metrics.IncrementRollbacks("vote_trend")
		a.logger.Warn("trend vote failed, restored", zap.String("trend", msg.prior.ID), zap.Error(msg.err))
		a.inflight.finish(context, msg.request, utils.AsAppError(msg.err))
		return
	}

	if idx >= 0 {
		a.updateTrend(idx, func(t *models.Trend) {
			setTrendTally(t, trendTally(t).Overwrite(msg.voterID, msg.resp.VoteScore, msg.resp.UserVote))
			t.SyncState = models.Confirmed
		})
	}
	a.inflight.finish(context, msg.request, &VoteResult{
		ID:        msg.prior.ID,
		VoteScore: msg.resp.VoteScore,
		UserVote:  msg.resp.UserVote.Normalize(),
	})
}

// updateTrend replaces the trend at idx with a mutated copy so slices handed
// out earlier never change.
func (a *TrendFeedActor) updateTrend(idx int, mutate func(*models.Trend)) {
	out := make([]models.Trend, len(a.trends))
	copy(out, a.trends)
	t := copyTrend(out[idx])
	mutate(&t)
	out[idx] = t
	a.trends = out
}

func findTrend(trends []models.Trend, id string) int {
	for i := range trends {
		if trends[i].ID == id {
			return i
		}
	}
	return -1
}

func trendTally(t *models.Trend) voting.Tally {
	return voting.Tally{Score: t.VoteScore, UserVote: t.UserVote, Upvotes: t.Upvotes, Downvotes: t.Downvotes}
}

func setTrendTally(t *models.Trend, tally voting.Tally) {
	t.VoteScore = tally.Score
	t.UserVote = tally.UserVote
	t.Upvotes = tally.Upvotes
	t.Downvotes = tally.Downvotes
}

func copyTrend(t models.Trend) models.Trend {
	if t.Upvotes != nil {
		t.Upvotes = append([]string(nil), t.Upvotes...)
	}
	if t.Downvotes != nil {
		t.Downvotes = append([]string(nil), t.Downvotes...)
	}
	return t
}

func copyTrends(trends []models.Trend) []models.Trend {
	out := make([]models.Trend, 0, len(trends))
	for _, t := range trends {
		out = append(out, copyTrend(t))
	}
	return out
}
