package actors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptpal/internal/api"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

func loadTrends(t *testing.T, h *harness, trends ...models.Trend) []models.Trend {
	t.Helper()
	f := h.send(&LoadTrendsMsg{})
	h.backend.next(t, "fetch_trends").reply(fakeResult{trends: trends})
	return await(t, f).([]models.Trend)
}

func TestTrendFeed_Load(t *testing.T) {
	h := newFeedHarness(t)
	got := loadTrends(t, h,
		models.Trend{ID: "t2", Title: "Second"},
		models.Trend{ID: "t1", Title: "First"},
	)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID, "server order is kept")

	cached := h.ask(t, &GetTrendsMsg{}).([]models.Trend)
	assert.Equal(t, got, cached)
}

func TestTrendFeed_VoteFollowsToggleRules(t *testing.T) {
	h := newFeedHarness(t)
	loadTrends(t, h, models.Trend{ID: "t1", VoteScore: 5})

	steps := []struct {
		dir       models.VoteDirection
		wantScore int
		wantVote  models.UserVote
	}{
		{models.VoteUp, 6, models.Upvoted},
		{models.VoteDown, 4, models.Downvoted},
		{models.VoteDown, 5, models.Unvoted},
	}
	for _, step := range steps {
		f := h.send(&VoteTrendMsg{TrendID: "t1", Direction: step.dir, Voter: alice})
		call := h.backend.next(t, "vote_trend")
		assert.Equal(t, "t1", call.id)

		trends := h.ask(t, &GetTrendsMsg{}).([]models.Trend)
		assert.Equal(t, step.wantScore, trends[0].VoteScore, "optimistic score after %s", step.dir)
		assert.Equal(t, step.wantVote, trends[0].UserVote)
		assert.Equal(t, models.Pending, trends[0].SyncState)

		call.reply(fakeResult{vote: &api.VoteResponse{VoteScore: step.wantScore, UserVote: step.wantVote}})
		result := await(t, f).(*VoteResult)
		assert.Equal(t, step.wantScore, result.VoteScore)
	}
}

func TestTrendFeed_ServerOverwritesEstimate(t *testing.T) {
	h := newFeedHarness(t)
	loadTrends(t, h, models.Trend{ID: "t1", VoteScore: 5})

	f := h.send(&VoteTrendMsg{TrendID: "t1", Direction: models.VoteUp, Voter: alice})
	h.backend.next(t, "vote_trend").reply(fakeResult{vote: &api.VoteResponse{VoteScore: 9, UserVote: models.Upvoted}})
	await(t, f)

	trends := h.ask(t, &GetTrendsMsg{}).([]models.Trend)
	assert.Equal(t, 9, trends[0].VoteScore)
	assert.Equal(t, models.Confirmed, trends[0].SyncState)
}

func TestTrendFeed_VoteFailureRestores(t *testing.T) {
	h := newFeedHarness(t)
	loadTrends(t, h, models.Trend{ID: "t1", VoteScore: 5, Upvotes: []string{"bob"}})

	f := h.send(&VoteTrendMsg{TrendID: "t1", Direction: models.VoteUp, Voter: alice})
	h.backend.next(t, "vote_trend").fail(utils.ErrServer)
	requireCode(t, await(t, f), utils.ErrServer)

	trends := h.ask(t, &GetTrendsMsg{}).([]models.Trend)
	assert.Equal(t, 5, trends[0].VoteScore)
	assert.Equal(t, []string{"bob"}, trends[0].Upvotes)
	assert.Equal(t, models.Failed, trends[0].SyncState)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Rollbacks)
}

func TestTrendFeed_VoteFailureAfterReloadKeepsServerValues(t *testing.T) {
	h := newFeedHarness(t)
	loadTrends(t, h, models.Trend{ID: "t1", VoteScore: 5})

	f := h.send(&VoteTrendMsg{TrendID: "t1", Direction: models.VoteUp, Voter: alice})
	call := h.backend.next(t, "vote_trend")
	loadTrends(t, h, models.Trend{ID: "t1", VoteScore: 9})

	call.fail(utils.ErrNetwork)
	requireCode(t, await(t, f), utils.ErrNetwork)

	trends := h.ask(t, &GetTrendsMsg{}).([]models.Trend)
	assert.Equal(t, 9, trends[0].VoteScore)
	assert.Equal(t, models.Confirmed, trends[0].SyncState)
}

func TestTrendFeed_VotePreconditions(t *testing.T) {
	h := newFeedHarness(t)
	loadTrends(t, h, models.Trend{ID: "t1"})

	requireCode(t, h.ask(t, &VoteTrendMsg{TrendID: "t1", Direction: models.VoteUp}), utils.ErrUnauthorized)
	requireCode(t, h.ask(t, &VoteTrendMsg{TrendID: "t1", Direction: "meh", Voter: alice}), utils.ErrInvalidInput)
	requireCode(t, h.ask(t, &VoteTrendMsg{TrendID: "t9", Direction: models.VoteUp, Voter: alice}), utils.ErrNotFound)
	h.backend.idle(t)
}

func TestTrendFeed_StaleLoadIsDiscarded(t *testing.T) {
	h := newFeedHarness(t)

	older := h.send(&LoadTrendsMsg{})
	olderCall := h.backend.next(t, "fetch_trends")
	newer := h.send(&LoadTrendsMsg{})
	h.backend.next(t, "fetch_trends").reply(fakeResult{trends: []models.Trend{{ID: "new"}}})
	await(t, newer)

	olderCall.reply(fakeResult{trends: []models.Trend{{ID: "old"}}})
	got := await(t, older).([]models.Trend)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Discarded)
}
