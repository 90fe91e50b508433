package actors

import (
	stdctx "context"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"promptpal/internal/api"
	"promptpal/internal/commenttree"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// CommentsAPI is the part of the backend a comment session talks to.
type CommentsAPI interface {
	FetchComments(ctx stdctx.Context, trendID string) ([]models.Comment, error)
	CreateComment(ctx stdctx.Context, trendID string, req api.CreateCommentRequest) (*models.Comment, error)
	DeleteComment(ctx stdctx.Context, commentID string) (bool, error)
	VoteComment(ctx stdctx.Context, commentID string, dir models.VoteDirection) (*api.VoteResponse, error)
}

// Message types for CommentSessionActor
type (
	// LoadCommentsMsg replaces the list with the server's. Replies *commenttree.Forest.
	LoadCommentsMsg struct{}

	// SubmitCommentMsg adds a comment, or a reply when ParentID is set. Replies *SubmitResult.
	SubmitCommentMsg struct {
		Content  string
		ParentID *string
		Author   models.Identity
	}

	// DeleteCommentMsg removes a comment and its replies. Replies *DeleteResult.
	DeleteCommentMsg struct {
		CommentID string
		Actor     models.Identity
	}

	// VoteCommentMsg casts a vote on a comment. Replies *VoteResult.
	VoteCommentMsg struct {
		CommentID string
		Direction models.VoteDirection
		Voter     models.Identity
	}

	// GetThreadMsg replies the current *commenttree.Forest.
	GetThreadMsg struct{}

	// GetCommentsMsg replies a copy of the flat list.
	GetCommentsMsg struct{}

	commentsLoadedMsg struct {
		request    uint64
		generation uint64
		comments   []models.Comment
		err        error
	}

	commentSubmittedMsg struct {
		request uint64
		token   string
		comment *models.Comment
		err     error
	}

	commentDeletedMsg struct {
		request   uint64
		commentID string
		success   bool
		err       error
	}

	commentVotedMsg struct {
		request uint64
		prior   models.Comment
		applied models.Comment
		voterID string
		resp    *api.VoteResponse
		err     error
	}
)

// SubmitResult is the server's copy of a submitted comment.
type SubmitResult struct {
	Comment models.Comment
}

// DeleteResult reports a finished delete. Removed is zero when the comment
// was not in the list.
type DeleteResult struct {
	CommentID string
	Removed   int
}

// VoteResult is the authoritative vote state after a vote.
type VoteResult struct {
	ID        string
	VoteScore int
	UserVote  models.UserVote
}

// CommentSessionActor owns the comment list of one trend. Local mutations are
// applied in mailbox order, the network call runs off the actor, and its
// result is reconciled by comment id or correlation token.
type CommentSessionActor struct {
	trendID  string
	client   CommentsAPI
	metrics  *utils.MetricsCollector
	logger   *zap.Logger
	inflight *inflight

	comments []models.Comment
	// deleting maps a comment id to the records its in-flight delete removed
	deleting map[string][]models.Comment

	loadGeneration    uint64
	appliedGeneration uint64
}

func NewCommentSessionActor(trendID string, client CommentsAPI, metrics *utils.MetricsCollector, logger *zap.Logger) actor.Actor {
	return &CommentSessionActor{
		trendID:  trendID,
		client:   client,
		metrics:  metrics,
		logger:   logger.With(zap.String("trend", trendID)),
		inflight: newInflight(metrics),
		deleting: make(map[string][]models.Comment),
	}
}

func (a *CommentSessionActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug("comment session started", zap.String("pid", context.Self().String()))

	case *actor.Stopping:
		a.logger.Debug("comment session stopping", zap.Int("inflight", a.inflight.size()))
		a.inflight.close(context, utils.NewStaleSessionError(a.trendID))

	case *LoadCommentsMsg:
		a.handleLoad(context)

	case *SubmitCommentMsg:
		a.handleSubmit(context, msg)

	case *DeleteCommentMsg:
		a.handleDelete(context, msg)

	case *VoteCommentMsg:
		a.handleVote(context, msg)

	case *GetThreadMsg:
		context.Respond(commenttree.BuildTree(a.comments))

	case *GetCommentsMsg:
		out := make([]models.Comment, 0, len(a.comments))
		for i := range a.comments {
			out = append(out, a.comments[i].Clone())
		}
		context.Respond(out)

	case *commentsLoadedMsg:
		a.handleLoaded(context, msg)

	case *commentSubmittedMsg:
		a.handleSubmitted(context, msg)

	case *commentDeletedMsg:
		a.handleDeleted(context, msg)

	case *commentVotedMsg:
		a.handleVoted(context, msg)
	}
}

func (a *CommentSessionActor) handleLoad(context actor.Context) {
	a.loadGeneration++
	generation := a.loadGeneration
	request := a.inflight.track(context, "load_comments")

	client, trendID := a.client, a.trendID
	a.inflight.run(context, func(ctx stdctx.Context) interface{} {
		comments, err := client.FetchComments(ctx, trendID)
		return &commentsLoadedMsg{request: request, generation: generation, comments: comments, err: err}
	})
}

func (a *CommentSessionActor) handleLoaded(context actor.Context, msg *commentsLoadedMsg) {
	if msg.generation <= a.appliedGeneration {
		// A newer load already landed.
		a.metrics.IncrementDiscarded()
		a.logger.Debug("discarding stale comment load",
			zap.Uint64("generation", msg.generation), zap.Uint64("applied", a.appliedGeneration))
		a.inflight.finish(context, msg.request, commenttree.BuildTree(a.comments))
		return
	}
	if msg.err != nil {
		a.logger.Warn("failed to load comments", zap.Error(msg.err))
		a.inflight.finish(context, msg.request, utils.AsAppError(msg.err))
		return
	}

	a.appliedGeneration = msg.generation
	deleting := make([]string, 0, len(a.deleting))
	for id := range a.deleting {
		deleting = append(deleting, id)
	}
	a.comments = commenttree.Rebase(msg.comments, a.comments, deleting)

	forest := commenttree.BuildTree(a.comments)
	if forest.Dropped > 0 {
		a.logger.Info("dropped invalid comments", zap.Int("dropped", forest.Dropped), zap.Int("total", forest.Total))
	}
	a.inflight.finish(context, msg.request, forest)
}

func (a *CommentSessionActor) handleSubmit(context actor.Context, msg *SubmitCommentMsg) {
	if msg.ParentID != nil && strings.HasPrefix(*msg.ParentID, commenttree.PlaceholderPrefix) && !msg.Author.IsAnonymous() {
		context.Respond(utils.NewValidationError("cannot reply to a comment that is still being posted"))
		return
	}

	comments, pending, err := commenttree.AddComment(a.comments,
		commenttree.NewComment{Content: msg.Content, ParentID: msg.ParentID}, msg.Author, time.Now().UTC())
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	a.comments = comments
	a.logger.Debug("comment pending", zap.String("placeholder", pending.ID))

	request := a.inflight.track(context, "submit_comment")
	client, trendID, token := a.client, a.trendID, pending.CorrelationToken
	body := api.CreateCommentRequest{Content: pending.Content, ParentID: pending.ParentID}
	a.inflight.run(context, func(ctx stdctx.Context) interface{} {
		created, err := client.CreateComment(ctx, trendID, body)
		return &commentSubmittedMsg{request: request, token: token, comment: created, err: err}
	})
}

func (a *CommentSessionActor) handleSubmitted(context actor.Context, msg *commentSubmittedMsg) {
	// A delete of the parent may have pruned the placeholder. It is settled
	// inside that delete's records so a rejected delete restores the outcome.
	held, inDelete := a.heldByDelete(msg.token)

	if msg.err != nil {
		if inDelete {
			a.deleting[held] = commenttree.RemoveByToken(a.deleting[held], msg.token)
		} else {
			a.comments = commenttree.RemoveByToken(a.comments, msg.token)
		}
		a.metrics.IncrementRollbacks("submit_comment")
		a.logger.Warn("comment submit failed, rolled back", zap.Error(msg.err))
		a.inflight.finish(context, msg.request, utils.AsAppError(msg.err))
		return
	}

	switch {
	case inDelete:
		a.deleting[held] = commenttree.ConfirmComment(a.deleting[held], msg.token, *msg.comment)
	case commenttree.FindToken(a.comments, msg.token) >= 0:
		a.comments = commenttree.ConfirmComment(a.comments, msg.token, *msg.comment)
	default:
		a.logger.Debug("confirmed comment was deleted with its parent", zap.String("comment", msg.comment.ID))
	}
	confirmed := msg.comment.Clone()
	confirmed.SyncState = models.Confirmed
	a.inflight.finish(context, msg.request, &SubmitResult{Comment: confirmed})
}

// heldByDelete returns the id of the in-flight delete whose removed records
// hold the placeholder carrying token.
func (a *CommentSessionActor) heldByDelete(token string) (string, bool) {
	for id, removed := range a.deleting {
		if commenttree.FindToken(removed, token) >= 0 {
			return id, true
		}
	}
	return "", false
}

func (a *CommentSessionActor) handleDelete(context actor.Context, msg *DeleteCommentMsg) {
	if msg.Actor.IsAnonymous() {
		context.Respond(utils.NewAuthRequiredError("delete a comment"))
		return
	}
	if strings.HasPrefix(msg.CommentID, commenttree.PlaceholderPrefix) {
		context.Respond(utils.NewValidationError("cannot delete a comment that is still being posted"))
		return
	}

	kept, removed := commenttree.Prune(a.comments, msg.CommentID)
	if len(removed) == 0 {
		context.Respond(&DeleteResult{CommentID: msg.CommentID})
		return
	}
	a.comments = kept
	a.deleting[msg.CommentID] = removed

	request := a.inflight.track(context, "delete_comment")
	client, id := a.client, msg.CommentID
	a.inflight.run(context, func(ctx stdctx.Context) interface{} {
		ok, err := client.DeleteComment(ctx, id)
		return &commentDeletedMsg{request: request, commentID: id, success: ok, err: err}
	})
}

func (a *CommentSessionActor) handleDeleted(context actor.Context, msg *commentDeletedMsg) {
	removed := a.deleting[msg.commentID]
	delete(a.deleting, msg.commentID)

	err := msg.err
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		// Already gone on the server.
		err = nil
	} else if err == nil && !msg.success {
		err = utils.NewAppError(utils.ErrServer, "Server refused to delete comment "+msg.commentID, nil)
	}

	if err != nil {
		a.comments = commenttree.Restore(a.comments, removed)
		a.metrics.IncrementRollbacks("delete_comment")
		a.logger.Warn("comment delete failed, restored", zap.String("comment", msg.commentID),
			zap.Int("restored", len(removed)), zap.Error(err))
		a.inflight.finish(context, msg.request, utils.AsAppError(err))
		return
	}
	a.inflight.finish(context, msg.request, &DeleteResult{CommentID: msg.commentID, Removed: len(removed)})
}

func (a *CommentSessionActor) handleVote(context actor.Context, msg *VoteCommentMsg) {
	if strings.HasPrefix(msg.CommentID, commenttree.PlaceholderPrefix) && !msg.Voter.IsAnonymous() {
		context.Respond(utils.NewValidationError("cannot vote on a comment that is still being posted"))
		return
	}

	var prior models.Comment
	if idx := commenttree.Find(a.comments, msg.CommentID); idx >= 0 {
		prior = a.comments[idx].Clone()
	}
	comments, err := commenttree.ApplyVote(a.comments, msg.CommentID, msg.Direction, msg.Voter.ID)
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	a.comments = comments
	applied := a.comments[commenttree.Find(a.comments, msg.CommentID)].Clone()

	request := a.inflight.track(context, "vote_comment")
	client, id, dir, voterID := a.client, msg.CommentID, msg.Direction, msg.Voter.ID
	a.inflight.run(context, func(ctx stdctx.Context) interface{} {
		resp, err := client.VoteComment(ctx, id, dir)
		return &commentVotedMsg{request: request, prior: prior, applied: applied, voterID: voterID, resp: resp, err: err}
	})
}

func (a *CommentSessionActor) handleVoted(context actor.Context, msg *commentVotedMsg) {
	if msg.err != nil {
		a.comments = commenttree.RestoreVote(a.comments, msg.prior, msg.applied)
		a.metrics.IncrementRollbacks("vote_comment")
		a.logger.Warn("comment vote failed, restored", zap.String("comment", msg.prior.ID), zap.Error(msg.err))
		a.inflight.finish(context, msg.request, utils.AsAppError(msg.err))
		return
	}

	a.comments = commenttree.SetVoteState(a.comments, msg.prior.ID, msg.voterID, msg.resp.VoteScore, msg.resp.UserVote)
	a.inflight.finish(context, msg.request, &VoteResult{
		ID:        msg.prior.ID,
		VoteScore: msg.resp.VoteScore,
		UserVote:  msg.resp.UserVote.Normalize(),
	})
}
