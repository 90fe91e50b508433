package commenttree

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"promptpal/internal/models"
	"promptpal/internal/utils"
	"promptpal/internal/voting"
)

// MaxContentLength bounds a comment body in runes.
const MaxContentLength = 10000

// PlaceholderPrefix marks ids generated locally for comments the server has
// not confirmed yet.
const PlaceholderPrefix = "pending-"

var (
	commentValidate = validator.New()
	contentRule     = fmt.Sprintf("required,max=%d", MaxContentLength)
)

// NewComment is the user's input for a comment or a reply.
type NewComment struct {
	Content  string
	ParentID *string
}

// AddComment appends a pending comment by author and returns the new list
// together with the pending record. The record's CorrelationToken identifies
// it when the server's answer arrives.
func AddComment(comments []models.Comment, in NewComment, author models.Identity, now time.Time) ([]models.Comment, models.Comment, error) {
	if author.IsAnonymous() {
		return comments, models.Comment{}, utils.NewAuthRequiredError("comment")
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := commentValidate.Var(in.Content, contentRule); err != nil {
		if in.Content == "" {
			return comments, models.Comment{}, utils.NewValidationError("comment content cannot be empty")
		}
		return comments, models.Comment{}, utils.NewAppError(utils.ErrInvalidInput,
			fmt.Sprintf("Invalid input: comment content is longer than %d characters", MaxContentLength), err)
	}

	token := uuid.NewString()
	pending := models.Comment{
		ID:                PlaceholderPrefix + token,
		Content:           in.Content,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		CreatedAt:         now,
		UpdatedAt:         now,
		UserVote:          models.Unvoted,
		SyncState:         models.Pending,
		CorrelationToken:  token,
	}
	if in.ParentID != nil && *in.ParentID != "" {
		parentID := *in.ParentID
		pending.ParentID = &parentID
	}

	out := make([]models.Comment, len(comments), len(comments)+1)
	copy(out, comments)
	out = append(out, pending)
	return out, pending, nil
}

// ConfirmComment swaps the pending record carrying token for the server's
// copy. If the confirmed id is already present, because a refresh delivered
// it first, the placeholder is dropped instead so only one copy remains.
// Replies written against the placeholder id are re-pointed at the real id.
func ConfirmComment(comments []models.Comment, token string, confirmed models.Comment) []models.Comment {
	confirmed = confirmed.Clone()
	confirmed.SyncState = models.Confirmed
	confirmed.CorrelationToken = ""

	placeholder := -1
	present := false
	for i := range comments {
		if comments[i].CorrelationToken == token && token != "" {
			placeholder = i
		} else if comments[i].ID == confirmed.ID {
			present = true
		}
	}

	out := make([]models.Comment, 0, len(comments)+1)
	var placeholderID string
	for i := range comments {
		if i == placeholder {
			placeholderID = comments[i].ID
			if !present {
				out = append(out, confirmed)
			}
			continue
		}
		out = append(out, comments[i])
	}
	if placeholder < 0 && !present {
		out = append(out, confirmed)
	}

	if placeholderID != "" {
		for i := range out {
			if out[i].ParentID != nil && *out[i].ParentID == placeholderID {
				c := out[i].Clone()
				*c.ParentID = confirmed.ID
				out[i] = c
			}
		}
	}
	return out
}

// RemoveByToken rolls back a failed submit: the pending record carrying token
// and anything replying to it are removed.
func RemoveByToken(comments []models.Comment, token string) []models.Comment {
	if idx := FindToken(comments, token); idx >= 0 {
		return DeleteComment(comments, comments[idx].ID)
	}
	return comments
}

// FindToken returns the index of the pending record carrying token, or -1.
func FindToken(comments []models.Comment, token string) int {
	if token == "" {
		return -1
	}
	for i := range comments {
		if comments[i].CorrelationToken == token {
			return i
		}
	}
	return -1
}

// Descendants returns id and every comment whose parent chain reaches it.
// The result is empty when id is not in the list.
func Descendants(comments []models.Comment, id string) map[string]bool {
	set := make(map[string]bool)
	children := make(map[string][]string, len(comments))
	found := false
	for i := range comments {
		c := &comments[i]
		if c.ID == id {
			found = true
		}
		if c.HasParent() {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}
	if !found {
		return set
	}

	set[id] = true
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if set[child] {
				continue
			}
			set[child] = true
			queue = append(queue, child)
		}
	}
	return set
}

// DeleteComment removes id and all of its descendants. Deleting an id that is
// not present returns the list unchanged.
func DeleteComment(comments []models.Comment, id string) []models.Comment {
	out, _ := Prune(comments, id)
	return out
}

// Prune is DeleteComment that also returns the removed records so that a
// rejected delete can be undone with Restore.
func Prune(comments []models.Comment, id string) ([]models.Comment, []models.Comment) {
	doomed := Descendants(comments, id)
	if len(doomed) == 0 {
		return comments, nil
	}
	kept := make([]models.Comment, 0, len(comments)-len(doomed))
	removed := make([]models.Comment, 0, len(doomed))
	for i := range comments {
		if doomed[comments[i].ID] {
			removed = append(removed, comments[i])
			continue
		}
		kept = append(kept, comments[i])
	}
	return kept, removed
}

// Restore puts back records removed by Prune, skipping ids that reappeared in
// the meantime.
func Restore(comments []models.Comment, removed []models.Comment) []models.Comment {
	if len(removed) == 0 {
		return comments
	}
	present := make(map[string]bool, len(comments))
	for i := range comments {
		present[comments[i].ID] = true
	}
	out := make([]models.Comment, len(comments), len(comments)+len(removed))
	copy(out, comments)
	for _, c := range removed {
		if !present[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the index of id, or -1.
func Find(comments []models.Comment, id string) int {
	for i := range comments {
		if comments[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyVote casts userID's vote on id using the shared voting rules and marks
// the record pending until the server answers.
func ApplyVote(comments []models.Comment, id string, dir models.VoteDirection, userID string) ([]models.Comment, error) {
	if userID == "" {
		return comments, utils.NewAuthRequiredError("vote")
	}
	if !dir.Valid() {
		return comments, utils.NewValidationError("unknown vote direction " + string(dir))
	}
	idx := Find(comments, id)
	if idx < 0 {
		return comments, utils.NewNotFoundError("Comment", id)
	}
	return replaceAt(comments, idx, func(c *models.Comment) {
		setTally(c, tallyOf(c).Apply(userID, dir))
		c.SyncState = models.Pending
	}), nil
}

// SetVoteState overwrites the local vote estimate of id with the server's
// values. Unknown ids leave the list unchanged.
func SetVoteState(comments []models.Comment, id string, userID string, score int, userVote models.UserVote) []models.Comment {
	idx := Find(comments, id)
	if idx < 0 {
		return comments
	}
	return replaceAt(comments, idx, func(c *models.Comment) {
		setTally(c, tallyOf(c).Overwrite(userID, score, userVote))
		c.SyncState = models.Confirmed
	})
}

// RestoreVote puts back the vote fields of prior after a failed vote and
// tags the record as failed. applied is the record as the vote left it; if
// the record has changed since, a reload or a later vote owns it and it is
// left alone.
func RestoreVote(comments []models.Comment, prior, applied models.Comment) []models.Comment {
	idx := Find(comments, prior.ID)
	if idx < 0 {
		return comments
	}
	if cur := &comments[idx]; cur.SyncState != models.Pending || !tallyOf(cur).Equal(tallyOf(&applied)) {
		return comments
	}
	return replaceAt(comments, idx, func(c *models.Comment) {
		setTally(c, tallyOf(&prior))
		c.SyncState = models.Failed
	})
}

// Rebase builds the list that follows a wholesale refresh: the server's
// records, plus local comments still waiting for confirmation, minus the
// subtrees of deletes still in flight.
func Rebase(server []models.Comment, local []models.Comment, deleting []string) []models.Comment {
	out := make([]models.Comment, 0, len(server))
	for i := range server {
		c := server[i].Clone()
		c.SyncState = models.Confirmed
		c.CorrelationToken = ""
		out = append(out, c)
	}
	for i := range local {
		if local[i].SyncState == models.Pending && local[i].CorrelationToken != "" {
			out = append(out, local[i])
		}
	}
	for _, id := range deleting {
		out = DeleteComment(out, id)
	}
	return out
}

func replaceAt(comments []models.Comment, idx int, mutate func(*models.Comment)) []models.Comment {
	out := make([]models.Comment, len(comments))
	copy(out, comments)
	c := out[idx].Clone()
	mutate(&c)
	out[idx] = c
	return out
}

func tallyOf(c *models.Comment) voting.Tally {
	return voting.Tally{
		Score:     c.VoteScore,
		UserVote:  c.UserVote,
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
	}
}

func setTally(c *models.Comment, t voting.Tally) {
	c.VoteScore = t.Score
	c.UserVote = t.UserVote
	c.Upvotes = t.Upvotes
	c.Downvotes = t.Downvotes
}
