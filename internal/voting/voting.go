// Package voting holds the upvote/downvote rules shared by comments and trends.
//
// A vote in the same direction as the user's current vote retracts it, a vote
// in the opposite direction flips it, and a first vote adds it. The flip moves
// the score by two. That delta is only the local estimate: the backend's
// voteScore always replaces it once the round trip completes.
package voting

import (
	"slices"

	"promptpal/internal/models"
)

// Toggle returns the user's next vote status and the score delta for casting
// dir when their current status is prior.
func Toggle(prior models.UserVote, dir models.VoteDirection) (models.UserVote, int) {
	prior = prior.Normalize()
	switch dir {
	case models.VoteUp:
		switch prior {
		case models.Upvoted:
			return models.Unvoted, -1
		case models.Downvoted:
			return models.Upvoted, 2
		default:
			return models.Upvoted, 1
		}
	case models.VoteDown:
		switch prior {
		case models.Downvoted:
			return models.Unvoted, 1
		case models.Upvoted:
			return models.Downvoted, -2
		default:
			return models.Downvoted, -1
		}
	}
	return prior, 0
}

// Tally is the vote-bearing part of a comment or trend.
type Tally struct {
	Score     int
	UserVote  models.UserVote
	Upvotes   []string
	Downvotes []string
}

// Resolve returns userID's current vote. Voter lists win when the server sent
// them; otherwise the per-user status is used.
func (t Tally) Resolve(userID string) models.UserVote {
	if len(t.Upvotes) > 0 || len(t.Downvotes) > 0 {
		switch {
		case slices.Contains(t.Upvotes, userID):
			return models.Upvoted
		case slices.Contains(t.Downvotes, userID):
			return models.Downvoted
		default:
			return models.Unvoted
		}
	}
	return t.UserVote.Normalize()
}

// Apply casts dir for userID and returns the new tally. The receiver's slices
// are never modified.
func (t Tally) Apply(userID string, dir models.VoteDirection) Tally {
	next, delta := Toggle(t.Resolve(userID), dir)
	return t.with(userID, t.Score+delta, next)
}

// Overwrite replaces the local estimate with the server's authoritative score
// and vote status for userID.
func (t Tally) Overwrite(userID string, score int, userVote models.UserVote) Tally {
	return t.with(userID, score, userVote.Normalize())
}

// Equal reports whether both tallies carry the same score, status and voter
// lists.
func (t Tally) Equal(o Tally) bool {
	return t.Score == o.Score && t.UserVote == o.UserVote &&
		slices.Equal(t.Upvotes, o.Upvotes) && slices.Equal(t.Downvotes, o.Downvotes)
}

func (t Tally) with(userID string, score int, vote models.UserVote) Tally {
	out := Tally{
		Score:     score,
		UserVote:  vote,
		Upvotes:   without(t.Upvotes, userID),
		Downvotes: without(t.Downvotes, userID),
	}
	switch vote {
	case models.Upvoted:
		out.Upvotes = append(out.Upvotes, userID)
	case models.Downvoted:
		out.Downvotes = append(out.Downvotes, userID)
	}
	return out
}

func without(ids []string, id string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
