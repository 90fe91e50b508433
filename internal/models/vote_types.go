package models

// VoteDirection represents the direction of a vote request.
type VoteDirection string

const (
	VoteUp   VoteDirection = "upvote"
	VoteDown VoteDirection = "downvote"
)

// Valid reports whether d is one of the known directions.
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// UserVote is a user's current vote status on a comment or trend.
type UserVote string

const (
	Unvoted   UserVote = "none"
	Upvoted   UserVote = "upvoted"
	Downvoted UserVote = "downvoted"
)

// Normalize maps the empty value the server may omit to Unvoted.
func (v UserVote) Normalize() UserVote {
	switch v {
	case Upvoted, Downvoted:
		return v
	default:
		return Unvoted
	}
}

// SyncState tags a locally held record with its reconciliation status.
type SyncState string

const (
	Confirmed SyncState = ""
	Pending   SyncState = "pending"
	Failed    SyncState = "failed"
)
