package models

import (
	"time"
)

// Trend is a community post that comments are attached to.
type Trend struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	CreatedAt         time.Time `json:"createdAt"`
	VoteScore         int       `json:"voteScore"`
	UserVote          UserVote  `json:"userVote,omitempty"`
	Upvotes           []string  `json:"upvotes,omitempty"`
	Downvotes         []string  `json:"downvotes,omitempty"`
	CommentCount      int       `json:"commentCount"`
	TotalRewards      int       `json:"totalRewards,omitempty"` // medals, not interpreted

	SyncState SyncState `json:"-"`
}
