package models

import (
	"time"
)

// Comment is a flat comment record as received from the server.
type Comment struct {
	ID                string    `json:"id"`
	TrendID           string    `json:"trendId,omitempty"`
	Content           string    `json:"content"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	ParentID          *string   `json:"parentId,omitempty"` // nil for top-level comments
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
	VoteScore         int       `json:"voteScore"`
	UserVote          UserVote  `json:"userVote,omitempty"`
	Upvotes           []string  `json:"upvotes,omitempty"`
	Downvotes         []string  `json:"downvotes,omitempty"`
	IsEdited          bool      `json:"isEdited"`
	TotalRewards      int       `json:"totalRewards,omitempty"`

	// Local only. Never sent to or read from the server.
	SyncState        SyncState `json:"-"`
	CorrelationToken string    `json:"-"`
}

// HasParent reports whether the comment names a parent at all.
func (c *Comment) HasParent() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// Clone returns a deep copy so callers can hand out records without sharing
// the vote slices.
func (c Comment) Clone() Comment {
	out := c
	if c.ParentID != nil {
		parentID := *c.ParentID
		out.ParentID = &parentID
	}
	if c.Upvotes != nil {
		out.Upvotes = append([]string(nil), c.Upvotes...)
	}
	if c.Downvotes != nil {
		out.Downvotes = append([]string(nil), c.Downvotes...)
	}
	return out
}

// CommentNode is a comment placed in the thread hierarchy.
type CommentNode struct {
	Comment                 Comment
	Replies                 []*CommentNode
	ParentAuthorDisplayName string
}
