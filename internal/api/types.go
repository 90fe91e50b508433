package api

import "promptpal/internal/models"

// CreateCommentRequest is the body of a comment or reply submission.
type CreateCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentId,omitempty"`
}

// CreateCommentResponse carries the server's copy of a new comment.
type CreateCommentResponse struct {
	Comment models.Comment `json:"comment"`
}

// DeleteCommentResponse reports whether the server removed the comment.
type DeleteCommentResponse struct {
	Success bool `json:"success"`
}

// VoteRequest is the body of a comment or trend vote.
type VoteRequest struct {
	Direction models.VoteDirection `json:"direction"`
}

// VoteResponse is the authoritative vote state after a vote.
type VoteResponse struct {
	VoteScore int             `json:"voteScore"`
	UserVote  models.UserVote `json:"userVote"`
}

// ErrorResponse is the JSON error body the backend may send.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
