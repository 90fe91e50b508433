// Package api is the HTTP client for the PromptPal REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Client talks to the backend. It never retries; callers decide what a
// failure means for their optimistic state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *utils.MetricsCollector
	logger     *zap.Logger
}

// NewClient creates a client for baseURL. A nil httpClient gets a client with
// a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client, metrics *utils.MetricsCollector, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchTrends returns the community feed.
func (c *Client) FetchTrends(ctx context.Context) ([]models.Trend, error) {
	var trends []models.Trend
	if err := c.do(ctx, "fetch_trends", http.MethodGet, "/trends", nil, &trends); err != nil {
		return nil, err
	}
	return trends, nil
}

// VoteTrend casts a vote on a trend.
func (c *Client) VoteTrend(ctx context.Context, trendID string, dir models.VoteDirection) (*VoteResponse, error) {
	var resp VoteResponse
	path := "/trends/" + url.PathEscape(trendID) + "/vote"
	if err := c.do(ctx, "vote_trend", http.MethodPost, path, VoteRequest{Direction: dir}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchComments returns the flat comment list of a trend.
func (c *Client) FetchComments(ctx context.Context, trendID string) ([]models.Comment, error) {
	var comments []models.Comment
	path := "/trends/" + url.PathEscape(trendID) + "/comments"
	if err := c.do(ctx, "fetch_comments", http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment submits a comment or reply and returns the server's copy.
func (c *Client) CreateComment(ctx context.Context, trendID string, req CreateCommentRequest) (*models.Comment, error) {
	var resp CreateCommentResponse
	path := "/trends/" + url.PathEscape(trendID) + "/comments"
	if err := c.do(ctx, "create_comment", http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.Comment.ID == "" {
		c.metrics.IncrementErrors("create_comment")
		return nil, utils.NewAppError(utils.ErrDecode, "Create comment response has no comment id", nil)
	}
	return &resp.Comment, nil
}

// DeleteComment asks the server to delete a comment and its replies.
func (c *Client) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	var resp DeleteCommentResponse
	path := "/comments/" + url.PathEscape(commentID)
	if err := c.do(ctx, "delete_comment", http.MethodDelete, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// VoteComment casts a vote on a comment.
func (c *Client) VoteComment(ctx context.Context, commentID string, dir models.VoteDirection) (*VoteResponse, error) {
	var resp VoteResponse
	path := "/comments/" + url.PathEscape(commentID) + "/vote"
	if err := c.do(ctx, "vote_comment", http.MethodPost, path, VoteRequest{Direction: dir}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return utils.NewAppError(utils.ErrInvalidInput, "Failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	c.metrics.IncrementRequests(op)
	resp, err := c.httpClient.Do(req)
	c.metrics.AddOperationLatency(op, time.Since(start))
	if err != nil {
		c.metrics.IncrementErrors(op)
		c.logger.Warn("backend request failed",
			zap.String("op", op), zap.String("method", method), zap.String("path", path), zap.Error(err))
		return utils.NewAppError(utils.ErrNetwork, "Failed to reach backend", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.metrics.IncrementErrors(op)
		msg := readErrorMessage(resp.Body)
		c.logger.Warn("backend returned error",
			zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("message", msg))
		text := fmt.Sprintf("%s failed with status %d", op, resp.StatusCode)
		if msg != "" {
			text += ": " + msg
		}
		return utils.NewAppError(utils.CodeFromHTTPStatus(resp.StatusCode), text, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.IncrementErrors(op)
		return utils.NewAppError(utils.ErrDecode, "Failed to decode "+op+" response", err)
	}
	c.logger.Debug("backend request done", zap.String("op", op), zap.Duration("took", time.Since(start)))
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body ErrorResponse
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
