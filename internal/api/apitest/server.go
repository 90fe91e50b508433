// Package apitest provides an in-memory PromptPal backend for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"promptpal/internal/api"
	"promptpal/internal/commenttree"
	"promptpal/internal/models"
	"promptpal/internal/voting"
)

// Operation names, shared with the client's metric labels.
const (
	OpFetchTrends   = "fetch_trends"
	OpVoteTrend     = "vote_trend"
	OpFetchComments = "fetch_comments"
	OpCreateComment = "create_comment"
	OpDeleteComment = "delete_comment"
	OpVoteComment   = "vote_comment"
)

// Gate holds requests of one operation until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered receives once per request that reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every held and future request through.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Server is a fake backend. All requests act as a single signed-in user.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	user      models.Identity
	trends    []models.Trend
	comments  map[string][]models.Comment
	failures  map[string]int
	gates     map[string]*Gate
	calls     map[string]int
	rejectDel bool
	lastAuth  string
	clock     func() time.Time
}

// NewServer starts a fake backend that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	s := &Server{
		user:     models.Identity{ID: "alice", DisplayName: "Alice"},
		comments: make(map[string][]models.Comment),
		failures: make(map[string]int),
		gates:    make(map[string]*Gate),
		calls:    make(map[string]int),
		clock:    func() time.Time { return time.Now().UTC() },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /trends", s.handle(OpFetchTrends, s.handleFetchTrends))
	mux.HandleFunc("POST /trends/{id}/vote", s.handle(OpVoteTrend, s.handleVoteTrend))
	mux.HandleFunc("GET /trends/{id}/comments", s.handle(OpFetchComments, s.handleFetchComments))
	mux.HandleFunc("POST /trends/{id}/comments", s.handle(OpCreateComment, s.handleCreateComment))
	mux.HandleFunc("DELETE /comments/{id}", s.handle(OpDeleteComment, s.handleDeleteComment))
	mux.HandleFunc("POST /comments/{id}/vote", s.handle(OpVoteComment, s.handleVoteComment))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetUser changes the identity requests act as.
func (s *Server) SetUser(user models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// AddTrend appends a trend to the feed.
func (s *Server) AddTrend(trend models.Trend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends = append(s.trends, trend)
}

// SeedComments appends comments to a trend as-is.
func (s *Server) SeedComments(trendID string, comments ...models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range comments {
		c.TrendID = trendID
		s.comments[trendID] = append(s.comments[trendID], c.Clone())
	}
}

// Comments returns a copy of what the backend stores for a trend.
func (s *Server) Comments(trendID string) []models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Comment, 0, len(s.comments[trendID]))
	for _, c := range s.comments[trendID] {
		out = append(out, c.Clone())
	}
	return out
}

// FailWith makes every request of op answer with status. Zero clears it.
func (s *Server) FailWith(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = status
}

// RejectDeletes makes deletes answer {"success": false}.
func (s *Server) RejectDeletes(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectDel = reject
}

// Block holds requests of op until the returned gate is released.
func (s *Server) Block(op string) *Gate {
	g := &Gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
	s.mu.Lock()
	s.gates[op] = g
	s.mu.Unlock()
	return g
}

// Calls reports how many requests of op were received.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastAuthorization returns the Authorization header of the latest request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *Server) handle(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[op]++
		s.lastAuth = r.Header.Get("Authorization")
		gate := s.gates[op]
		status := s.failures[op]
		s.mu.Unlock()

		if gate != nil {
			select {
			case gate.entered <- struct{}{}:
			default:
			}
			select {
			case <-gate.release:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeError(w, status, op+" failed")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleFetchTrends(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Trend, len(s.trends))
	copy(out, s.trends)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVoteTrend(w http.ResponseWriter, r *http.Request) {
	var req api.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Direction.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid vote")
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.trends {
		if s.trends[i].ID != id {
			continue
		}
		t := &s.trends[i]
		tally := voting.Tally{Score: t.VoteScore, UserVote: t.UserVote, Upvotes: t.Upvotes, Downvotes: t.Downvotes}.
			Apply(s.user.ID, req.Direction)
		t.VoteScore, t.UserVote, t.Upvotes, t.Downvotes = tally.Score, tally.UserVote, tally.Upvotes, tally.Downvotes
		writeJSON(w, http.StatusOK, api.VoteResponse{VoteScore: t.VoteScore, UserVote: t.UserVote})
		return
	}
	writeError(w, http.StatusNotFound, "Trend not found")
}

func (s *Server) handleFetchComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	out := make([]models.Comment, 0, len(s.comments[id]))
	for _, c := range s.comments[id] {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "Comment content is required")
		return
	}
	trendID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ParentID != nil && commenttree.Find(s.comments[trendID], *req.ParentID) < 0 {
		writeError(w, http.StatusBadRequest, "Parent comment not found")
		return
	}
	now := s.clock()
	c := models.Comment{
		ID:                uuid.NewString(),
		TrendID:           trendID,
		Content:           content,
		AuthorID:          s.user.ID,
		AuthorDisplayName: s.user.DisplayName,
		ParentID:          req.ParentID,
		CreatedAt:         now,
		UpdatedAt:         now,
		UserVote:          models.Unvoted,
	}
	s.comments[trendID] = append(s.comments[trendID], c)
	for i := range s.trends {
		if s.trends[i].ID == trendID {
			s.trends[i].CommentCount++
		}
	}
	writeJSON(w, http.StatusCreated, api.CreateCommentResponse{Comment: c})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectDel {
		writeJSON(w, http.StatusOK, api.DeleteCommentResponse{Success: false})
		return
	}
	for trendID, list := range s.comments {
		if commenttree.Find(list, id) < 0 {
			continue
		}
		s.comments[trendID] = commenttree.DeleteComment(list, id)
		writeJSON(w, http.StatusOK, api.DeleteCommentResponse{Success: true})
		return
	}
	writeError(w, http.StatusNotFound, "Comment not found")
}

func (s *Server) handleVoteComment(w http.ResponseWriter, r *http.Request) {
	var req api.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Direction.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid vote")
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for trendID, list := range s.comments {
		idx := commenttree.Find(list, id)
		if idx < 0 {
			continue
		}
		updated, err := commenttree.ApplyVote(list, id, req.Direction, s.user.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated[idx].SyncState = models.Confirmed
		s.comments[trendID] = updated
		writeJSON(w, http.StatusOK, api.VoteResponse{VoteScore: updated[idx].VoteScore, UserVote: updated[idx].UserVote})
		return
	}
	writeError(w, http.StatusNotFound, "Comment not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: http.StatusText(status), Message: msg})
}
