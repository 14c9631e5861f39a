package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/history"
)

const maxTopLimit = 100

// FeedbackRequest is the body of POST /api/feedback
type FeedbackRequest struct {
	Query  string `json:"query"`
	Rating string `json:"rating"`
}

// TopQueriesResponse is the response for GET /api/users/{id}/top
type TopQueriesResponse struct {
	User    string   `json:"user"`
	Queries []string `json:"queries"`
}

// HistoryResponse is the response for GET /api/users/{id}/history
type HistoryResponse struct {
	User    string          `json:"user"`
	Entries []history.Entry `json:"entries"`
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.chats != nil {
		resp["sessions"] = s.chats.Count()
	}
	if s.breaker != nil {
		resp["gateway"] = s.breaker.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

// TopQueries handles GET /api/users/{id}/top
// Supports ?limit=N (default 3).
func (s *Server) TopQueries(w http.ResponseWriter, r *http.Request) {
	user, ok := s.ownUser(w, r)
	if !ok {
		return
	}

	limit := 3
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxTopLimit {
			http.Error(w, "limit must be an integer between 0 and 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	queries, err := s.store.TopQueries(r.Context(), user, limit)
	if err != nil {
		s.storeError(w, "top queries", err)
		return
	}
	if queries == nil {
		queries = []string{}
	}
	writeJSON(w, http.StatusOK, TopQueriesResponse{User: user, Queries: queries})
}

// History handles GET /api/users/{id}/history
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	user, ok := s.ownUser(w, r)
	if !ok {
		return
	}

	entries, err := s.store.History(r.Context(), user)
	if err != nil {
		s.storeError(w, "history", err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{User: user, Entries: entries})
}

// RecordFeedback handles POST /api/feedback for the authenticated user.
func (s *Server) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Rating == "" {
		http.Error(w, "rating is required", http.StatusBadRequest)
		return
	}

	user := UserFromContext(r.Context())
	if err := s.store.RecordFeedback(r.Context(), user, req.Query, req.Rating); err != nil {
		s.storeError(w, "feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// ownUser resolves {id} and only lets users read their own history.
func (s *Server) ownUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if len(s.users) > 0 && id != UserFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, history.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, history.ErrUnavailable):
		s.logger.Warn("history store unavailable", zap.String("op", op), zap.Error(err))
		http.Error(w, "history store unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error("history store failed", zap.String("op", op), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
