package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pbellet/sessionlog/internal/store"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if sessions, err := s.manager.ListSessions(); err == nil {
			resp.Sessions = len(sessions)
		} else {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// handleListSessions serves GET /api/sessions. With ?q= it searches message
// text through the sqlite index when available, and degrades to title
// matching over the store listing otherwise.
func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var (
			sessions []conversation.Metadata
			err      error
		)
		switch {
		case query != "" && s.index != nil:
			sessions, err = s.index.Search(query, limit)
		default:
			sessions, err = s.manager.ListSessions()
			if err == nil && query != "" {
				sessions = filterByTitle(sessions, query)
			}
			if err == nil && limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}
		}
		if err != nil {
			s.logger.Error("api: list sessions failed", "error", err)
			http.Error(w, "list sessions failed", http.StatusInternalServerError)
			return
		}
		if sessions == nil {
			sessions = []conversation.Metadata{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessions)
	}
}

// handleGetMessages serves GET /api/sessions/{id}/messages.
func (s *Server) handleGetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		messages, err := s.manager.GetMessages(sessionID)
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("api: get messages failed", "session", sessionID, "error", err)
			http.Error(w, "get messages failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messages)
	}
}

// handleResume serves GET /api/sessions/{id}/resume: the fast summary-point
// window used to reopen a session.
func (s *Server) handleResume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		messages, err := s.engine.LoadSessionFromSummaryPoint(sessionID)
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("api: resume failed", "session", sessionID, "error", err)
			http.Error(w, "resume failed", http.StatusInternalServerError)
			return
		}
		if messages == nil {
			messages = []conversation.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messages)
	}
}

// handleDeleteSession serves DELETE /api/sessions/{id}. Deletion is
// idempotent: deleting a missing session still returns 204.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		if err := s.manager.DeleteSession(sessionID); err != nil {
			s.logger.Error("api: delete session failed", "session", sessionID, "error", err)
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		if s.index != nil {
			if err := s.index.Remove(sessionID); err != nil {
				s.logger.Warn("api: index removal failed", "session", sessionID, "error", err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// filterByTitle keeps sessions whose title contains the query,
// case-insensitive.
func filterByTitle(sessions []conversation.Metadata, query string) []conversation.Metadata {
	query = strings.ToLower(query)
	var out []conversation.Metadata
	for _, meta := range sessions {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			out = append(out, meta)
		}
	}
	return out
}
