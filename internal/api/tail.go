package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/pbellet/sessionlog/internal/store"
)

// handleTail is the HTTP handler for GET /ws/sessions/{id}: a WebSocket
// pushing every message appended to the session, as JSON text frames, until
// the client disconnects or the session is deleted.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	// Reject unknown sessions before upgrading.
	if _, err := s.manager.GetMetadata(sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("api: tail metadata read failed", "session", sessionID, "error", err)
		http.Error(w, "tail failed", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("api: websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	feed, cancel := s.manager.Subscribe(sessionID)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case msg, ok := <-feed:
			if !ok {
				// Session deleted.
				_ = conn.Close(websocket.StatusNormalClosure, "session deleted")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("api: tail marshal failed", "session", sessionID, "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("api: tail write failed, closing", "session", sessionID, "error", err)
				return
			}
		}
	}
}
