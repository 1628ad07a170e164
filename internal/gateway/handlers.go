package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ownagent/ownagent/internal/auth"
	"github.com/ownagent/ownagent/internal/sessions"
	"github.com/ownagent/ownagent/pkg/models"
)

// ssePacing spaces out event frames so browsers render deltas smoothly.
const ssePacing = 10 * time.Millisecond

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	infos, active, err := s.manager.List(user.ID)
	if err != nil {
		s.logger.Error("list sessions failed", "user_id", user.ID, "error", err)
		s.jsonError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	var current any
	if active != "" {
		current = active
	}
	s.jsonResponse(w, map[string]any{
		"sessions":           infos,
		"current_session_id": current,
	})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	id, err := s.manager.New(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("new session failed", "user_id", user.ID, "error", err)
		s.jsonError(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]string{
		"id":      id,
		"message": "New session started",
	})
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	history, err := s.manager.Load(r.Context(), user.ID, id)
	if err != nil {
		s.sessionError(w, user.ID, id, err, "load session failed")
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	s.jsonResponse(w, map[string]any{
		"id":      id,
		"history": history,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.manager.Delete(user.ID, id); err != nil {
		s.sessionError(w, user.ID, id, err, "delete session failed")
		return
	}
	s.jsonResponse(w, map[string]string{
		"id":      id,
		"message": "Session deleted",
	})
}

// handleChat runs one agent turn and streams its events back as SSE frames.
// The step keeps running even if the client goes away; writes simply stop and
// the autosaved history picks up the result on the next load.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionID, runtime, err := s.manager.Resolve(r.Context(), user.ID, req.SessionID)
	if err != nil {
		s.sessionError(w, user.ID, req.SessionID, err, "resolve session failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	s.logger.Debug("chat turn started", "user_id", user.ID, "session_id", sessionID)

	events := make(chan models.AgentEvent, 64)
	go func() {
		defer close(events)
		// Detached from the request: a dropped connection must not abort a
		// tool call mid-flight.
		runtime.Step(context.WithoutCancel(r.Context()), req.Message, func(ev models.AgentEvent) {
			events <- ev
		})
	}()

	// Drain the channel to the end even after a write failure, otherwise the
	// step goroutine blocks on a full channel and wedges the runtime.
	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("event marshal failed", "type", ev.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("client disconnected mid-stream", "session_id", sessionID)
			writeFailed = true
			continue
		}
		flusher.Flush()
		time.Sleep(ssePacing)
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	store := s.auth.Store()
	if store == nil {
		s.jsonError(w, "user store unavailable", http.StatusNotFound)
		return
	}
	users, err := store.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		s.jsonError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, users)
}

// currentUser pulls the authenticated user off the request context. The auth
// middleware always installs one; a miss means a route was mounted without
// it.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// sessionError maps session-layer failures onto HTTP statuses: malformed IDs
// are the caller's fault, missing files are 404, anything else is ours.
func (s *Server) sessionError(w http.ResponseWriter, userID int64, sessionID string, err error, msg string) {
	switch {
	case errors.Is(err, sessions.ErrInvalidSessionID):
		s.jsonError(w, "invalid session id", http.StatusBadRequest)
	case errors.Is(err, sessions.ErrSessionNotFound):
		s.jsonError(w, "Session not found or permission denied", http.StatusNotFound)
	default:
		s.logger.Error(msg, "user_id", userID, "session_id", sessionID, "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
