package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/session"
)

// StatusProvider reports on a running server.
type StatusProvider interface {
	Status(ctx context.Context, sess *session.Session) (*protocol.StatusInfo, error)
}

// SessionRegistry exposes the live sessions.
type SessionRegistry interface {
	List() []session.Info
	Get(id string) (*session.Session, bool)
}

// StatusHandler serves server status and session listings.
type StatusHandler struct {
	status   StatusProvider
	sessions SessionRegistry
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(status StatusProvider, sessions SessionRegistry) *StatusHandler {
	return &StatusHandler{status: status, sessions: sessions}
}

// Status handles GET /api/v1/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	info, err := h.status.Status(r.Context(), nil)
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, StatusOK, info)
}

// ListSessions handles GET /api/v1/sessions, oldest first.
func (h *StatusHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	if list == nil {
		list = []session.Info{}
	}
	respond(w, http.StatusOK, StatusOK, list)
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *StatusHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		WriteProblem(w, http.StatusNotFound, "session not found")
		return
	}
	respond(w, http.StatusOK, StatusOK, sess.Info())
}
