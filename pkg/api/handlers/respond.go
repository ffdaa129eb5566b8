// Package handlers provides the HTTP handlers of the hsync admin API.
package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/marmos91/hsync/internal/logger"
)

// Envelope states.
const (
	StatusOK        = "ok"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Response wraps every successful or health payload.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the media type of Problem bodies.
const ContentTypeProblemJSON = "application/problem+json"

// respond writes data inside a Response envelope.
func respond(w http.ResponseWriter, code int, status string, data any) {
	encode(w, code, "application/json", Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// WriteProblem writes an RFC 7807 problem with the standard title for code.
func WriteProblem(w http.ResponseWriter, code int, detail string) {
	encode(w, code, ContentTypeProblemJSON, Problem{
		Type:   "about:blank",
		Title:  http.StatusText(code),
		Status: code,
		Detail: detail,
	})
}

// encode buffers the body so an encoding failure can still change the
// status code.
func encode(w http.ResponseWriter, code int, contentType string, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("Failed to encode JSON response", logger.Err(err))
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
