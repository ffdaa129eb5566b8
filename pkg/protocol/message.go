package protocol

import (
	"errors"
	"io"
	"time"
)

// Request is the first frame a client sends on a stream.
type Request struct {
	Cmd    string  `json:"cmd"`
	Path   string  `json:"path,omitempty"`
	Target string  `json:"target,omitempty"`
	Size   *uint64 `json:"size,omitempty"`
	Hash   string  `json:"hash,omitempty"`
}

// Response is the single frame the server sends per stream.
type Response struct {
	OK      bool        `json:"ok"`
	Written *uint64     `json:"written,omitempty"`
	Error   ErrorKind   `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Cwd     *string     `json:"cwd,omitempty"`
	Entries []Entry     `json:"entries"`
	Size    *uint64     `json:"size,omitempty"`
	Hash    string      `json:"hash,omitempty"`
	Status  *StatusInfo `json:"status,omitempty"`
}

// Entry is one directory listing entry. Name is a single component for
// list/listl and a slash-separated path relative to the listed directory for
// listr.
type Entry struct {
	Name     string     `json:"name"`
	IsDir    bool       `json:"isDir"`
	Size     *uint64    `json:"size,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
	Perm     string     `json:"perm,omitempty"`
}

// StatusInfo is the payload of a status response.
type StatusInfo struct {
	Server         string    `json:"server"`
	Version        string    `json:"version"`
	Root           string    `json:"root"`
	SessionID      string    `json:"sessionId"`
	Cwd            string    `json:"cwd"`
	StartedAt      time.Time `json:"startedAt"`
	UptimeSeconds  int64     `json:"uptimeSeconds"`
	ActiveSessions int       `json:"activeSessions"`
	FileCount      uint64    `json:"fileCount"`
	TotalBytes     uint64    `json:"totalBytes"`
	FreeBytes      uint64    `json:"freeBytes"`
}

// Reply is what a Handler produces: the response frame and, for downloads,
// a body of BodySize bytes streamed after it. The sender closes Body.
type Reply struct {
	Response Response
	Body     io.ReadCloser
	BodySize uint64
}

// OK returns an empty success reply.
func OK() *Reply {
	return &Reply{Response: Response{OK: true}}
}

// Failure converts err into a failure response. Errors without a kind are
// reported as IOFailure with a generic message so server internals do not
// leak to clients.
func Failure(err error) Response {
	var pe *Error
	if !errors.As(err, &pe) {
		return Response{OK: false, Error: IOFailure, Message: "internal error"}
	}
	return Response{OK: false, Error: pe.Kind, Message: pe.Message}
}

// Err turns a failure response back into an *Error. It returns nil for
// successful responses.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	kind := r.Error
	if !kind.Valid() {
		kind = IOFailure
	}
	return &Error{Kind: kind, Message: r.Message}
}

// Uint64 returns a pointer to v, for the optional numeric fields.
func Uint64(v uint64) *uint64 {
	return &v
}

// String returns a pointer to v, for the optional string fields.
func String(v string) *string {
	return &v
}
