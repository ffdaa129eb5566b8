// Package audit records server lifecycle and per-command events to a
// durable sink (a rotating JSON Lines file or a SQL database).
//
// Recording never blocks the protocol engine: entries are queued on a
// bounded channel and dropped when the queue is full.
package audit

import (
	"context"
	"time"
)

// Event identifies what an Entry describes.
type Event string

const (
	EventServerStart Event = "server_start"
	EventServerStop  Event = "server_stop"
	EventConnect     Event = "connect"
	EventDisconnect  Event = "disconnect"
	EventCommand     Event = "command"
)

// Entry is one audit record. The same struct is the JSON line written by
// the file sink and the row stored by the database sink.
type Entry struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Time       time.Time `gorm:"not null;index" json:"time"`
	Event      Event     `gorm:"size:32;not null;index" json:"event"`
	SessionID  string    `gorm:"size:36;index" json:"sessionId,omitempty"`
	ClientAddr string    `gorm:"size:128" json:"clientAddr,omitempty"`
	Command    string    `gorm:"size:16" json:"cmd,omitempty"`
	Path       string    `gorm:"size:4096" json:"path,omitempty"`
	Cwd        string    `gorm:"size:4096" json:"cwd,omitempty"`
	Bytes      uint64    `json:"bytes,omitempty"`
	Hash       string    `gorm:"size:64" json:"hash,omitempty"`
	OK         bool      `json:"ok"`
	ErrorKind  string    `gorm:"size:32" json:"error,omitempty"`
	Message    string    `gorm:"size:1024" json:"message,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
}

// TableName pins the table name used by the database sink.
func (Entry) TableName() string {
	return "audit_entries"
}

// Sink persists batches of entries.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
	Close() error
}

// Reader returns the most recent entries, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
