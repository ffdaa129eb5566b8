// Package session holds the per-connection navigation state.
//
// A session's location (cwd and previous cwd) is an immutable value swapped
// atomically, so commands running on parallel streams always observe a
// consistent pair without taking a lock. Navigation commands serialize on a
// per-session mutex, which makes each read-validate-write cycle atomic.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Location is a session's position in the sandbox. Both fields are
// slash-separated paths relative to the root; "" is the root.
type Location struct {
	Cwd      string
	Previous string
}

// Session is the state of one client connection.
type Session struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	loc   atomic.Pointer[Location]
	navMu sync.Mutex

	lastActivity atomic.Int64
	commands     atomic.Uint64
	inFlight     atomic.Int32
}

// New creates a session positioned at the root.
func New(remoteAddr string) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		CreatedAt:  now,
	}
	s.loc.Store(&Location{})
	s.lastActivity.Store(now.UnixNano())
	return s
}

// Snapshot returns the current location. Commands call it once and use the
// result for their whole execution.
func (s *Session) Snapshot() Location {
	return *s.loc.Load()
}

// Navigate runs fn with the navigation lock held, passing the current
// location. If fn returns a non-nil location without error, it becomes the
// new location. The lock is released on every exit path, including a panic
// in fn.
func (s *Session) Navigate(fn func(cur Location) (*Location, error)) (Location, error) {
	s.navMu.Lock()
	defer s.navMu.Unlock()

	cur := *s.loc.Load()
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if next == nil {
		return cur, nil
	}
	n := *next
	s.loc.Store(&n)
	return n, nil
}

// CommandStarted records the start of a command on this session.
func (s *Session) CommandStarted() {
	s.inFlight.Add(1)
	s.commands.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())
}

// CommandFinished records the end of a command on this session.
func (s *Session) CommandFinished() {
	s.inFlight.Add(-1)
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns when the session last started or finished a command.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Commands returns the number of commands started on the session.
func (s *Session) Commands() uint64 {
	return s.commands.Load()
}

// InFlight returns the number of commands currently executing.
func (s *Session) InFlight() int32 {
	return s.inFlight.Load()
}

// Info is a point-in-time view of a session for reporting.
type Info struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Cwd          string    `json:"cwd"`
	Commands     uint64    `json:"commands"`
	InFlight     int32     `json:"in_flight"`
}

// Info returns a reporting view of the session.
func (s *Session) Info() Info {
	return Info{
		ID:           s.ID,
		RemoteAddr:   s.RemoteAddr,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
		Cwd:          s.Snapshot().Cwd,
		Commands:     s.Commands(),
		InFlight:     s.InFlight(),
	}
}
