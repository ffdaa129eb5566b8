package session

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Manager tracks the live sessions of a server. All methods are safe for
// concurrent use.
type Manager struct {
	sessions sync.Map // id -> *Session
	count    atomic.Int64
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Create registers and returns a new session for a connection from remoteAddr.
func (m *Manager) Create(remoteAddr string) *Session {
	s := New(remoteAddr)
	m.sessions.Store(s.ID, s)
	m.count.Add(1)
	return s
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Delete discards a session. Deleting an unknown id is a no-op.
func (m *Manager) Delete(id string) {
	if _, loaded := m.sessions.LoadAndDelete(id); loaded {
		m.count.Add(-1)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return int(m.count.Load())
}

// List returns a view of every live session, oldest first.
func (m *Manager) List() []Info {
	var out []Info
	m.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session).Info())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
