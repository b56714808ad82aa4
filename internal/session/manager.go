// Package session keeps one upload widget per visitor.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/leafcheck/internal/widget"
)

const DefaultIdleTimeout = 30 * time.Minute

// Factory builds the widget for a new session.
type Factory func(sessionID string) *widget.Widget

type Manager struct {
	factory     Factory
	idleTimeout time.Duration
	now         func() time.Time

	sessions   map[string]*entry
	sessionsMu sync.RWMutex
}

type entry struct {
	widget   *widget.Widget
	lastSeen time.Time
}

func NewManager(factory Factory, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Manager{
		factory:     factory,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*entry),
	}
}

func (m *Manager) Get(sessionID string) (*widget.Widget, bool) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.widget, true
}

// GetOrCreate returns the widget for sessionID, starting a new session with
// a fresh id when the id is unknown or empty.
func (m *Manager) GetOrCreate(sessionID string) (string, *widget.Widget, bool) {
	if w, ok := m.Get(sessionID); ok {
		return sessionID, w, false
	}

	id := uuid.New().String()
	w := m.factory(id)

	m.sessionsMu.Lock()
	m.sessions[id] = &entry{widget: w, lastSeen: m.now()}
	m.sessionsMu.Unlock()

	log.Printf("[SESSION] Started session %s", id)
	return id, w, true
}

func (m *Manager) Remove(sessionID string) bool {
	m.sessionsMu.Lock()
	e, exists := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.sessionsMu.Unlock()

	if !exists {
		return false
	}
	e.widget.Close()
	return true
}

func (m *Manager) Len() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

// Sweep closes every session idle for longer than the idle timeout.
func (m *Manager) Sweep(now time.Time) int {
	var expired []*widget.Widget

	m.sessionsMu.Lock()
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.idleTimeout {
			expired = append(expired, e.widget)
			delete(m.sessions, id)
		}
	}
	m.sessionsMu.Unlock()

	for _, w := range expired {
		w.Close()
	}
	if len(expired) > 0 {
		log.Printf("[SESSION] Expired %d idle session(s)", len(expired))
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}

func (m *Manager) Close() {
	m.sessionsMu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.sessionsMu.Unlock()

	for _, e := range sessions {
		e.widget.Close()
	}
}
