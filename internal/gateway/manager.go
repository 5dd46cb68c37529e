package gateway

import (
	"context"
	"sync"
	"time"
)

const minReapInterval = time.Second

// Manager owns one Session per user and closes sessions that stay idle longer
// than idleTimeout, so abandoned uploads do not pile up in staging.
type Manager struct {
	gw          *Gateway
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(gw *Gateway, idleTimeout time.Duration) *Manager {
	return &Manager{
		gw:          gw,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
	}
}

func (m *Manager) Gateway() *Gateway { return m.gw }

// Session returns the session for id, creating it on first use or when the
// previous one has been closed.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.isClosed() {
		s = NewSession(id, m.gw)
		m.sessions[id] = s
	}
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes and forgets sessions idle for longer than the idle timeout.
// It returns how many sessions were closed.
func (m *Manager) Reap(ctx context.Context) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.gw.now().Add(-m.idleTimeout)

	// A session may be busy; never wait on one while holding m.mu.
	m.mu.Lock()
	snapshot := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		snapshot[id] = s
	}
	m.mu.Unlock()

	idle := 0
	for id, s := range snapshot {
		closed, err := s.closeIfIdle(ctx, cutoff)
		if !closed {
			continue
		}
		if err != nil {
			m.gw.log.Warn("Failed to release upload of idle session", "session", id, "error", err)
		}
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
			idle++
		}
		m.mu.Unlock()
	}

	if idle > 0 {
		m.gw.log.Info("Reaped idle upload sessions", "count", idle)
	}
	return idle
}

// Run reaps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}
	interval := m.idleTimeout / 2
	if interval < minReapInterval {
		interval = minReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// CloseAll ends every session. Called on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			m.gw.log.Warn("Failed to release upload on shutdown", "session", s.ID(), "error", err)
		}
	}
}
