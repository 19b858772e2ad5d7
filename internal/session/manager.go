package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/receipt-splitter/internal/scanning"
)

// Manager holds the live sessions in memory. Sessions untouched for longer
// than the TTL are removed by Sweep; nothing survives a restart.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	scanner     scanning.Scanner
	config      Config
	ttl         time.Duration
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewManager creates a Manager with default ID generator and time source.
// A ttl of zero keeps sessions until they are deleted.
func NewManager(scanner scanning.Scanner, config Config, ttl time.Duration) *Manager {
	return NewManagerWithDeps(scanner, config, ttl, &uuidGenerator{}, &defaultTimeSource{})
}

// NewManagerWithDeps creates a Manager with custom dependencies for testing
func NewManagerWithDeps(scanner scanning.Scanner, config Config, ttl time.Duration, idGen IDGenerator, timeSrc TimeSource) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		scanner:     scanner,
		config:      config,
		ttl:         ttl,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Create starts a new session in the ingest phase
func (m *Manager) Create() *Session {
	s := NewWithDeps(m.idGenerator.Generate(), m.scanner, m.config, m.idGenerator, m.timeSource)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.config.Metrics.SessionCreated()
	slog.Info("Session created", "session_id", s.ID())
	return s
}

// Get returns the session with the given id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)

	m.config.Metrics.SessionDeleted()
	slog.Info("Session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	now := m.timeSource.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			delete(m.sessions, id)
			removed++
			slog.Info("Session expired", "session_id", id)
		}
	}

	m.config.Metrics.SessionsExpired(removed)
	return removed
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("Swept idle sessions", "removed", n, "remaining", m.Len())
			}
		}
	}
}
