package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// Session is the template for every session.
	Session Config

	// IdleTTL closes sessions without commands for this long. Default: 30 minutes
	IdleTTL time.Duration

	// SweepInterval is how often idle sessions are collected. Default: 1 minute
	SweepInterval time.Duration

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	Logger zerolog.Logger
}

// Manager creates, finds and expires sessions.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. Run starts its idle sweeper.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "session_manager").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a random ID.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	sc := m.cfg.Session
	sc.Logger = m.cfg.Logger
	s := New(id, sc)
	m.sessions[id] = s

	m.logger.Debug().Str("session_id", id).Int("sessions", len(m.sessions)).Msg("session created")
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep closes sessions idle since before now minus IdleTTL and returns how many it closed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Msg("idle sessions closed")
	}
	return len(expired)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
