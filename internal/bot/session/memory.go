package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Memory keeps sessions in process. Run must be started to evict idle ones.
type Memory struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	maxTurns    int
	now         func() time.Time
	logger      *slog.Logger
}

func NewMemory(idleTimeout time.Duration, maxTurns int) *Memory {
	return &Memory{
		sessions:    make(map[int64]*Session),
		idleTimeout: idleTimeout,
		maxTurns:    maxTurns,
		now:         time.Now,
		logger:      slog.Default().With("component", "session-memory"),
	}
}

func (m *Memory) Touch(_ context.Context, chatID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.sessions[chatID]
	if !ok || m.expired(s, now) {
		s = &Session{ChatID: chatID}
		m.sessions[chatID] = s
	}
	s.touch(now)
	return clone(s), nil
}

func (m *Memory) AddTurn(_ context.Context, chatID int64, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		s.addTurn(t, m.maxTurns)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, chatID int64) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok || m.expired(s, m.now()) {
		return Session{}, false, nil
	}
	return clone(s), true, nil
}

func (m *Memory) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle sessions every interval until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.evict(); n > 0 {
				m.logger.Debug("idle sessions evicted", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Memory) evict() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Memory) expired(s *Session, now time.Time) bool {
	return m.idleTimeout > 0 && now.Sub(s.LastActivity) > m.idleTimeout
}

func clone(s *Session) Session {
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	return c
}
