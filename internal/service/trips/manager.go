package trips

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/tripboard/internal/log"
)

// Manager keeps one board per session token.
type Manager struct {
	deps BoardDeps
	now  func() time.Time

	mu     sync.Mutex
	boards map[string]*Board
}

func NewManager(deps BoardDeps) *Manager {
	return &Manager{
		deps:   deps,
		now:    time.Now,
		boards: make(map[string]*Board),
	}
}

// Get returns the session's board, creating it on first use. A token that is
// reused by another user gets a fresh board.
func (m *Manager) Get(token, userID string) *Board {
	m.mu.Lock()
	previous, ok := m.boards[token]
	if ok && previous.UserID() == userID {
		m.mu.Unlock()
		return previous
	}
	b := NewBoard(userID, m.deps)
	b.now = m.now
	b.lastUsed = m.now()
	m.boards[token] = b
	m.mu.Unlock()

	if ok {
		previous.Close()
	}
	return b
}

// Drop closes the session's board, if any.
func (m *Manager) Drop(token string) {
	m.mu.Lock()
	b, ok := m.boards[token]
	delete(m.boards, token)
	m.mu.Unlock()

	if ok {
		b.Close()
	}
}

// Sweep closes boards without watchers that have been idle longer than idle
// and reports how many were closed.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var expired []*Board
	for token, b := range m.boards {
		lastUsed, unwatched := b.idleSince()
		if unwatched && lastUsed.Before(cutoff) {
			expired = append(expired, b)
			delete(m.boards, token)
		}
	}
	m.mu.Unlock()

	for _, b := range expired {
		b.Close()
	}
	if len(expired) > 0 {
		log.FromContext(context.Background()).WithField("boards", len(expired)).Info("closed idle trip boards")
	}
	return len(expired)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boards)
}

// Close tears down every board.
func (m *Manager) Close() {
	m.mu.Lock()
	boards := m.boards
	m.boards = make(map[string]*Board)
	m.mu.Unlock()

	for _, b := range boards {
		b.Close()
	}
}
