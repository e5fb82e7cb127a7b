package store

import (
	"context"
	"sync"

	"github.com/vibelab/chatrelay/internal/chat"
)

// Memory is an in-process SessionStore. It backs tests and local runs
// without a database; every handler instance gets its own state, so it is
// not suitable for a horizontally-scaled deployment.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*chat.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*chat.Session)}
}

func (m *Memory) Get(ctx context.Context, chatID string) (*chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[chatID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := clone(sess)
	return &cp, nil
}

func (m *Memory) Create(ctx context.Context, sess *chat.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ChatID]; ok {
		return ErrAlreadyExists
	}
	sess.Version = 1
	cp := clone(sess)
	m.sessions[sess.ChatID] = &cp
	return nil
}

func (m *Memory) Update(ctx context.Context, sess *chat.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[sess.ChatID]
	if !ok {
		return chat.ErrNotFound
	}
	if stored.Version != sess.Version {
		return ErrVersionConflict
	}
	sess.Version++
	cp := clone(sess)
	m.sessions[sess.ChatID] = &cp
	return nil
}

func (m *Memory) CountByUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }

// clone deep-copies a session so callers never share message slices with
// the stored copy.
func clone(sess *chat.Session) chat.Session {
	cp := *sess
	cp.Messages = make([]chat.Message, len(sess.Messages))
	copy(cp.Messages, sess.Messages)
	return cp
}
