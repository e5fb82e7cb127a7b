package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibelab/chatrelay/internal/chat"
)

func newSession(chatID, userID string) *chat.Session {
	now := time.Now()
	sess := &chat.Session{ChatID: chatID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	sess.Append(chat.RoleSystem, "sys", now)
	return sess
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestMemory_CreateConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, newSession("chat-1", "user-1")))
	err := m.Create(ctx, newSession("chat-1", "user-2"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	// The first write must stand.
	sess, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", sess.UserID)
	require.EqualValues(t, 1, sess.Version)
}

func TestMemory_UpdateCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sess := newSession("chat-1", "user-1")
	require.NoError(t, m.Create(ctx, sess))

	// Two readers load version 1; only one write may win.
	a, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)
	b, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)

	a.Append(chat.RoleUser, "from a", time.Now())
	require.NoError(t, m.Update(ctx, a))
	require.EqualValues(t, 2, a.Version)

	b.Append(chat.RoleUser, "from b", time.Now())
	require.ErrorIs(t, m.Update(ctx, b), ErrVersionConflict)

	stored, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	require.Equal(t, "from a", stored.Messages[1].Content)
}

func TestMemory_UpdateMissing(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), newSession("ghost", "user-1"))
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestMemory_CountByUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, newSession("c1", "user-1")))
	require.NoError(t, m.Create(ctx, newSession("c2", "user-1")))
	require.NoError(t, m.Create(ctx, newSession("c3", "user-2")))

	n, err := m.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, newSession("chat-1", "user-1")))

	sess, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)
	sess.Messages[0].Content = "mutated"

	again, err := m.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "sys", again.Messages[0].Content)
}
