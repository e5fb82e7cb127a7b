// Package store defines durable persistence for chat sessions.
//
// A session is stored as a single document keyed by chat_id. Drivers must
// implement conditional writes: Create fails when the key exists, Update
// fails when the stored version no longer matches the session's. The
// session manager builds its lost-update protection on those two
// guarantees alone, so any key-value backend with a compare-and-swap
// primitive can serve as a driver.
package store

import (
	"context"
	"errors"

	"github.com/vibelab/chatrelay/internal/chat"
)

// Sentinel errors returned by drivers, checked with errors.Is(). Missing
// sessions are reported as chat.ErrNotFound.
var (
	// ErrAlreadyExists indicates a Create raced with another creator and
	// lost; the caller should re-read the winner's session.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrVersionConflict indicates an Update's version precondition
	// failed; the caller should re-read and retry the whole operation.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionStore is the persistence contract consumed by the session
// manager.
type SessionStore interface {
	// Get returns the session for chatID, or chat.ErrNotFound.
	Get(ctx context.Context, chatID string) (*chat.Session, error)

	// Create persists a brand-new session. The write is conditional on
	// the chat_id not existing; a lost race returns ErrAlreadyExists.
	// On success the stored version is 1 and sess.Version is updated.
	Create(ctx context.Context, sess *chat.Session) error

	// Update persists sess conditional on the stored version equalling
	// sess.Version. On success the stored version is sess.Version+1 and
	// sess.Version is updated; a mismatch returns ErrVersionConflict.
	Update(ctx context.Context, sess *chat.Session) error

	// CountByUser returns how many sessions the user owns.
	CountByUser(ctx context.Context, userID string) (int, error)

	// Close releases driver resources.
	Close() error
}
