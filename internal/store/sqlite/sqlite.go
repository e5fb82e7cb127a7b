// Package sqlite implements the session store on a local SQLite database.
// Sessions are rows keyed by chat_id with the message history serialized
// as JSON; the version column carries the compare-and-swap stamp.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS chats (
	chat_id    TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	messages   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user_id ON chats (user_id);`

// Store is a SessionStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chats table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, chatID string) (*chat.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, user_id, messages, version, created_at, updated_at FROM chats WHERE chat_id = ?;`,
		chatID)
	return scanSession(row)
}

func (s *Store) Create(ctx context.Context, sess *chat.Session) error {
	raw, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, user_id, messages, version, created_at, updated_at)
		 VALUES (?,?,?,1,?,?) ON CONFLICT(chat_id) DO NOTHING;`,
		sess.ChatID, sess.UserID, string(raw), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	sess.Version = 1
	return nil
}

func (s *Store) Update(ctx context.Context, sess *chat.Session) error {
	raw, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET messages = ?, version = version + 1, updated_at = ?
		 WHERE chat_id = ? AND version = ?;`,
		string(raw), sess.UpdatedAt, sess.ChatID, sess.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		// Either the row is gone or the version moved under us.
		if _, err := s.Get(ctx, sess.ChatID); errors.Is(err, chat.ErrNotFound) {
			return chat.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	sess.Version++
	return nil
}

func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chats WHERE user_id = ?;`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error { return s.db.Close() }

func scanSession(row *sql.Row) (*chat.Session, error) {
	var sess chat.Session
	var raw string
	err := row.Scan(&sess.ChatID, &sess.UserID, &raw, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &sess, nil
}
