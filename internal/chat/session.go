// Package chat defines the conversation domain model shared by the session
// manager, the request router, and the store drivers.
package chat

import "time"

// Role constants define valid message roles.
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Message is a single entry in a session's ordered history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a single chat's persisted state. Messages is append-only and
// insertion order equals conversational order; the first entry, when
// present, is the system message. Version is the optimistic-concurrency
// stamp bumped by every store update.
type Session struct {
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append adds a message to the history, stamping it with now.
func (s *Session) Append(role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// UserMessageCount returns the number of user-role entries. The turn cap
// is enforced against this derived count, never a stored one.
func (s *Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Visible returns the messages to expose to clients. With hideSystem set,
// system entries are filtered out; order is preserved either way.
func (s *Session) Visible(hideSystem bool) []Message {
	if !hideSystem {
		out := make([]Message, len(s.Messages))
		copy(out, s.Messages)
		return out
	}
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
