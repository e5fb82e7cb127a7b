package chat

import "errors"

// Sentinel errors for session operations. They are part of the manager's
// public API and should be checked with errors.Is().
//
// Example:
//
//	reply, err := mgr.Chat(ctx, chatID, userID, msg)
//	if errors.Is(err, chat.ErrNotFound) {
//	    // Unknown chat_id
//	}
var (
	// ErrNotFound indicates the chat_id has no session.
	ErrNotFound = errors.New("chat session not found")

	// ErrLimitExceeded indicates a configured cap was reached (user turns
	// per chat, or chats per user).
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrForbidden indicates the user is not allowed to act on the session.
	ErrForbidden = errors.New("forbidden")

	// ErrProvider indicates the completion service failed or returned a
	// malformed response.
	ErrProvider = errors.New("completion provider error")

	// ErrTimeout indicates a store or provider call exceeded its bound.
	ErrTimeout = errors.New("operation timed out")

	// ErrValidation indicates a missing or malformed request field.
	ErrValidation = errors.New("invalid request")
)
