// Package relay implements the session manager: the single point of truth
// for conversation state transitions. It owns session creation, turn-limit
// enforcement, the exchange with the completion provider, and the
// optimistic-concurrency retry around the store's conditional writes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/config"
	"github.com/vibelab/chatrelay/internal/logger"
	"github.com/vibelab/chatrelay/internal/store"
)

// FSM states for the chat turn.
type turnState stateless.State

var (
	stateReadyToCallProvider turnState = "ReadyToCallProvider"
	statePersistingTurn      turnState = "PersistingTurn"
	stateDone                turnState = "Done"  // Terminal: reply persisted
	stateError               turnState = "Error" // Terminal: turn failed, nothing persisted
)

// FSM triggers.
type turnTrigger stateless.Trigger

var (
	triggerProviderReplied turnTrigger = "ProviderReplied"
	triggerTurnPersisted   turnTrigger = "TurnPersisted"
	triggerVersionConflict turnTrigger = "VersionConflict"
	triggerErrorOccurred   turnTrigger = "ErrorOccurred"
)

// maxTurnAttempts bounds the conflict-retry loop for one chat turn.
const maxTurnAttempts = 3

// CompletionProvider generates an assistant reply for an ordered message
// history. Implemented by llm.Provider; mocked in tests.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []chat.Message) (string, error)
}

// Manager orchestrates the session lifecycle against a store and a
// completion provider. It holds no per-request state and is safe for
// concurrent use.
type Manager struct {
	store      store.SessionStore
	provider   CompletionProvider
	limits     config.LimitsConfig
	hideSystem bool
	now        func() time.Time
}

// New creates a session manager. hideSystem controls whether system
// messages are filtered from initialize/history responses.
func New(st store.SessionStore, provider CompletionProvider, limits config.LimitsConfig, hideSystem bool) *Manager {
	return &Manager{
		store:      st,
		provider:   provider,
		limits:     limits,
		hideSystem: hideSystem,
		now:        time.Now,
	}
}

// InitializeParams carries the initialize payload. The optional initial
// messages seed the transcript; InitialUserMessage additionally triggers
// one provider call so the opening assistant turn is generated.
type InitializeParams struct {
	ChatID                  string
	UserID                  string
	SystemMessage           string
	InitialAssistantMessage string
	InitialUserMessage      string
}

// Initialize creates the session for params.ChatID, or returns the
// existing one unchanged. Creation is idempotent: a second call with the
// same chat_id never resets history, and its parameters are not validated
// against the original's. The returned slice is the client-visible
// transcript in insertion order.
func (m *Manager) Initialize(ctx context.Context, params InitializeParams) ([]chat.Message, error) {
	existing, err := m.store.Get(ctx, params.ChatID)
	if err == nil {
		logger.L.Info("returning existing chat", "chat_id", params.ChatID)
		return existing.Visible(m.hideSystem), nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return nil, m.classify(ctx, fmt.Errorf("load session: %w", err))
	}

	if m.limits.MaxChatsPerUser > 0 {
		n, err := m.store.CountByUser(ctx, params.UserID)
		if err != nil {
			return nil, m.classify(ctx, fmt.Errorf("count sessions: %w", err))
		}
		if n >= m.limits.MaxChatsPerUser {
			return nil, fmt.Errorf("%w: maximum of %d chats per user", chat.ErrLimitExceeded, m.limits.MaxChatsPerUser)
		}
	}

	now := m.now()
	sess := &chat.Session{
		ChatID:    params.ChatID,
		UserID:    params.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if params.SystemMessage != "" {
		sess.Append(chat.RoleSystem, params.SystemMessage, now)
	}
	if params.InitialAssistantMessage != "" {
		sess.Append(chat.RoleAssistant, params.InitialAssistantMessage, now)
	}
	if params.InitialUserMessage != "" {
		sess.Append(chat.RoleUser, params.InitialUserMessage, now)
		reply, err := m.provider.Complete(ctx, sess.Messages)
		if err != nil {
			// Creation is all-or-nothing: no session without the opening reply.
			return nil, err
		}
		sess.Append(chat.RoleAssistant, reply, m.now())
	}

	if err := m.store.Create(ctx, sess); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a concurrent creation race; the winner's state stands.
			winner, gerr := m.store.Get(ctx, params.ChatID)
			if gerr != nil {
				return nil, m.classify(ctx, fmt.Errorf("reload session: %w", gerr))
			}
			logger.L.Info("concurrent initialize lost race", "chat_id", params.ChatID)
			return winner.Visible(m.hideSystem), nil
		}
		return nil, m.classify(ctx, fmt.Errorf("create session: %w", err))
	}

	logger.L.Info("initialized chat", "chat_id", params.ChatID, "user_id", params.UserID, "messages", len(sess.Messages))
	return sess.Visible(m.hideSystem), nil
}

// Chat appends the user message, obtains the assistant reply, and persists
// both in a single conditional write. A turn commits atomically: on any
// failure the stored history is unchanged. Version conflicts re-run the
// whole turn, limit check included.
func (m *Manager) Chat(ctx context.Context, chatID, userID, message string) (string, error) {
	type turnContext struct {
		sess     *chat.Session
		reply    string
		attempts int
		lastErr  error
	}
	turn := &turnContext{}

	fsm := stateless.NewStateMachine(stateReadyToCallProvider)

	// State: ReadyToCallProvider
	// Action: load the session, enforce limits, call the provider.
	fsm.Configure(stateReadyToCallProvider).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if turn.attempts >= maxTurnAttempts {
				turn.lastErr = fmt.Errorf("chat turn: %w after %d attempts", store.ErrVersionConflict, turn.attempts)
				return fsm.Fire(triggerErrorOccurred, ctx)
			}
			turn.attempts++

			sess, err := m.store.Get(ctx, chatID)
			if err != nil {
				turn.lastErr = m.classify(ctx, err)
				return fsm.Fire(triggerErrorOccurred, ctx)
			}
			if sess.UserID != "" && sess.UserID != userID {
				logger.L.Warn("user mismatch", "chat_id", chatID, "user_id", userID)
				turn.lastErr = fmt.Errorf("%w: chat belongs to another user", chat.ErrForbidden)
				return fsm.Fire(triggerErrorOccurred, ctx)
			}
			if m.limits.MaxMessages > 0 && sess.UserMessageCount() >= m.limits.MaxMessages {
				turn.lastErr = fmt.Errorf("%w: message limit of %d reached for this chat", chat.ErrLimitExceeded, m.limits.MaxMessages)
				return fsm.Fire(triggerErrorOccurred, ctx)
			}

			sess.Append(chat.RoleUser, message, m.now())
			reply, err := m.provider.Complete(ctx, sess.Messages)
			if err != nil {
				turn.lastErr = err
				return fsm.Fire(triggerErrorOccurred, ctx)
			}
			turn.sess = sess
			turn.reply = reply
			return fsm.Fire(triggerProviderReplied, ctx)
		}).
		Permit(triggerProviderReplied, statePersistingTurn).
		Permit(triggerErrorOccurred, stateError)

	// State: PersistingTurn
	// Action: append the reply and commit the turn with a conditional write.
	fsm.Configure(statePersistingTurn).
		OnEntry(func(ctx context.Context, _ ...any) error {
			turn.sess.Append(chat.RoleAssistant, turn.reply, m.now())
			err := m.store.Update(ctx, turn.sess)
			if err == nil {
				return fsm.Fire(triggerTurnPersisted, ctx)
			}
			if errors.Is(err, store.ErrVersionConflict) {
				logger.L.Warn("turn lost a concurrent write, retrying", "chat_id", chatID, "attempt", turn.attempts)
				return fsm.Fire(triggerVersionConflict, ctx)
			}
			turn.lastErr = m.classify(ctx, fmt.Errorf("persist turn: %w", err))
			return fsm.Fire(triggerErrorOccurred, ctx)
		}).
		Permit(triggerTurnPersisted, stateDone).
		Permit(triggerVersionConflict, stateReadyToCallProvider).
		Permit(triggerErrorOccurred, stateError)

	fsm.Configure(stateDone)
	fsm.Configure(stateError)

	if err := fsm.ActivateCtx(ctx); err != nil {
		if turn.lastErr != nil {
			return "", turn.lastErr
		}
		return "", fmt.Errorf("turn state machine: %w", err)
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("turn state machine: %w", err)
	}
	switch state {
	case stateDone:
		logger.L.Info("chat turn committed", "chat_id", chatID, "attempts", turn.attempts)
		return turn.reply, nil
	case stateError:
		return "", turn.lastErr
	default:
		return "", fmt.Errorf("turn state machine ended in unexpected state: %v", state)
	}
}

// History returns the session's visible transcript in insertion order. It
// never mutates the session.
func (m *Manager) History(ctx context.Context, chatID, userID string) ([]chat.Message, error) {
	sess, err := m.store.Get(ctx, chatID)
	if err != nil {
		return nil, m.classify(ctx, err)
	}
	if sess.UserID != "" && sess.UserID != userID {
		logger.L.Warn("user mismatch", "chat_id", chatID, "user_id", userID)
		return nil, fmt.Errorf("%w: chat belongs to another user", chat.ErrForbidden)
	}
	return sess.Visible(m.hideSystem), nil
}

// classify maps a context deadline hit during a store call onto the
// timeout sentinel so the router reports it as such.
func (m *Manager) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chat.ErrTimeout, err)
	}
	return err
}
