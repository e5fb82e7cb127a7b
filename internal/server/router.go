// Package server is the request router: it maps the three envelope routes
// onto session-manager operations and owns every transport concern —
// CORS, user allow-listing, rate limiting, validation, and the mapping of
// domain errors onto client-safe responses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/config"
	"github.com/vibelab/chatrelay/internal/logger"
	"github.com/vibelab/chatrelay/internal/relay"
)

// SessionManager is the subset of the relay manager the router dispatches
// to; defined here so tests can substitute a stub.
type SessionManager interface {
	Initialize(ctx context.Context, params relay.InitializeParams) ([]chat.Message, error)
	Chat(ctx context.Context, chatID, userID, message string) (string, error)
	History(ctx context.Context, chatID, userID string) ([]chat.Message, error)
}

// envelope is the request body: a route name plus its payload.
type envelope struct {
	Route   string  `json:"route"`
	Payload payload `json:"payload"`
}

// payload is the union of all route payload fields.
type payload struct {
	ChatID                  string `json:"chat_id"`
	UserID                  string `json:"user_id"`
	SystemMessage           string `json:"system_message"`
	InitialAssistantMessage string `json:"initial_assistant_message"`
	InitialUserMessage      string `json:"initial_user_message"`
	Message                 string `json:"message"`
}

// wireMessage is the response shape for transcript entries.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Messages []wireMessage `json:"messages"`
}

type replyResponse struct {
	Message string `json:"message"`
}

// Router serves the single chat endpoint plus a liveness probe.
type Router struct {
	mux     *http.ServeMux
	manager SessionManager
	cfg     config.ServerConfig
	allowed map[string]struct{} // allow-listed user ids; empty = allow all
	limiter *rateLimiter
}

// NewRouter builds the router with all routes registered.
func NewRouter(manager SessionManager, cfg config.ServerConfig, allowedUserIDs []string) *Router {
	rt := &Router{
		mux:     http.NewServeMux(),
		manager: manager,
		cfg:     cfg,
		allowed: make(map[string]struct{}, len(allowedUserIDs)),
		limiter: newRateLimiter(cfg.RateLimit),
	}
	for _, id := range allowedUserIDs {
		rt.allowed[id] = struct{}{}
	}
	rt.mux.HandleFunc("/", rt.handleChat)
	rt.mux.HandleFunc("GET /healthz", rt.handleHealth)
	return rt
}

// Handler returns the router with middleware applied.
// Order: recovery → logging → rate limit → handler.
func (rt *Router) Handler() http.Handler {
	return chain(rt.mux, recoveryMiddleware, loggingMiddleware, rt.limiter.middleware)
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat is the single dispatch endpoint for all three routes.
func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if !rt.originAllowed(origin) {
		// No CORS headers on the rejection forces the browser to block.
		logger.L.Warn("origin not allowed", "origin", origin)
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	rt.setCORSHeaders(w, origin)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if env.Payload.ChatID == "" || env.Payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "chat_id and user_id are required")
		return
	}
	if len(rt.allowed) > 0 {
		if _, ok := rt.allowed[env.Payload.UserID]; !ok {
			logger.L.Warn("user not allow-listed", "user_id", env.Payload.UserID)
			writeError(w, http.StatusForbidden, "user not allowed")
			return
		}
	}

	ctx := r.Context()
	if rt.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.RequestTimeout)
		defer cancel()
	}

	switch env.Route {
	case "initialize":
		messages, err := rt.manager.Initialize(ctx, relay.InitializeParams{
			ChatID:                  env.Payload.ChatID,
			UserID:                  env.Payload.UserID,
			SystemMessage:           env.Payload.SystemMessage,
			InitialAssistantMessage: env.Payload.InitialAssistantMessage,
			InitialUserMessage:      env.Payload.InitialUserMessage,
		})
		if err != nil {
			rt.writeDomainError(w, env.Route, err)
			return
		}
		writeJSON(w, http.StatusOK, toWire(messages))

	case "chat":
		if env.Payload.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		reply, err := rt.manager.Chat(ctx, env.Payload.ChatID, env.Payload.UserID, env.Payload.Message)
		if err != nil {
			rt.writeDomainError(w, env.Route, err)
			return
		}
		writeJSON(w, http.StatusOK, replyResponse{Message: reply})

	case "history":
		messages, err := rt.manager.History(ctx, env.Payload.ChatID, env.Payload.UserID)
		if err != nil {
			rt.writeDomainError(w, env.Route, err)
			return
		}
		writeJSON(w, http.StatusOK, toWire(messages))

	default:
		writeError(w, http.StatusBadRequest, "invalid route specified")
	}
}

// writeDomainError maps manager errors onto status codes and client-safe
// messages. Expected user-facing conditions (limits, forbidden) keep their
// message; everything else is generic with detail only in the log.
func (rt *Router) writeDomainError(w http.ResponseWriter, route string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "chat session not found")
	case errors.Is(err, chat.ErrLimitExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, chat.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrTimeout):
		logger.L.Error("request timed out", "route", route, "error", err)
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, chat.ErrProvider):
		logger.L.Error("provider failure", "route", route, "error", err)
		writeError(w, http.StatusBadGateway, "completion service unavailable")
	default:
		logger.L.Error("request failed", "route", route, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// originAllowed reports whether the request origin may use the API.
// Requests without an Origin header (non-browser clients) pass; browser
// origins must prefix-match a configured origin unless the wildcard is
// set. An empty configuration allows everything.
func (rt *Router) originAllowed(origin string) bool {
	if origin == "" || len(rt.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range rt.cfg.AllowedOrigins {
		if allowed == "*" || strings.HasPrefix(origin, strings.TrimRight(allowed, "/")) {
			return true
		}
	}
	return false
}

func (rt *Router) setCORSHeaders(w http.ResponseWriter, origin string) {
	for _, allowed := range rt.cfg.AllowedOrigins {
		if allowed == "*" {
			origin = "*"
			break
		}
	}
	if origin == "" {
		origin = "*"
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Allow-Methods", "POST,OPTIONS")
}

func toWire(messages []chat.Message) messagesResponse {
	out := messagesResponse{Messages: make([]wireMessage, 0, len(messages))}
	for _, m := range messages {
		out.Messages = append(out.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
