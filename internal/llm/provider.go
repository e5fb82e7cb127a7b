package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/config"
	"github.com/vibelab/chatrelay/internal/logger"
)

// Provider generates assistant replies from a session's message history.
type Provider struct {
	client Client
	cfg    config.LLMConfig
}

// NewProvider wraps a client with the configured model parameters.
func NewProvider(client Client, cfg config.LLMConfig) *Provider {
	return &Provider{client: client, cfg: cfg}
}

// Complete sends the full ordered history (system message included) and
// returns the assistant reply. Failures are classified: a deadline or
// cancellation surfaces chat.ErrTimeout, everything else chat.ErrProvider.
func (p *Provider) Complete(ctx context.Context, messages []chat.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	if p.cfg.MaxTokens > 0 {
		req.MaxTokens = p.cfg.MaxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("completion call: %w", chat.ErrTimeout)
		}
		logger.L.Error("completion call failed", "error", err)
		return "", fmt.Errorf("completion call: %w: %v", chat.ErrProvider, err)
	}
	logger.L.Info("completion call finished", "model", p.cfg.Model, "duration", time.Since(start))

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion response: %w", chat.ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}
