// Package llm wraps the OpenAI-compatible chat-completions API behind the
// Completion Provider contract: ordered messages in, one reply out.
package llm

import (
	"github.com/sashabaranov/go-openai"

	"github.com/vibelab/chatrelay/internal/config"
)

// NewClient creates a new OpenAI client. BaseURL allows pointing at any
// compatible endpoint.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
