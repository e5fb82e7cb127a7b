package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/config"
)

type mockClient struct {
	resp openai.ChatCompletionResponse
	err  error
	req  openai.ChatCompletionRequest
}

func (m *mockClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.req = req
	return m.resp, m.err
}

func TestComplete_MapsHistory(t *testing.T) {
	client := &mockClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hi"}}},
		},
	}
	p := NewProvider(client, config.LLMConfig{Model: "gpt-4o", MaxTokens: 256})

	reply, err := p.Complete(context.Background(), []chat.Message{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hi", reply)
	require.Equal(t, "gpt-4o", client.req.Model)
	require.Equal(t, 256, client.req.MaxTokens)
	require.Len(t, client.req.Messages, 2)
	require.Equal(t, chat.RoleSystem, client.req.Messages[0].Role)
}

func TestComplete_ProviderError(t *testing.T) {
	client := &mockClient{err: errors.New("boom")}
	p := NewProvider(client, config.LLMConfig{Model: "gpt-4o"})

	_, err := p.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, chat.ErrProvider)
}

func TestComplete_Timeout(t *testing.T) {
	client := &mockClient{err: context.DeadlineExceeded}
	p := NewProvider(client, config.LLMConfig{Model: "gpt-4o"})

	_, err := p.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, chat.ErrTimeout)
}

func TestComplete_EmptyResponse(t *testing.T) {
	client := &mockClient{resp: openai.ChatCompletionResponse{}}
	p := NewProvider(client, config.LLMConfig{Model: "gpt-4o"})

	_, err := p.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, chat.ErrProvider)
}
