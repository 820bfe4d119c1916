// Package ai talks to the external language model that answers questions
// about a patient's (already anonymized) context.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// ChatRequest is one question about a patient. Context must already be
// anonymized; this package never inspects it.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Context      string
	Message      string
	Temperature  float64
	MaxTokens    int64
}

type ChatResponse struct {
	Model   string
	Content string
}

// Client is the outbound LLM collaborator.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var ErrNoChoices = errors.New("ai: model returned no choices")

// OpenAIClient calls any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIClient(baseURL, apiKey, defaultModel string, logger zerolog.Logger) *OpenAIClient {
	options := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey == "" {
		logger.Info().Str("base_url", baseURL).Msg("AI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &OpenAIClient{client: &client, defaultModel: defaultModel}
}

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req),
		Model:    model,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("ai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return &ChatResponse{Model: resp.Model, Content: resp.Choices[0].Message.Content}, nil
}

func buildMessages(req ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	if req.Context != "" {
		msgs = append(msgs, openai.SystemMessage("Patient context:\n"+req.Context))
	}
	return append(msgs, openai.UserMessage(req.Message))
}

// MockClient records requests and replies with Reply or Err.
type MockClient struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Requests []ChatRequest
}

func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Model: req.Model, Content: m.Reply}, nil
}
