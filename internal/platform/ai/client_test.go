package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Chat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Stay hydrated."}}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "gpt-4o-mini", zerolog.Nop())
	resp, err := c.Chat(context.Background(), ChatRequest{
		SystemPrompt: "You are a care assistant.",
		Context:      "PATIENT: PATIENT_ABCDEF12",
		Message:      "Any advice?",
		Temperature:  0.2,
		MaxTokens:    256,
	})
	require.NoError(t, err)
	assert.Equal(t, "Stay hydrated.", resp.Content)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", "m", zerolog.Nop())
	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestBuildMessages_SkipsEmptyParts(t *testing.T) {
	assert.Len(t, buildMessages(ChatRequest{Message: "hi"}), 1)
	assert.Len(t, buildMessages(ChatRequest{SystemPrompt: "s", Message: "hi"}), 2)
}

func TestMockClient(t *testing.T) {
	m := &MockClient{Reply: "ok"}
	resp, err := m.Chat(context.Background(), ChatRequest{Model: "x", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, m.Requests, 1)
}
