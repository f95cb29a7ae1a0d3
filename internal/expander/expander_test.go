package expander

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drawgate/api/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExpandReturnsEnrichedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "expand-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "a cat", req.Messages[1].Content)

		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.Choice{
				{Message: openai.ChatMessage{Role: "assistant", Content: "a fluffy tabby cat in morning light"}},
			},
		})
	}))
	defer srv.Close()

	e := New(srv.URL, "expand-model", zap.NewNop())
	got := e.Expand(context.Background(), "sk-key", "a cat")
	assert.Equal(t, "a fluffy tabby cat in morning light", got)
}

func TestExpandFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(srv.URL, "m", zap.NewNop())
	assert.Equal(t, "a cat", e.Expand(context.Background(), "sk-key", "a cat"))
}

func TestExpandFallsBackWhenUnreachable(t *testing.T) {
	e := New("http://127.0.0.1:1", "m", zap.NewNop())
	assert.Equal(t, "a cat", e.Expand(context.Background(), "sk-key", "a cat"))
}

func TestExpandFallsBackOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	}))
	defer srv.Close()

	e := New(srv.URL, "m", zap.NewNop())
	assert.Equal(t, "a cat", e.Expand(context.Background(), "sk-key", "a cat"))
}
