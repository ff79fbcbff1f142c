package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/plansum/ai/openrouter"
	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/errors"
	plansumtest "github.com/teranos/plansum/internal/testing"
	"github.com/teranos/plansum/logger"
)

func localConfig(url string) am.LocalInferenceConfig {
	return am.LocalInferenceConfig{
		Enabled:        true,
		BaseURL:        url,
		Model:          "llama3.2:3b",
		TimeoutSeconds: 5,
		ContextSize:    16384,
	}
}

func TestLocalProviderChat(t *testing.T) {
	var got localChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(openrouter.ChatCompletionResponse{
			Choices: []openrouter.Choice{{Message: openrouter.Message{Role: "assistant", Content: "{\"flagged\": false}\n"}}},
			Usage:   openrouter.Usage{PromptTokens: 40, CompletionTokens: 6, TotalTokens: 46},
		})
	}))
	defer server.Close()

	db := plansumtest.CreateTestDB(t)
	lp := NewLocalProvider(localConfig(server.URL+"/"), Options{DB: db, Logger: zaptest.NewLogger(t).Sugar()})

	ctx := logger.WithRunID(context.Background(), "run-local")
	resp, err := lp.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: "check",
		UserPrompt:   "summary",
		JSONMode:     true,
		Operation:    "validate",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"flagged": false}`, resp.Content)
	assert.Equal(t, 46, resp.Usage.TotalTokens)

	assert.Equal(t, "llama3.2:3b", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 16384, got.Options.NumCtx)
	require.Len(t, got.Messages, 2)

	var provider string
	var cost float64
	require.NoError(t, db.QueryRow(`SELECT model_provider, cost FROM ai_model_usage WHERE run_id = 'run-local'`).Scan(&provider, &cost))
	assert.Equal(t, "local", provider)
	assert.Zero(t, cost)
}

func TestLocalProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	lp := NewLocalProvider(localConfig(url), Options{})
	_, err := lp.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsUnavailableError(err))
	assert.Contains(t, errors.FlattenHints(err), "local_inference.enabled")
}

func TestLocalProviderStatusErrors(t *testing.T) {
	tests := []struct {
		status      int
		unavailable bool
	}{
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := NewLocalProvider(localConfig(server.URL), Options{}).Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.IsUnavailableError(err))
		})
	}
}

func TestLocalProviderContextCancelled(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalProvider(localConfig(server.URL), Options{}).Chat(ctx, openrouter.ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
