package openrouter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/plansum/errors"
	plansumtest "github.com/teranos/plansum/internal/testing"
	"github.com/teranos/plansum/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	cfg.BaseURL = server.URL
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	client := NewClient(cfg)
	client.SetHTTPClient(server.Client())
	client.retryDelay = 0
	return client
}

func reply(content string, usage Usage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:      "gen-1",
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"}},
			Usage:   usage,
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	assert.Equal(t, DefaultModel, c.config.Model)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 0.0, *c.config.Temperature)
	assert.Equal(t, 2000, *c.config.MaxTokens)
	assert.True(t, c.IsConfigured())
	assert.False(t, NewClient(Config{}).IsConfigured())
}

func TestChat(t *testing.T) {
	t.Run("sends system prompt and JSON response format", func(t *testing.T) {
		var got ChatCompletionRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			reply(`  {"themes": ["Homes"]}  `, Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})(w, r)
		}, Config{})

		resp, err := client.Chat(context.Background(), ChatRequest{
			SystemPrompt: "select themes",
			UserPrompt:   "build more homes",
			JSONMode:     true,
		})
		require.NoError(t, err)
		assert.Equal(t, `{"themes": ["Homes"]}`, resp.Content)
		assert.Equal(t, 30, resp.Usage.TotalTokens)

		require.Len(t, got.Messages, 2)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.Equal(t, "build more homes", got.Messages[1].Content)
		require.NotNil(t, got.ResponseFormat)
		assert.Equal(t, "json_object", got.ResponseFormat.Type)
		assert.Equal(t, DefaultModel, got.Model)
	})

	t.Run("per-request overrides", func(t *testing.T) {
		var got ChatCompletionRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			reply("ok", Usage{})(w, r)
		}, Config{})

		temp, tokens, model := 0.9, 500, "custom/model"
		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x", Temperature: &temp, MaxTokens: &tokens, Model: &model})
		require.NoError(t, err)
		assert.Equal(t, 0.9, got.Temperature)
		assert.Equal(t, 500, got.MaxTokens)
		assert.Equal(t, "custom/model", got.Model)
		assert.Nil(t, got.ResponseFormat)
		assert.Len(t, got.Messages, 1)
	})

	t.Run("missing API key is unavailable with hint", func(t *testing.T) {
		_, err := NewClient(Config{}).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.True(t, errors.IsUnavailableError(err))
		assert.Contains(t, errors.FlattenHints(err), "OPENROUTER_API_KEY")
	})

	t.Run("empty choices", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ChatCompletionResponse{})
		}, Config{})
		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no response choices")
		assert.False(t, errors.IsUnavailableError(err))
	})

	t.Run("malformed body is not retried", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Write([]byte("invalid json"))
		}, Config{})
		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestChatRetries(t *testing.T) {
	t.Run("server errors are retried then marked unavailable", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "upstream down", http.StatusBadGateway)
		}, Config{})

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
		assert.True(t, errors.IsUnavailableError(err))
	})

	t.Run("recovers after a transient failure", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			reply("fine", Usage{})(w, r)
		}, Config{})

		resp, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "fine", resp.Content)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("bad request is neither retried nor unavailable", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "context length exceeded", http.StatusBadRequest)
		}, Config{})

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.False(t, errors.IsUnavailableError(err))
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("unauthorized is unavailable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad key", http.StatusUnauthorized)
		}, Config{})

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.True(t, errors.IsUnavailableError(err))
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"dns timeout", &net.DNSError{Err: "no such host", IsTimeout: true}, true},
		{"dns failure", &net.DNSError{Err: "no such host"}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"reset", errors.Wrap(errors.New("connection reset by peer"), "send"), true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"invalid json", errors.New("invalid json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}

func TestChatTracksUsage(t *testing.T) {
	db := plansumtest.CreateTestDB(t)
	client := newTestClient(t, reply("ok", Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}), Config{DB: db})

	ctx := logger.WithDocID(logger.WithRunID(context.Background(), "run-1"), "rep-7")
	_, err := client.Chat(ctx, ChatRequest{UserPrompt: "x", Operation: "summarize"})
	require.NoError(t, err)

	var (
		runID, op, entity string
		tokens            int
		cost              float64
	)
	err = db.QueryRow(`SELECT run_id, operation_type, entity_id, tokens_used, cost FROM ai_model_usage`).
		Scan(&runID, &op, &entity, &tokens, &cost)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, "summarize", op)
	assert.Equal(t, "rep-7", entity)
	assert.Equal(t, 1500, tokens)
	assert.InDelta(t, 0.00045, cost, 1e-9)
}
