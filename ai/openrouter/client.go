package openrouter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/plansum/ai/tracker"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/internal/httpclient"
	"github.com/teranos/plansum/internal/util"
	"github.com/teranos/plansum/internal/version"
	"github.com/teranos/plansum/logger"
)

const (
	// DefaultModel matches the openrouter.model default in am/defaults.go
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	maxRetries = 3
)

// Client is an OpenRouter.ai chat completions client with usage tracking.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *httpclient.SaferClient
	config       Config
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
	retryDelay   time.Duration
}

// Config holds client configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string             // empty = DefaultBaseURL
	Temperature *float64           // nil = 0
	MaxTokens   *int               // nil = 2000
	Logger      *zap.SugaredLogger // nil = nop
	DB          *sql.DB            // enables usage tracking into ai_model_usage
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.Temperature = util.Ptr(util.Or(config.Temperature, 0.0))
	config.MaxTokens = util.Ptr(util.Or(config.MaxTokens, 2000))

	var usageTracker *tracker.UsageTracker
	if config.DB != nil {
		usageTracker = tracker.NewUsageTracker(config.DB)
	}

	return &Client{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		httpClient:   httpclient.New(120 * time.Second),
		config:       config,
		usageTracker: usageTracker,
		logger:       logger.OrNop(config.Logger),
		retryDelay:   time.Second,
	}
}

// ChatRequest is a single prompt exchange.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	JSONMode     bool     // request a JSON object response
	Operation    string   // recorded in ai_model_usage.operation_type
	Temperature  *float64 // per-request overrides
	MaxTokens    *int
	Model        *string
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the completion output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is the wire request for /chat/completions
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatCompletionResponse is the wire response from /chat/completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage for a completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StatusError is a non-200 API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// CreateChatCompletion sends one request without retries.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "plansum")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Chat sends a request, retrying transient failures. Errors that leave the
// provider unreachable are marked errors.ErrUnavailable.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, errors.WithHint(
			errors.MarkUnavailable(errors.New("OpenRouter API key not configured")),
			"set OPENROUTER_API_KEY or openrouter.api_key in am.toml",
		)
	}

	temperature := util.Or(req.Temperature, *c.config.Temperature)
	maxTokens := util.Or(req.MaxTokens, *c.config.MaxTokens)
	model := util.Or(req.Model, c.config.Model)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	wire := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		wire.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	log := logger.FromContext(ctx, c.logger)
	log.Debugw("OpenRouter request",
		logger.FieldModel, model,
		"operation", req.Operation,
		"prompt_length", len(req.UserPrompt),
	)

	requestTime := time.Now()
	var resp *ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			log.Debugw("Retrying OpenRouter request", logger.FieldAttempt, attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, wire)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warnw("OpenRouter API error", logger.FieldAttempt, attempt+1, logger.FieldError, err, logger.FieldModel, model)
		if !isRetryableError(err) {
			c.track(ctx, req.Operation, model, temperature, maxTokens, requestTime, nil, err)
			return nil, classify(errors.Wrap(err, "OpenRouter API error"))
		}
	}
	if err != nil {
		c.track(ctx, req.Operation, model, temperature, maxTokens, requestTime, nil, err)
		return nil, errors.MarkUnavailable(errors.Wrapf(err, "OpenRouter API error after %d attempts", maxRetries))
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	c.track(ctx, req.Operation, model, temperature, maxTokens, requestTime, &resp.Usage, nil)

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// SetHTTPClient replaces the SSRF-safer client. Tests only.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

func (c *Client) track(ctx context.Context, operation, model string, temperature float64, maxTokens int, requestTime time.Time, usage *Usage, callErr error) {
	if c.usageTracker == nil {
		return
	}
	responseTime := time.Now()
	record := &tracker.ModelUsage{
		RunID:             logger.RunIDFromContext(ctx),
		OperationType:     operation,
		EntityType:        "document",
		EntityID:          logger.DocIDFromContext(ctx),
		ModelName:         model,
		ModelProvider:     "openrouter",
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if usage != nil {
		tokens := usage.TotalTokens
		cost := CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}
	// Tracking must not fail the call; the budget check reads these rows later
	if err := c.usageTracker.TrackUsage(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warnw("Failed to track usage", logger.FieldError, err, logger.FieldModel, model)
	}
}

// classify marks authentication failures unavailable: no document can succeed without credentials.
func classify(err error) error {
	var se *StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
		return errors.WithHint(errors.MarkUnavailable(err), "check the OpenRouter API key")
	}
	return err
}

// isRetryableError reports network failures and 429/5xx responses.
func isRetryableError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
