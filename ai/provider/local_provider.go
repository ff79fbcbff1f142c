package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/plansum/ai/openrouter"
	"github.com/teranos/plansum/ai/tracker"
	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/internal/httpclient"
	"github.com/teranos/plansum/internal/util"
	"github.com/teranos/plansum/internal/version"
	"github.com/teranos/plansum/logger"
)

// LocalProvider talks to an OpenAI-compatible local server (Ollama, LocalAI).
type LocalProvider struct {
	baseURL      string
	model        string
	contextSize  int
	httpClient   *httpclient.SaferClient
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
}

// NewLocalProvider creates a provider for local inference.
func NewLocalProvider(cfg am.LocalInferenceConfig, opts Options) *LocalProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	// Local servers live on loopback or the LAN
	allowPrivate := false
	lp := &LocalProvider{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		contextSize: cfg.ContextSize,
		httpClient:  httpclient.NewWithOptions(timeout, httpclient.Options{BlockPrivateIP: &allowPrivate}),
		logger:      logger.OrNop(opts.Logger),
	}
	if opts.DB != nil {
		lp.usageTracker = tracker.NewUsageTracker(opts.DB)
	}
	return lp
}

type localChatRequest struct {
	Model    string               `json:"model"`
	Messages []openrouter.Message `json:"messages"`
	Stream   bool                 `json:"stream"`
	Format   string               `json:"format,omitempty"` // Ollama JSON mode
	Options  *localCompletionOpts `json:"options,omitempty"`
}

type localCompletionOpts struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

// Chat implements AIClient. Connection failures are marked unavailable.
func (lp *LocalProvider) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	messages := []openrouter.Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]openrouter.Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	model := util.Or(req.Model, lp.model)
	opts := &localCompletionOpts{
		NumCtx:      lp.contextSize,
		Temperature: util.Or(req.Temperature, 0),
		MaxTokens:   util.Or(req.MaxTokens, 0),
	}
	body := localChatRequest{Model: model, Messages: messages, Options: opts}
	if req.JSONMode {
		body.Format = "json"
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lp.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	requestTime := time.Now()
	resp, err := lp.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WithHint(
			errors.MarkUnavailable(errors.Wrapf(err, "local inference at %s unreachable", lp.baseURL)),
			"start the local model server or set local_inference.enabled = false",
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		err := errors.Newf("local inference returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
			err = errors.MarkUnavailable(err)
		}
		lp.track(ctx, req.Operation, model, requestTime, nil, err)
		return nil, err
	}

	var completion openrouter.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	lp.track(ctx, req.Operation, model, requestTime, &completion.Usage, nil)

	return &openrouter.ChatResponse{
		Content: strings.TrimSpace(completion.Choices[0].Message.Content),
		Model:   model,
		Usage:   completion.Usage,
	}, nil
}

// GetModelName returns the configured local model name
func (lp *LocalProvider) GetModelName() string {
	return lp.model
}

// track records local calls at zero cost so per-run stats include them.
func (lp *LocalProvider) track(ctx context.Context, operation, model string, requestTime time.Time, usage *openrouter.Usage, callErr error) {
	if lp.usageTracker == nil {
		return
	}
	responseTime := time.Now()
	zero := 0.0
	record := &tracker.ModelUsage{
		RunID:             logger.RunIDFromContext(ctx),
		OperationType:     operation,
		EntityType:        "document",
		EntityID:          logger.DocIDFromContext(ctx),
		ModelName:         model,
		ModelProvider:     "local",
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Cost:              &zero,
		Success:           callErr == nil,
	}
	if usage != nil {
		tokens := usage.TotalTokens
		record.TokensUsed = &tokens
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}
	if err := lp.usageTracker.TrackUsage(context.WithoutCancel(ctx), record); err != nil {
		lp.logger.Warnw("Failed to track local usage", logger.FieldError, err, logger.FieldModel, model)
	}
}
