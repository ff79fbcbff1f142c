package provider

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/plansum/ai/openrouter"
	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/errors"
)

// Provider names an LLM backend
type Provider string

const (
	// ProviderLocal uses an OpenAI-compatible local server (Ollama, LocalAI)
	ProviderLocal Provider = am.ProviderLocal
	// ProviderOpenRouter uses OpenRouter.ai
	ProviderOpenRouter Provider = am.ProviderOpenRouter
	// ProviderAuto picks local when enabled, OpenRouter otherwise
	ProviderAuto Provider = am.ProviderAuto
)

// AIClient is implemented by every LLM backend.
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Options carries the shared dependencies of a client.
type Options struct {
	DB     *sql.DB            // usage tracking; nil disables it
	Logger *zap.SugaredLogger // nil = nop
}

// NewAIClient builds the client named by cfg.Provider.Name.
func NewAIClient(cfg *am.Config, opts Options) (AIClient, error) {
	p, err := ParseProvider(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}
	return NewAIClientWithProvider(cfg, p, opts), nil
}

// NewAIClientWithProvider builds a client for a specific provider.
func NewAIClientWithProvider(cfg *am.Config, p Provider, opts Options) AIClient {
	switch p {
	case ProviderLocal:
		return newLocalClient(cfg, opts)
	case ProviderOpenRouter:
		return newOpenRouterClient(cfg, opts)
	default:
		return autoSelectClient(cfg, opts)
	}
}

// ResolveProvider returns the concrete provider cfg selects, resolving auto.
func ResolveProvider(cfg *am.Config) (Provider, error) {
	p, err := ParseProvider(cfg.Provider.Name)
	if err != nil {
		return "", err
	}
	if p == ProviderAuto {
		if cfg.LocalInference.Enabled {
			return ProviderLocal, nil
		}
		return ProviderOpenRouter, nil
	}
	return p, nil
}

// autoSelectClient prefers local inference when it is enabled.
func autoSelectClient(cfg *am.Config, opts Options) AIClient {
	if cfg.LocalInference.Enabled {
		return newLocalClient(cfg, opts)
	}
	return newOpenRouterClient(cfg, opts)
}

func newLocalClient(cfg *am.Config, opts Options) AIClient {
	return NewLocalProvider(cfg.LocalInference, opts)
}

func newOpenRouterClient(cfg *am.Config, opts Options) AIClient {
	return openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		Temperature: cfg.OpenRouter.Temperature,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		DB:          opts.DB,
		Logger:      opts.Logger,
	})
}

// GetAvailableProviders lists the providers the configuration can reach.
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider
	if cfg.LocalInference.Enabled {
		providers = append(providers, ProviderLocal)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}
	return providers
}

// ParseProvider accepts the provider names and their common aliases.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.Mark(
			errors.Newf("unknown provider: %s (valid: local, openrouter, auto)", s),
			errors.ErrInvalidConfig,
		)
	}
}

var (
	_ AIClient = (*openrouter.Client)(nil)
	_ AIClient = (*LocalProvider)(nil)
)
