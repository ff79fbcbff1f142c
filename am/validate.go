package am

import "github.com/teranos/plansum/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// MaxAttempts must be finite and at least one correction cycle
	if c.Pipeline.MaxAttempts < 1 {
		return invalid("pipeline.max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.Workers < 1 {
		return invalid("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}

	if c.Reduce.TokenMax <= 0 {
		return invalid("reduce.token_max must be > 0, got %d", c.Reduce.TokenMax)
	}
	if c.Reduce.BytesPerToken <= 0 {
		return invalid("reduce.bytes_per_token must be > 0, got %d", c.Reduce.BytesPerToken)
	}
	if c.Reduce.MaxDepth < 1 {
		return invalid("reduce.max_depth must be >= 1, got %d", c.Reduce.MaxDepth)
	}

	// Rate: 0 = unlimited, negative = invalid
	if c.Rate.RequestsPerSecond < 0 {
		return invalid("rate.requests_per_second must be >= 0, got %f", c.Rate.RequestsPerSecond)
	}
	if c.Rate.RequestsPerSecond > 0 && c.Rate.Burst < 1 {
		return invalid("rate.burst must be >= 1 when rate limiting is enabled, got %d", c.Rate.Burst)
	}

	switch c.Provider.Name {
	case ProviderAuto, ProviderLocal, ProviderOpenRouter:
	default:
		return invalid("provider.name must be one of auto, local, openrouter; got %q", c.Provider.Name)
	}

	// Validate local inference configuration only when it can be selected
	if c.LocalInference.Enabled || c.Provider.Name == ProviderLocal {
		if c.LocalInference.BaseURL == "" {
			return invalid("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return invalid("local_inference.model cannot be empty when enabled")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return invalid("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return invalid("openrouter.max_tokens must be > 0, got %d", *c.OpenRouter.MaxTokens)
	}

	if c.Budget.DailyUSD < 0 {
		return invalid("budget.daily_usd must be >= 0, got %f", c.Budget.DailyUSD)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errors.ErrInvalidConfig)
}
