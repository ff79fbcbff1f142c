package am

import (
	"github.com/spf13/viper"
)

// Default values shared with callers that build a Config without viper (tests, library use).
const (
	DefaultMaxAttempts   = 3
	DefaultWorkers       = 4
	DefaultTokenMax      = 8000
	DefaultBytesPerToken = 4
	DefaultMaxDepth      = 8
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Pipeline defaults
	v.SetDefault("pipeline.max_attempts", DefaultMaxAttempts)
	v.SetDefault("pipeline.workers", DefaultWorkers)

	// Reduce defaults
	v.SetDefault("reduce.token_max", DefaultTokenMax)
	v.SetDefault("reduce.bytes_per_token", DefaultBytesPerToken)
	v.SetDefault("reduce.max_depth", DefaultMaxDepth)

	// Rate defaults (generous; the provider's own limits still apply)
	v.SetDefault("rate.requests_per_second", 50.0)
	v.SetDefault("rate.burst", 10)

	v.SetDefault("provider.name", ProviderAuto)

	// Local Inference (Ollama) defaults
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 600)
	v.SetDefault("local_inference.context_size", 16384)

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.0) // Summaries should be reproducible
	v.SetDefault("openrouter.max_tokens", 2000)

	v.SetDefault("database.path", "plansum.db")
	v.SetDefault("budget.daily_usd", 5.0)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("openrouter.api_key", "PLANSUM_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
}

// Default returns a Config populated with the same defaults SetDefaults registers.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(err)
	}
	return cfg
}
