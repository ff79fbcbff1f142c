package am

// Config represents the plansum configuration
type Config struct {
	Pipeline       PipelineConfig       `mapstructure:"pipeline" toml:"pipeline" json:"pipeline" yaml:"pipeline"`
	Reduce         ReduceConfig         `mapstructure:"reduce" toml:"reduce" json:"reduce" yaml:"reduce"`
	Rate           RateConfig           `mapstructure:"rate" toml:"rate" json:"rate" yaml:"rate"`
	Provider       ProviderConfig       `mapstructure:"provider" toml:"provider" json:"provider" yaml:"provider"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference" toml:"local_inference" json:"local_inference" yaml:"local_inference"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter" toml:"openrouter" json:"openrouter" yaml:"openrouter"`
	Database       DatabaseConfig       `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Budget         BudgetConfig         `mapstructure:"budget" toml:"budget" json:"budget" yaml:"budget"`
}

// PipelineConfig configures the per-document workflow
type PipelineConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"` // correction cycles per document before best-effort acceptance
	Workers     int `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`                     // documents processed concurrently
}

// ReduceConfig configures hierarchical aggregation
type ReduceConfig struct {
	TokenMax      int `mapstructure:"token_max" toml:"token_max" json:"token_max" yaml:"token_max"`                         // per-combine-call input ceiling
	BytesPerToken int `mapstructure:"bytes_per_token" toml:"bytes_per_token" json:"bytes_per_token" yaml:"bytes_per_token"` // token estimator divisor
	MaxDepth      int `mapstructure:"max_depth" toml:"max_depth" json:"max_depth" yaml:"max_depth"`                         // collapse levels before giving up
}

// RateConfig configures admission control in front of every capability call
type RateConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"` // 0 = unlimited
	Burst             int     `mapstructure:"burst" toml:"burst" json:"burst" yaml:"burst"`
}

// ProviderConfig selects the model backend
type ProviderConfig struct {
	Name string `mapstructure:"name" toml:"name" json:"name" yaml:"name"` // auto, local, openrouter
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, etc.)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled" toml:"enabled" json:"enabled" yaml:"enabled"`
	BaseURL        string `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url"` // e.g., "http://localhost:11434"
	Model          string `mapstructure:"model" toml:"model" json:"model" yaml:"model"`             // e.g., "llama3.2:3b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	ContextSize    int    `mapstructure:"context_size" toml:"context_size" json:"context_size" yaml:"context_size"` // 0 = model default
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key" toml:"api_key" json:"-" yaml:"-"`
	Model       string   `mapstructure:"model" toml:"model" json:"model" yaml:"model"`
	Temperature *float64 `mapstructure:"temperature" toml:"temperature" json:"temperature" yaml:"temperature"` // nil = client default
	MaxTokens   *int     `mapstructure:"max_tokens" toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`     // nil = client default
}

// DatabaseConfig configures the SQLite run store
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // empty disables persistence
}

// BudgetConfig caps model spend recorded in the usage table
type BudgetConfig struct {
	DailyUSD float64 `mapstructure:"daily_usd" toml:"daily_usd" json:"daily_usd" yaml:"daily_usd"` // 0 = no limit
}

// Provider names accepted by provider.name
const (
	ProviderAuto       = "auto"
	ProviderLocal      = "local"
	ProviderOpenRouter = "openrouter"
)
