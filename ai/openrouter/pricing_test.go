package openrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		expected         float64
	}{
		// ($0.15 * 1000/1M) + ($0.60 * 500/1M)
		{"gpt-4o-mini summary call", "openai/gpt-4o-mini", 1000, 500, 0.00045},
		// ($2.50 * 5000/1M) + ($10.00 * 2000/1M)
		{"gpt-4o combine call", "openai/gpt-4o", 5000, 2000, 0.0325},
		{"llama 8b", "meta-llama/llama-3.1-8b-instruct", 2000, 2000, 0.00022},
		{"zero tokens", "openai/gpt-4o-mini", 0, 0, 0},
		{"unknown model falls back", "acme/unknown", 100000, 100000, DefaultPricingFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateCost(tt.model, tt.promptTokens, tt.completionTokens), 1e-9)
		})
	}
}

func TestGetPricing(t *testing.T) {
	p, ok := GetPricing(DefaultModel)
	assert.True(t, ok)
	assert.Equal(t, 0.15, p.PromptPrice)

	_, ok = GetPricing("acme/unknown")
	assert.False(t, ok)
}
