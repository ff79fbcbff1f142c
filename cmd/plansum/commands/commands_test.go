package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/workflow"
)

func TestMaskSecrets(t *testing.T) {
	cfg := am.Default()
	cfg.OpenRouter.APIKey = "sk-or-v1-abcdef123456"

	masked := maskSecrets(cfg)
	assert.Equal(t, "sk-o...3456", masked.OpenRouter.APIKey)
	assert.Equal(t, "sk-or-v1-abcdef123456", cfg.OpenRouter.APIKey, "original untouched")

	cfg.OpenRouter.APIKey = "short"
	assert.Equal(t, "****", maskSecrets(cfg).OpenRouter.APIKey)
}

func TestMarshalConfigFormats(t *testing.T) {
	cfg := am.Default()

	out, err := marshalConfig(cfg, "toml")
	require.NoError(t, err)
	var decoded am.Config
	require.NoError(t, toml.Unmarshal(out, &decoded))
	assert.Equal(t, cfg.Reduce.TokenMax, decoded.Reduce.TokenMax)

	out, err = marshalConfig(cfg, "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, cfg.Pipeline.MaxAttempts, decoded.Pipeline.MaxAttempts)

	out, err = marshalConfig(cfg, "json")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"token_max"`)
	assert.NotContains(t, string(out), "api_key")

	_, err = marshalConfig(cfg, "ini")
	assert.Error(t, err)
}

func TestApplyRunFlags(t *testing.T) {
	t.Cleanup(func() { runWorkers, runMaxAttempts, runTokenMax = 0, 0, 0 })

	base := am.Default()
	same := applyRunFlags(base)
	assert.Equal(t, base.Pipeline, same.Pipeline)

	runWorkers, runMaxAttempts, runTokenMax = 2, 5, 1200
	cfg := applyRunFlags(base)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 1200, cfg.Reduce.TokenMax)
	assert.Equal(t, am.DefaultWorkers, base.Pipeline.Workers, "base config untouched")
}

func TestNewModelClientRequiresKey(t *testing.T) {
	cfg := am.Default()
	cfg.Provider.Name = am.ProviderOpenRouter
	cfg.OpenRouter.APIKey = ""

	_, err := newModelClient(cfg, nil, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.Contains(t, errors.FlattenHints(err), "OPENROUTER_API_KEY")

	cfg.Provider.Name = am.ProviderLocal
	client, err := newModelClient(cfg, nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestProgressCountsTerminalRecords(t *testing.T) {
	p := newProgress(3, false)
	p.start()

	rec := workflow.NewRecord("a")
	p.ObserveMerge(context.Background(), rec, 0)
	rec.State = workflow.StateTerminal
	p.ObserveMerge(context.Background(), rec, 1)

	assert.Equal(t, "Summarised 1/3 representations", p.text())
	p.finish(nil)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	got := truncate(strings.Repeat("é", 20), 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
