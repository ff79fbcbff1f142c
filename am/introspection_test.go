package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsByKey(settings []SettingInfo) map[string]SettingInfo {
	m := make(map[string]SettingInfo, len(settings))
	for _, s := range settings {
		m[s.Key] = s
	}
	return m
}

func TestIntrospectTracksSources(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".plansum"), 0o755))
	userPath := filepath.Join(home, ".plansum", ConfigFileName)
	require.NoError(t, os.WriteFile(userPath, []byte("[pipeline]\nworkers = 6\nmax_attempts = 2\n"), 0o644))

	project := t.TempDir()
	projectPath := filepath.Join(project, ConfigFileName)
	require.NoError(t, os.WriteFile(projectPath, []byte("[pipeline]\nworkers = 9\n"), 0o644))
	t.Chdir(project)

	t.Setenv("PLANSUM_REDUCE_TOKEN_MAX", "1500")
	t.Setenv("OPENROUTER_API_KEY", "sk-secret")

	settings := settingsByKey(Introspect())

	workers := settings["pipeline.workers"]
	assert.Equal(t, SourceProject, workers.Source, "project overrides user")
	assert.Equal(t, projectPath, workers.SourcePath)

	attempts := settings["pipeline.max_attempts"]
	assert.Equal(t, SourceUser, attempts.Source)
	assert.Equal(t, userPath, attempts.SourcePath)

	assert.Equal(t, SourceEnvironment, settings["reduce.token_max"].Source)
	assert.Equal(t, "PLANSUM_REDUCE_TOKEN_MAX", settings["reduce.token_max"].SourcePath)

	assert.Equal(t, SourceDefault, settings["reduce.max_depth"].Source)

	key := settings["openrouter.api_key"]
	assert.Equal(t, "(set)", key.Value)
	assert.Equal(t, "OPENROUTER_API_KEY", key.SourcePath)
}

func TestConfigPathsOrder(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	paths := ConfigPaths()
	require.Len(t, paths, 2, "no project config found")
	assert.Equal(t, filepath.Join("/etc/plansum", ConfigFileName), paths[0])
}
