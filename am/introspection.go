package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/plansum/am.toml
	SourceUser        ConfigSource = "user"        // ~/.plansum/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found from the working directory
	SourceEnvironment ConfigSource = "environment" // PLANSUM_* env vars
)

// SourceOrder lists sources in ascending precedence.
var SourceOrder = []ConfigSource{SourceDefault, SourceSystem, SourceUser, SourceProject, SourceEnvironment}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource // The type of config source
	Path   string       // File path or environment variable name
}

// configSources is filled by initViper as files are merged.
var configSources map[string]SourceInfo

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// Introspect lists every effective setting with the source that set it,
// sorted by key. Secrets are reported with a masked value.
func Introspect() []SettingInfo {
	v := initViper()

	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := configSources[key]; ok {
			info = si
		}
		if env := envOverride(key); env != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: env}
		}

		value := v.Get(key)
		if key == "openrouter.api_key" && value != "" {
			value = "(set)"
		}
		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings
}

// envOverride returns the environment variable that sets key, if any.
func envOverride(key string) string {
	candidates := []string{"PLANSUM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
	if key == "openrouter.api_key" {
		candidates = append(candidates, "OPENROUTER_API_KEY")
	}
	for _, env := range candidates {
		if os.Getenv(env) != "" {
			return env
		}
	}
	return ""
}
