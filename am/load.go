package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/plansum/errors"
)

// ConfigFileName is the file looked up in system, user and project locations.
const ConfigFileName = "am.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the plansum configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, on top of the defaults
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	configSources = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("PLANSUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// Precedence (lowest to highest): system < user < project < env vars
	configSources = make(map[string]SourceInfo)
	for _, layer := range configLayers() {
		mergeConfigFile(v, layer)
	}

	viperInstance = v
	return v
}

type configLayer struct {
	source ConfigSource
	path   string
}

func configLayers() []configLayer {
	layers := []configLayer{{SourceSystem, filepath.Join("/etc/plansum", ConfigFileName)}}
	if home, err := os.UserHomeDir(); err == nil {
		layers = append(layers, configLayer{SourceUser, filepath.Join(home, ".plansum", ConfigFileName)})
	}
	if project := findProjectConfig(); project != "" {
		layers = append(layers, configLayer{SourceProject, project})
	}
	return layers
}

// ConfigPaths lists candidate config files in ascending precedence.
// Missing files are included; callers stat them.
func ConfigPaths() []string {
	layers := configLayers()
	paths := make([]string, len(layers))
	for i, l := range layers {
		paths[i] = l.path
	}
	return paths
}

// mergeConfigFile merges one file into v and records which keys it set.
func mergeConfigFile(v *viper.Viper, layer configLayer) {
	if _, err := os.Stat(layer.path); err != nil {
		return
	}
	tempViper := viper.New()
	tempViper.SetConfigFile(layer.path)
	tempViper.SetConfigType("toml")
	if err := tempViper.ReadInConfig(); err != nil {
		return
	}
	if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
		return
	}
	for _, key := range tempViper.AllKeys() {
		configSources[key] = SourceInfo{Source: layer.source, Path: layer.path}
	}
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return initViper().Get(key)
}
