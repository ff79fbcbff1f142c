package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage plansum configuration",
	Long: `am - Manage plansum configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (PLANSUM_* prefix, OPENROUTER_API_KEY)
3. Project config (./am.toml, searched upwards)
4. User config (~/.plansum/am.toml)
5. System config (/etc/plansum/am.toml)
6. Default values

Examples:
  plansum am show                    # Show current configuration
  plansum am show --format json      # Show configuration in JSON format
  plansum am get reduce.token_max    # Get specific config value
  plansum am validate                # Validate current configuration
  plansum am where                   # List the config files consulted`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current plansum configuration from all sources. The OpenRouter API key is masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pipeline.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	data, err := marshalConfig(maskSecrets(cfg), configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

// marshalConfig renders cfg in one of the supported formats.
func marshalConfig(cfg *am.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return append([]byte("# plansum configuration\n"), data...), nil
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return append([]byte("# plansum configuration\n"), data...), nil
	default:
		return nil, errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *am.Config) *am.Config {
	masked := *cfg
	if key := masked.OpenRouter.APIKey; key != "" {
		if len(key) > 8 {
			masked.OpenRouter.APIKey = key[:4] + "..." + key[len(key)-4:]
		} else {
			masked.OpenRouter.APIKey = "****"
		}
	}
	return &masked
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	if key == "openrouter.api_key" {
		return errors.WithHint(errors.New("refusing to print the API key"), "use `plansum am show` for a masked view")
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  [DEFAULT]  Built-in defaults")
	for _, path := range am.ConfigPaths() {
		status := "missing"
		if _, err := os.Stat(path); err == nil {
			status = "loaded"
		}
		fmt.Fprintf(out, "  [FILE]     %s (%s)\n", path, status)
	}
	fmt.Fprintln(out, "  [ENV]      PLANSUM_* environment variables")
	fmt.Fprintln(out)

	bySource := make(map[am.ConfigSource][]am.SettingInfo)
	for _, setting := range am.Introspect() {
		bySource[setting.Source] = append(bySource[setting.Source], setting)
	}

	fmt.Fprintln(out, "Active configuration:")
	for _, source := range am.SourceOrder {
		settings := bySource[source]
		if len(settings) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s: %d settings\n", source, len(settings))
		for _, s := range settings {
			origin := ""
			if s.SourcePath != "" && source != am.SourceDefault {
				origin = "  (" + s.SourcePath + ")"
			}
			fmt.Fprintf(out, "  %s = %v%s\n", s.Key, s.Value, origin)
		}
	}
	return nil
}
