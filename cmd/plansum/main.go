package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/plansum/cmd/plansum/commands"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
)

var rootCmd = &cobra.Command{
	Use:   "plansum",
	Short: "plansum - Summarise consultation representations",
	Long: `plansum - Summarise public consultation representations.

Each representation is themed, summarised and checked against its source
text, with bounded revision when the check flags a problem. Accepted
summaries are then grouped by theme, stance and policy and collapsed into
an executive summary.

Available commands:
  run      - Summarise a directory of representations into a report
  runs     - Inspect persisted runs
  am       - Manage plansum configuration ("I am")
  version  - Show version information

Examples:
  plansum run ./representations --out report.md
  plansum runs ls
  plansum am show --format yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(false, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		logger.Cleanup()
		os.Exit(1)
	}
}
