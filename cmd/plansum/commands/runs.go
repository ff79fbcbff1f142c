package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/db"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/reduce"
	"github.com/teranos/plansum/report"
	"github.com/teranos/plansum/runstore"
	"github.com/teranos/plansum/workflow"
)

// RunsCmd inspects persisted runs.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted runs",
	Long: `Inspect runs recorded in the database at database.path.

Examples:
  plansum runs ls                  # Recent runs
  plansum runs show <run-id>       # Outcomes and per-document records
  plansum runs show <run-id> --report > report.md`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its document records",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var (
	runsLimit      int
	runsJSON       bool
	runsShowReport bool
)

func init() {
	runsLsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list")
	runsLsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	runsShowCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	runsShowCmd.Flags().BoolVar(&runsShowReport, "report", false, "Re-render the stored report as markdown")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func openStore() (*runstore.Store, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	if cfg.Database.Path == "" {
		return nil, nil, errors.WithHint(errors.New("persistence is disabled"), "set database.path in am.toml")
	}
	log := logger.ComponentLogger("runs")
	database, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}
	return runstore.NewStore(database, log), func() { database.Close() }, nil
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := store.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	if runsJSON {
		return writeJSON(cmd, runs)
	}
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}

	data := pterm.TableData{{"Run", "Status", "Docs", "Started", "Duration", "Title"}}
	for _, run := range runs {
		data = append(data, []string{
			run.ID,
			statusColor(run.Status),
			fmt.Sprint(run.TotalDocuments),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			runDuration(run),
			run.Title,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if runsShowReport {
		if run.Report == "" {
			return errors.Newf("run %s has no stored report (status %s)", run.ID, run.Status)
		}
		var rep reduce.Report
		if err := json.Unmarshal([]byte(run.Report), &rep); err != nil {
			return errors.Wrapf(err, "failed to decode report for run %s", run.ID)
		}
		meta := report.Meta{Title: run.Title, RunID: run.ID, Source: run.Source, Generated: finishedAt(run)}
		return report.Render(cmd.OutOrStdout(), meta, &rep)
	}

	records, err := store.ListRecords(ctx, run.ID)
	if err != nil {
		return err
	}
	if runsJSON {
		return writeJSON(cmd, struct {
			*runstore.Run
			Records []runstore.DocumentRow `json:"records"`
		}{run, records})
	}

	counts, err := store.CountByOutcome(ctx, run.ID)
	if err != nil {
		return err
	}

	pterm.DefaultHeader.WithFullWidth().Println(run.Title)
	pterm.Printf("Run:      %s\n", run.ID)
	pterm.Printf("Source:   %s\n", run.Source)
	pterm.Printf("Status:   %s\n", statusColor(run.Status))
	pterm.Printf("Duration: %s\n", runDuration(*run))
	if run.Error != "" {
		pterm.Error.Println(run.Error)
	}
	pterm.Printf("Outcomes: %d accepted, %d best effort, %d failed, %d pending (of %d)\n\n",
		counts[workflow.OutcomeAccepted.String()],
		counts[workflow.OutcomeAcceptedBestEffort.String()],
		counts[workflow.OutcomeFailed.String()],
		counts[workflow.OutcomePending.String()],
		run.TotalDocuments)

	if len(records) == 0 {
		return nil
	}
	data := pterm.TableData{{"Document", "Outcome", "Revisions", "Themes", "Note"}}
	for _, row := range records {
		note := row.Error
		if note == "" && row.Flagged {
			note = row.Explanation
		}
		data = append(data, []string{row.DocID, row.Outcome, fmt.Sprint(row.Attempts), strings.Join(row.Themes, ", "), truncate(note, 60)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusColor(s runstore.Status) string {
	switch s {
	case runstore.StatusCompleted:
		return pterm.Green(string(s))
	case runstore.StatusFailed:
		return pterm.Red(string(s))
	default:
		return pterm.Yellow(string(s))
	}
}

func runDuration(run runstore.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func finishedAt(run *runstore.Run) time.Time {
	if run.FinishedAt != nil {
		return *run.FinishedAt
	}
	return run.StartedAt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
