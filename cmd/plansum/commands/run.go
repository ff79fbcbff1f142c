package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/plansum/ai/provider"
	"github.com/teranos/plansum/ai/tracker"
	"github.com/teranos/plansum/am"
	"github.com/teranos/plansum/budget"
	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/capability/llm"
	"github.com/teranos/plansum/db"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/ingest"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/pipeline"
	"github.com/teranos/plansum/report"
	"github.com/teranos/plansum/runstore"
	"github.com/teranos/plansum/workflow"
)

// RunCmd summarises a batch of representations.
var RunCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Summarise a directory of representations into a report",
	Long: `Summarise every representation under <path> and write a markdown report.

<path> may be a directory of .txt and .json files or a single file. Each
document is themed, summarised and validated, with up to --max-attempts
revisions when validation flags the summary. Accepted summaries are then
reduced into an executive summary and per-policy sections.

Examples:
  plansum run ./representations --out report.md
  plansum run ./export.json --title "Local Plan Reg 18" --workers 8
  plansum run ./representations --json > report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runOut         string
	runTitle       string
	runWorkers     int
	runMaxAttempts int
	runTokenMax    int
	runJSON        bool
)

func init() {
	RunCmd.Flags().StringVarP(&runOut, "out", "o", "report.md", "Markdown report path (- for stdout)")
	RunCmd.Flags().StringVar(&runTitle, "title", "", "Report title (defaults to the input name)")
	RunCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Documents processed concurrently (overrides pipeline.workers)")
	RunCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Revisions per document (overrides pipeline.max_attempts)")
	RunCmd.Flags().IntVar(&runTokenMax, "token-max", 0, "Combine-call input ceiling in tokens (overrides reduce.token_max)")
	RunCmd.Flags().BoolVar(&runJSON, "json", false, "Write the report as JSON to stdout instead of markdown")
}

func runRun(cmd *cobra.Command, args []string) error {
	input := args[0]
	log := logger.ComponentLogger("run")

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg = applyRunFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	loaded, err := ingest.NewLoader(log).LoadDir(input)
	if err != nil {
		return err
	}
	verbosity := logger.Verbosity
	if n := len(loaded.Skipped); n > 0 && !runJSON && logger.ShouldOutput(verbosity, logger.OutputSkipped) {
		pterm.Info.Printf("Skipped %d source(s) with no text: %s\n", n, strings.Join(loaded.Skipped, ", "))
	}
	if !runJSON && logger.ShouldOutput(verbosity, logger.OutputConfig) {
		if data, err := marshalConfig(maskSecrets(cfg), "toml"); err == nil {
			pterm.Println(string(data))
		}
	}

	database, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	client, err := newModelClient(cfg, database, log)
	if err != nil {
		return err
	}
	client.SetTracePrompts(logger.ShouldOutput(verbosity, logger.OutputPrompts))

	if p, _ := provider.ResolveProvider(cfg); p == provider.ProviderLocal {
		if warning := workflow.CheckMemoryPressure(cfg.Pipeline.Workers); warning != "" && !runJSON {
			pterm.Warning.Println(warning)
		}
	}

	limiter := capability.NewLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	tokens := capability.EstimateTokens(cfg.Reduce.BytesPerToken)

	orchCfg := pipeline.Config{
		Ports:       capability.Limit(client.Ports(), limiter),
		ReducePorts: capability.LimitReduce(client.ReducePorts(tokens), limiter),
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Workers:     cfg.Pipeline.Workers,
		TokenMax:    cfg.Reduce.TokenMax,
		MaxDepth:    cfg.Reduce.MaxDepth,
		Logger:      logger.Logger.Named("pipeline"),
	}
	if database != nil {
		orchCfg.Store = runstore.NewStore(database, log)
		orchCfg.Budget = budget.NewTracker(tracker.NewUsageTracker(database), cfg.Budget.DailyUSD)
	}

	progress := newProgress(len(loaded.Documents), !runJSON && logger.ShouldOutput(verbosity, logger.OutputProgress))
	orchCfg.Observers = []workflow.MergeObserver{progress}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	title := runTitle
	if title == "" {
		title = filepath.Base(filepath.Clean(input))
	}

	if !runJSON && logger.ShouldOutput(verbosity, logger.OutputRunInfo) {
		pterm.Info.Printf("Summarising %d representations from %s (%d workers, %d attempts)\n",
			len(loaded.Documents), input, cfg.Pipeline.Workers, cfg.Pipeline.MaxAttempts)
	}
	progress.start()
	result, err := pipeline.New(orchCfg).Run(ctx, pipeline.Input{
		Title:     title,
		Source:    input,
		Documents: loaded.Documents,
	})
	progress.finish(err)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID  string      `json:"run_id"`
			Title  string      `json:"title"`
			Report interface{} `json:"report"`
		}{result.RunID, title, result.Report})
	}

	meta := report.Meta{Title: title, RunID: result.RunID, Source: input, Generated: time.Now()}
	if err := writeReport(cmd, runOut, meta, result); err != nil {
		return err
	}
	printRunSummary(result, runOut)
	if logger.ShouldOutput(verbosity, logger.OutputTiming) {
		pterm.Printf("Run took %s\n", result.Duration.Round(time.Millisecond))
	}
	return nil
}

// applyRunFlags layers explicit flags over the loaded configuration.
func applyRunFlags(base *am.Config) *am.Config {
	cfg := *base
	if runWorkers > 0 {
		cfg.Pipeline.Workers = runWorkers
	}
	if runMaxAttempts > 0 {
		cfg.Pipeline.MaxAttempts = runMaxAttempts
	}
	if runTokenMax > 0 {
		cfg.Reduce.TokenMax = runTokenMax
	}
	return &cfg
}

// openDatabase opens the run store, or returns nil when persistence is disabled.
func openDatabase(cfg *am.Config, log *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.Database.Path == "" {
		log.Debugw("Persistence disabled", "reason", "database.path is empty")
		return nil, nil
	}
	database, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}
	return database, nil
}

// newModelClient builds the capability adapter over the configured provider.
func newModelClient(cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) (*llm.Client, error) {
	p, err := provider.ResolveProvider(cfg)
	if err != nil {
		return nil, err
	}
	if p == provider.ProviderOpenRouter && cfg.OpenRouter.APIKey == "" {
		return nil, errors.WithHint(
			errors.Mark(errors.New("no OpenRouter API key configured"), errors.ErrInvalidConfig),
			"set OPENROUTER_API_KEY, or enable local_inference in am.toml",
		)
	}
	ai := provider.NewAIClientWithProvider(cfg, p, provider.Options{DB: database, Logger: log})
	log.Debugw("Model provider selected", "provider", string(p))
	return llm.New(ai, log), nil
}

func writeReport(cmd *cobra.Command, path string, meta report.Meta, result *pipeline.Result) error {
	if path == "-" {
		return report.Render(cmd.OutOrStdout(), meta, result.Report)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report %s", path)
	}
	if err := report.Render(f, meta, result.Report); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to write report %s", path)
}

func printRunSummary(result *pipeline.Result, out string) {
	stats := result.Report.Stats
	data := pterm.TableData{
		{"Outcome", "Documents"},
		{"Accepted", fmt.Sprint(stats.Accepted)},
		{"Best effort", fmt.Sprint(stats.BestEffort)},
		{"Failed", fmt.Sprint(stats.Failed)},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	pterm.Printf("%d revisions, %d combine calls, %d condense calls\n",
		stats.Revisions, stats.CombineCalls, stats.CondenseCalls)
	if n := len(result.Report.Failures); n > 0 {
		pterm.Warning.Printf("%d reduction step(s) dropped; see the report's failure section\n", n)
	}
	if out != "-" {
		pterm.Success.Printf("Report written to %s (run %s)\n", out, result.RunID)
	}
}

// progress shows a spinner that counts terminal documents.
type progress struct {
	total   int
	enabled bool

	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	done    int
}

func newProgress(total int, enabled bool) *progress {
	return &progress{total: total, enabled: enabled}
}

func (p *progress) start() {
	if !p.enabled {
		return
	}
	spinner, err := pterm.DefaultSpinner.Start(p.text())
	if err != nil {
		return
	}
	p.mu.Lock()
	p.spinner = spinner
	p.mu.Unlock()
}

// ObserveMerge is called from task goroutines.
func (p *progress) ObserveMerge(_ context.Context, rec workflow.DocumentRecord, _ int) {
	if rec.State != workflow.StateTerminal {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.spinner != nil {
		p.spinner.UpdateText(p.text())
	}
}

func (p *progress) text() string {
	return fmt.Sprintf("Summarised %d/%d representations", p.done, p.total)
}

func (p *progress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner == nil {
		return
	}
	if err != nil {
		p.spinner.Fail(fmt.Sprintf("Run failed after %d/%d representations", p.done, p.total))
	} else {
		p.spinner.Success(p.text())
	}
	p.spinner = nil
}
