// Package reduce aggregates validated document summaries into a report:
// policy sections condensed per theme and stance, and an executive summary
// built by token-bounded hierarchical combining.
package reduce

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/workflow"
)

// Failure stages.
const (
	StageCombine  = "combine"
	StageCondense = "condense"
)

// Failure is a batch or group the reducer dropped.
type Failure struct {
	Stage string `json:"stage"`
	Key   string `json:"key"`
	Err   string `json:"error"`
}

// Stats summarises a run's outcomes.
type Stats struct {
	Total         int                    `json:"total"`
	Accepted      int                    `json:"accepted"`
	BestEffort    int                    `json:"best_effort"`
	Failed        int                    `json:"failed"`
	Revisions     int                    `json:"revisions"`
	CombineCalls  int                    `json:"combine_calls"`
	CondenseCalls int                    `json:"condense_calls"`
	Stances       map[consult.Stance]int `json:"stances"`
	Themes        map[consult.Theme]int  `json:"themes"`
}

// Report is the reducer's output.
type Report struct {
	Executive string                    `json:"executive"`
	Sections  []PolicySection           `json:"sections"`
	Documents []workflow.DocumentRecord `json:"documents"`
	Excluded  []workflow.DocumentRecord `json:"excluded,omitempty"`
	Stats     Stats                     `json:"stats"`
	Failures  []Failure                 `json:"failures,omitempty"`
}

// PolicyMarkdown renders the report's policy sections.
func (r *Report) PolicyMarkdown() string {
	return RenderSections(r.Sections)
}

// Config tunes the reducer.
type Config struct {
	TokenMax int
	MaxDepth int
	Workers  int
	Logger   *zap.SugaredLogger
}

// Reducer turns processed records into a Report.
type Reducer struct {
	ports  capability.ReducePorts
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates a reducer. A nil token counter falls back to the byte estimate.
func New(ports capability.ReducePorts, cfg Config) *Reducer {
	if ports.Tokens == nil {
		ports.Tokens = capability.EstimateTokens(capability.DefaultBytesPerToken)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 1
	}
	return &Reducer{ports: ports, cfg: cfg, logger: logger.OrNop(cfg.Logger)}
}

// Reduce builds the report from records. Failed and unprocessed records
// are excluded from aggregation. Combine and condense failures are recorded
// in Report.Failures; only unavailability or cancellation returns an error.
func (r *Reducer) Reduce(ctx context.Context, records []workflow.DocumentRecord) (*Report, error) {
	log := logger.FromContext(ctx, r.logger)
	start := time.Now()

	report := &Report{Stats: Stats{
		Total:   len(records),
		Stances: make(map[consult.Stance]int),
		Themes:  make(map[consult.Theme]int),
	}}

	var (
		mentions  []consult.PolicyMention
		fragments []string
	)
	for _, rec := range records {
		report.Stats.Revisions += rec.Attempts
		if !rec.Usable() {
			report.Stats.Failed++
			report.Excluded = append(report.Excluded, rec)
			continue
		}
		if rec.Outcome == workflow.OutcomeAcceptedBestEffort {
			report.Stats.BestEffort++
		} else {
			report.Stats.Accepted++
		}
		report.Documents = append(report.Documents, rec)
		report.Stats.Stances[rec.Summary.Stance]++
		for _, th := range rec.Themes {
			report.Stats.Themes[th]++
		}
		mentions = append(mentions, rec.Summary.Mentions(rec.ID)...)
		if text := strings.TrimSpace(rec.Summary.Summary); text != "" {
			fragments = append(fragments, text)
		}
	}

	groups := GroupMentions(mentions)
	report.Stats.CondenseCalls = len(groups)
	sections, failures, err := r.condenseGroups(ctx, groups)
	if err != nil {
		return nil, err
	}
	report.Sections = sections
	report.Failures = append(report.Failures, failures...)

	collapser := &Collapser{
		combine:  r.ports.Combine,
		tokens:   r.ports.Tokens,
		tokenMax: r.cfg.TokenMax,
		maxDepth: r.cfg.MaxDepth,
		workers:  r.cfg.Workers,
		logger:   log,
	}
	executive, failures, err := collapser.Collapse(ctx, fragments)
	if err != nil {
		return nil, err
	}
	report.Executive = strings.TrimSpace(executive)
	report.Stats.CombineCalls = collapser.Calls()
	report.Failures = append(report.Failures, failures...)

	log.Infow("Reduction complete",
		logger.FieldCount, len(report.Documents),
		"sections", len(report.Sections),
		logger.FieldBatches, report.Stats.CombineCalls,
		"failures", len(report.Failures),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return report, nil
}
