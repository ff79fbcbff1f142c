// Package report renders a reduced run as a markdown document with YAML
// front matter.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/reduce"
	"github.com/teranos/plansum/workflow"
)

// topN bounds the theme and place tables.
const topN = 5

// Meta describes the run a report belongs to.
type Meta struct {
	Title     string
	RunID     string
	Source    string
	Generated time.Time
}

type frontMatter struct {
	Title      string `yaml:"title"`
	RunID      string `yaml:"run_id,omitempty"`
	Source     string `yaml:"source,omitempty"`
	Generated  string `yaml:"generated"`
	Documents  int    `yaml:"documents"`
	Accepted   int    `yaml:"accepted"`
	BestEffort int    `yaml:"best_effort"`
	Failed     int    `yaml:"failed"`
}

// Share is a counted category with its share of the total.
type Share struct {
	Name    string
	Count   int
	Percent float64
}

// PlaceShare is a place with its mention count and mean sentiment in [-1, 1].
type PlaceShare struct {
	Name          string
	Count         int
	MeanSentiment float64
}

// Render writes the markdown report for rep to w.
func Render(w io.Writer, meta Meta, rep *reduce.Report) error {
	if rep == nil {
		return errors.New("report is nil")
	}
	if meta.Generated.IsZero() {
		meta.Generated = time.Now()
	}

	fm, err := yaml.Marshal(frontMatter{
		Title:      meta.Title,
		RunID:      meta.RunID,
		Source:     meta.Source,
		Generated:  meta.Generated.UTC().Format(time.RFC3339),
		Documents:  rep.Stats.Total,
		Accepted:   rep.Stats.Accepted,
		BestEffort: rep.Stats.BestEffort,
		Failed:     rep.Stats.Failed,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal front matter")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")

	b.WriteString("## Executive summary\n\n")
	if rep.Executive != "" {
		b.WriteString(rep.Executive)
	} else {
		b.WriteString("_No executive summary could be produced._")
	}
	b.WriteString("\n\n")

	if stances := StanceShares(rep.Stats); len(stances) > 0 {
		parts := make([]string, len(stances))
		for i, s := range stances {
			parts[i] = fmt.Sprintf("**%s**: %.2f%% _(%d)_", s.Name, s.Percent, s.Count)
		}
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n\n")
	}

	if themes := ThemeShares(rep.Stats); len(themes) > 0 {
		b.WriteString("## Theme breakdown\n\n")
		b.WriteString("The theme breakdown shows which themes each representation touches. ")
		b.WriteString("A single representation may discuss several themes.\n\n")
		b.WriteString("| **Theme** | **Percentage** | **Count** |\n|---|---|---|\n")
		for _, s := range themes {
			fmt.Fprintf(&b, "| %s | %.2f%% | %d |\n", s.Name, s.Percent, s.Count)
		}
		b.WriteString("\n")
	}

	if places := PlaceShares(rep.Documents); len(places) > 0 {
		b.WriteString("## Places\n\n")
		b.WriteString("| **Place** | **Count** | **Mean sentiment** |\n|---|---|---|\n")
		for _, p := range places {
			fmt.Fprintf(&b, "| %s | %d | %+.2f |\n", p.Name, p.Count, p.MeanSentiment)
		}
		b.WriteString("\n")
	}

	if len(rep.Sections) > 0 {
		b.WriteString("# Themes and policies\n\n")
		b.WriteString(reduce.RenderSections(rep.Sections))
		b.WriteString("\n")
	}

	if len(rep.Documents) > 0 {
		b.WriteString("## Summaries\n\n")
		for _, rec := range rep.Documents {
			writeSummary(&b, rec)
		}
	}

	if len(rep.Excluded) > 0 {
		b.WriteString("## Excluded representations\n\n")
		for _, rec := range rep.Excluded {
			reason := rec.Err
			if reason == "" {
				reason = rec.Outcome.String()
			}
			fmt.Fprintf(&b, "- `%s`: %s\n", rec.ID, reason)
		}
		b.WriteString("\n")
	}

	if len(rep.Failures) > 0 {
		b.WriteString("## Reduction failures\n\n")
		for _, f := range rep.Failures {
			fmt.Fprintf(&b, "- %s %s: %s\n", f.Stage, f.Key, f.Err)
		}
		b.WriteString("\n")
	}

	_, err = io.WriteString(w, strings.TrimRight(b.String(), "\n")+"\n")
	return errors.Wrap(err, "failed to write report")
}

func writeSummary(b *strings.Builder, rec workflow.DocumentRecord) {
	fmt.Fprintf(b, "#### %s\n\n%s\n\n", rec.ID, strings.TrimSpace(rec.Summary.Summary))
	fmt.Fprintf(b, "**Stance**: %s\n\n", rec.Summary.Stance)
	constructive := "no"
	if rec.Summary.IsConstructive {
		constructive = "yes"
	}
	fmt.Fprintf(b, "**Constructive**: %s\n\n", constructive)
	outcome := rec.Outcome.String()
	if rec.Attempts == 1 {
		outcome += " after 1 revision"
	} else if rec.Attempts > 1 {
		outcome += fmt.Sprintf(" after %d revisions", rec.Attempts)
	}
	fmt.Fprintf(b, "**Outcome**: %s\n\n", outcome)
}

// StanceShares returns stance counts ordered by share, largest first.
func StanceShares(stats reduce.Stats) []Share {
	counts := make(map[string]int, len(stats.Stances))
	for s, n := range stats.Stances {
		counts[string(s)] = n
	}
	return shares(counts, 0)
}

// ThemeShares returns the most mentioned themes, at most five.
func ThemeShares(stats reduce.Stats) []Share {
	counts := make(map[string]int, len(stats.Themes))
	for th, n := range stats.Themes {
		counts[string(th)] = n
	}
	return shares(counts, topN)
}

func shares(counts map[string]int, limit int) []Share {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	out := make([]Share, 0, len(counts))
	for name, n := range counts {
		if n == 0 {
			continue
		}
		out = append(out, Share{Name: name, Count: n, Percent: 100 * float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sentimentScore(s consult.Sentiment) float64 {
	switch s {
	case consult.SentimentPositive:
		return 1
	case consult.SentimentNegative:
		return -1
	default:
		return 0
	}
}

// PlaceShares returns the most mentioned places across summaries, at most five.
func PlaceShares(docs []workflow.DocumentRecord) []PlaceShare {
	type acc struct {
		count int
		score float64
	}
	byName := make(map[string]*acc)
	for _, rec := range docs {
		if rec.Summary == nil {
			continue
		}
		for _, p := range rec.Summary.Places {
			name := strings.TrimSpace(p.Name)
			if name == "" {
				continue
			}
			a, ok := byName[name]
			if !ok {
				a = &acc{}
				byName[name] = a
			}
			a.count++
			a.score += sentimentScore(p.Sentiment)
		}
	}

	out := make([]PlaceShare, 0, len(byName))
	for name, a := range byName {
		out = append(out, PlaceShare{Name: name, Count: a.count, MeanSentiment: a.score / float64(a.count)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
