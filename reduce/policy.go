package reduce

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/workflow"
)

// StanceGroup is the report partition a stance falls into.
type StanceGroup string

const (
	GroupSupport StanceGroup = "Support"
	GroupObject  StanceGroup = "Object"
	GroupOther   StanceGroup = "Other"
)

// StanceGroups lists the partitions in report order.
var StanceGroups = []StanceGroup{GroupSupport, GroupObject, GroupOther}

// GroupFor maps a stance to its report partition.
func GroupFor(s consult.Stance) StanceGroup {
	switch s {
	case consult.StanceSupport:
		return GroupSupport
	case consult.StanceObject:
		return GroupObject
	default:
		return GroupOther
	}
}

func (g StanceGroup) rank() int {
	for i, x := range StanceGroups {
		if x == g {
			return i
		}
	}
	return len(StanceGroups)
}

// PolicyGroup collects every note made about one policy under one stance.
type PolicyGroup struct {
	Theme   consult.Theme
	Policy  string
	Stance  StanceGroup
	Notes   []consult.PolicyNote
	Sources []string
}

// Key identifies the group in logs and failures.
func (g PolicyGroup) Key() string {
	return fmt.Sprintf("%s / %s / %s", g.Theme, g.Stance, g.Policy)
}

// PolicySection is a condensed policy group.
type PolicySection struct {
	Theme   consult.Theme `json:"theme"`
	Stance  StanceGroup   `json:"stance"`
	Policy  string        `json:"policy"`
	Text    string        `json:"text"`
	Sources []string      `json:"sources"`
	Notes   int           `json:"notes"`
}

type groupKey struct {
	theme  consult.Theme
	policy string
	stance StanceGroup
}

// GroupMentions groups mentions by theme, policy and stance partition.
// Each note keeps the documents that made it; notes, per-note sources and
// group sources are de-duplicated keeping first-seen order. Groups are
// sorted by canonical theme order, then stance partition, then policy name.
func GroupMentions(mentions []consult.PolicyMention) []PolicyGroup {
	index := make(map[groupKey]int)
	var groups []PolicyGroup

	for _, m := range mentions {
		k := groupKey{theme: m.Theme, policy: m.Policy, stance: GroupFor(m.Stance)}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, PolicyGroup{Theme: k.theme, Policy: k.policy, Stance: k.stance})
		}
		g := &groups[i]
		g.addNote(m.Note, m.Source)
		g.Sources = appendUnique(g.Sources, m.Source)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Theme.Rank() != b.Theme.Rank() {
			return a.Theme.Rank() < b.Theme.Rank()
		}
		if a.Stance.rank() != b.Stance.rank() {
			return a.Stance.rank() < b.Stance.rank()
		}
		return a.Policy < b.Policy
	})
	return groups
}

func (g *PolicyGroup) addNote(text, source string) {
	for i := range g.Notes {
		if g.Notes[i].Text == text {
			g.Notes[i].Sources = appendUnique(g.Notes[i].Sources, source)
			return
		}
	}
	g.Notes = append(g.Notes, consult.PolicyNote{Text: text, Sources: []string{source}})
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// condenseGroups condenses every group, dropping the ones whose condense
// call fails. Section order follows group order.
func (r *Reducer) condenseGroups(ctx context.Context, groups []PolicyGroup) ([]PolicySection, []Failure, error) {
	texts := make([]string, len(groups))
	errs := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, group := range groups {
		g.Go(func() error {
			text, err := r.ports.Condense.CondensePolicyGroup(gctx, group.Theme, group.Policy, group.Notes)
			if err == nil && strings.TrimSpace(text) == "" {
				err = errors.Mark(errors.New("condense returned empty text"), errors.ErrCondense)
			}
			if err != nil {
				if workflow.IsHardError(gctx, err) {
					return err
				}
				errs[i] = err
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "condense policy groups")
	}

	var (
		sections []PolicySection
		failures []Failure
	)
	for i, group := range groups {
		if errs[i] != nil {
			r.logger.Warnw("Dropping policy group",
				logger.FieldTheme, string(group.Theme),
				logger.FieldPolicy, group.Policy,
				logger.FieldStance, string(group.Stance),
				logger.FieldError, errs[i].Error())
			failures = append(failures, Failure{Stage: StageCondense, Key: group.Key(), Err: errs[i].Error()})
			continue
		}
		sections = append(sections, PolicySection{
			Theme:   group.Theme,
			Stance:  group.Stance,
			Policy:  group.Policy,
			Text:    strings.TrimSpace(texts[i]),
			Sources: group.Sources,
			Notes:   len(group.Notes),
		})
	}
	return sections, failures, nil
}

// RenderSections renders sections as markdown, one "## Theme - Stance"
// heading per partition and one "### Policy" heading per section.
func RenderSections(sections []PolicySection) string {
	if len(sections) == 0 {
		return ""
	}
	var b strings.Builder
	var lastTheme consult.Theme
	var lastStance StanceGroup

	for _, s := range sections {
		if s.Theme != lastTheme || s.Stance != lastStance {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "## %s - %s\n\n", s.Theme, s.Stance)
			lastTheme, lastStance = s.Theme, s.Stance
		}
		fmt.Fprintf(&b, "### %s\n\n", s.Policy)
		for _, line := range strings.Split(s.Text, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
			if line == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
