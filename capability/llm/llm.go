// Package llm implements the capability ports on top of a chat model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/plansum/ai/openrouter"
	"github.com/teranos/plansum/ai/provider"
	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
)

// Client implements every capability port with prompts against an AIClient.
// Malformed model output is reported as errors.ErrParse; transport failures
// keep the classification the AIClient gave them.
type Client struct {
	ai           provider.AIClient
	logger       *zap.SugaredLogger
	tracePrompts bool
}

// New creates an LLM-backed capability client.
func New(ai provider.AIClient, log *zap.SugaredLogger) *Client {
	return &Client{ai: ai, logger: logger.OrNop(log)}
}

// SetTracePrompts logs every prompt and raw completion at debug level.
func (c *Client) SetTracePrompts(on bool) { c.tracePrompts = on }

// Ports returns the document-stage ports.
func (c *Client) Ports() capability.Ports {
	return capability.Ports{Themes: c, Summarize: c, Validate: c, Revise: c}
}

// ReducePorts returns the reduce-stage ports.
func (c *Client) ReducePorts(tokens capability.TokenCounter) capability.ReducePorts {
	return capability.ReducePorts{Combine: c, Condense: c, Tokens: tokens}
}

func (c *Client) chat(ctx context.Context, op, system, user string, jsonMode bool) (string, error) {
	resp, err := c.ai.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		JSONMode:     jsonMode,
		Operation:    op,
	})
	if err != nil {
		return "", errors.Wrapf(err, "%s", op)
	}
	log := logger.FromContext(ctx, c.logger)
	log.Debugw("Capability call",
		logger.FieldCapability, op,
		logger.FieldTokens, resp.Usage.TotalTokens,
	)
	if c.tracePrompts {
		log.Debugw("Capability exchange",
			logger.FieldCapability, op,
			"prompt", user,
			"completion", resp.Content,
		)
	}
	return resp.Content, nil
}

// SelectThemes implements capability.ThemeSelector.
func (c *Client) SelectThemes(ctx context.Context, text string) (consult.ThemeSet, error) {
	out, err := c.chat(ctx, "select-themes", fmt.Sprintf(themeSystemPrompt, themeList()), text, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Themes []string `json:"themes"`
	}
	if err := decodeJSON(out, &parsed); err != nil {
		return nil, err
	}
	themes := make([]consult.Theme, 0, len(parsed.Themes))
	for _, name := range parsed.Themes {
		th, err := consult.ParseTheme(name)
		if err != nil {
			return nil, err
		}
		themes = append(themes, th)
	}
	return consult.NewThemeSet(themes...), nil
}

// Summarize implements capability.Summarizer.
func (c *Client) Summarize(ctx context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	out, err := c.chat(ctx, "summarize", fmt.Sprintf(summarySystemPrompt, policyList(themes)), text, true)
	if err != nil {
		return nil, err
	}
	return parseSummary(out, themes)
}

// ValidateSummary implements capability.Validator.
func (c *Client) ValidateSummary(ctx context.Context, source, summary string) (capability.Validation, error) {
	out, err := c.chat(ctx, "validate", validateSystemPrompt, validatePrompt(source, summary), true)
	if err != nil {
		return capability.Validation{}, err
	}
	var v capability.Validation
	if err := decodeJSON(out, &v); err != nil {
		return capability.Validation{}, err
	}
	return v, nil
}

// ReviseSummary implements capability.Reviser.
func (c *Client) ReviseSummary(ctx context.Context, source string, s *consult.StructuredSummary, explanation string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	previous, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal previous summary")
	}
	out, err := c.chat(ctx, "revise", fmt.Sprintf(reviseSystemPrompt, policyList(themes)), revisePrompt(source, string(previous), explanation), true)
	if err != nil {
		return nil, err
	}
	return parseSummary(out, themes)
}

// Combine implements capability.Combiner.
func (c *Client) Combine(ctx context.Context, fragments []string) (string, error) {
	out, err := c.chat(ctx, "combine", combineSystemPrompt, combinePrompt(fragments), false)
	if err != nil {
		return "", errors.Mark(err, errors.ErrCombine)
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.Mark(errors.New("combine returned empty text"), errors.ErrCombine)
	}
	return out, nil
}

// CondensePolicyGroup implements capability.Condenser.
func (c *Client) CondensePolicyGroup(ctx context.Context, theme consult.Theme, policy string, notes []consult.PolicyNote) (string, error) {
	out, err := c.chat(ctx, "condense", condenseSystemPrompt, condensePrompt(theme, policy, notes), false)
	if err != nil {
		return "", errors.Mark(err, errors.ErrCondense)
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.Mark(errors.New("condense returned empty text"), errors.ErrCondense)
	}
	return out, nil
}

// wireSummary accepts free-form stance labels before normalisation.
type wireSummary struct {
	Summary  string   `json:"summary"`
	Stance   string   `json:"stance"`
	Themes   []string `json:"themes"`
	Policies []struct {
		Theme    string                 `json:"theme"`
		Policies []consult.PolicyDetail `json:"policies"`
	} `json:"policies"`
	Places         []consult.Place `json:"places"`
	IsConstructive bool            `json:"is_constructive"`
}

func parseSummary(out string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	var w wireSummary
	if err := decodeJSON(out, &w); err != nil {
		return nil, err
	}

	s := &consult.StructuredSummary{
		Summary:        strings.TrimSpace(w.Summary),
		Stance:         consult.ParseStance(w.Stance),
		Places:         w.Places,
		IsConstructive: w.IsConstructive,
	}
	for _, name := range w.Themes {
		th, err := consult.ParseTheme(name)
		if err != nil {
			return nil, err
		}
		s.Themes = append(s.Themes, th)
	}
	for _, sel := range w.Policies {
		th, err := consult.ParseTheme(sel.Theme)
		if err != nil {
			return nil, err
		}
		if !themes.Contains(th) {
			return nil, errors.NewParseError("policy theme %q was not selected", th)
		}
		s.Policies = append(s.Policies, consult.PolicySelection{Theme: th, Policies: sel.Policies})
	}
	if len(s.Themes) == 0 {
		s.Themes = append(s.Themes, themes...)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeJSON tolerates markdown code fences around the object.
func decodeJSON(out string, v interface{}) error {
	body := strings.TrimSpace(out)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return errors.Mark(errors.Wrap(err, "model returned malformed JSON"), errors.ErrParse)
	}
	return nil
}

var (
	_ capability.ThemeSelector = (*Client)(nil)
	_ capability.Summarizer    = (*Client)(nil)
	_ capability.Validator     = (*Client)(nil)
	_ capability.Reviser       = (*Client)(nil)
	_ capability.Combiner      = (*Client)(nil)
	_ capability.Condenser     = (*Client)(nil)
)
