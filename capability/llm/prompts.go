package llm

import (
	"fmt"
	"strings"

	"github.com/teranos/plansum/consult"
)

const themeSystemPrompt = `You classify representations submitted to a local plan consultation.
Choose every theme the representation discusses from this list:
%s
Respond with JSON: {"themes": ["<theme>", ...]}. Use an empty list if none apply.`

const summarySystemPrompt = `You summarise a representation submitted to a local plan consultation.
Write a concise, faithful summary using only information in the representation.
Restrict policy references to these themes and policies:
%s
Respond with JSON:
{"summary": "...", "stance": "SUPPORT|OBJECT|NEUTRAL", "themes": ["..."],
 "policies": [{"theme": "...", "policies": [{"policy": "...", "details": ["..."]}]}],
 "places": [{"place": "...", "sentiment": "positive|negative|neutral"}],
 "is_constructive": true}`

const validateSystemPrompt = `You check summaries for hallucinations.
A summary is flagged when it states anything not supported by the source text.
Respond with JSON: {"flagged": true|false, "explanation": "<which claims are unsupported>"}`

const reviseSystemPrompt = `You correct summaries of consultation representations.
The previous summary contained unsupported claims. Rewrite it so that every statement is
supported by the source text. Keep the same JSON structure as the previous summary.
Restrict policy references to these themes and policies:
%s`

const combineSystemPrompt = `You combine summaries of consultation representations into one
executive summary. Keep the most common concerns and note where respondents disagree.
Respond with plain text.`

const condenseSystemPrompt = `You condense notes about one policy from many representations
into a short passage. Each note ends with the ids of its documents in square brackets; cite
only those ids for the point the note supports.
Respond with plain text.`

func themeList() string {
	var b strings.Builder
	for _, t := range consult.Themes {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return b.String()
}

func policyList(themes consult.ThemeSet) string {
	var b strings.Builder
	for _, t := range themes {
		fmt.Fprintf(&b, "%s:\n", t)
		for _, p := range consult.Policies(t) {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	return b.String()
}

func revisePrompt(source, previous, explanation string) string {
	return fmt.Sprintf("Source representation:\n%s\n\nPrevious summary (JSON):\n%s\n\nProblems found:\n%s", source, previous, explanation)
}

func validatePrompt(source, summary string) string {
	return fmt.Sprintf("Source text:\n%s\n\nSummary:\n%s", source, summary)
}

func combinePrompt(fragments []string) string {
	return "Summaries:\n\n" + strings.Join(fragments, "\n\n---\n\n")
}

// condensePrompt lists each note with the ids of the documents that made it.
func condensePrompt(theme consult.Theme, policy string, notes []consult.PolicyNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\nPolicy: %s\n\nNotes:\n", theme, policy)
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s [%s]\n", n.Text, strings.Join(n.Sources, ", "))
	}
	return b.String()
}
