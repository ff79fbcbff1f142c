package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plansum/consult"
)

func TestGroupFor(t *testing.T) {
	assert.Equal(t, GroupSupport, GroupFor(consult.StanceSupport))
	assert.Equal(t, GroupObject, GroupFor(consult.StanceObject))
	assert.Equal(t, GroupOther, GroupFor(consult.StanceNeutral))
	assert.Equal(t, GroupOther, GroupFor("MAYBE"))
}

func TestGroupMentions(t *testing.T) {
	mentions := []consult.PolicyMention{
		{Theme: consult.ThemeInfrastructure, Policy: "Sustainable transport and connectivity", Note: "more buses", Source: "a", Stance: consult.StanceObject},
		{Theme: consult.ThemeHomes, Policy: "Housing mix", Note: "bungalows", Source: "b", Stance: consult.StanceSupport},
		{Theme: consult.ThemeHomes, Policy: "Affordable housing", Note: "too expensive", Source: "a", Stance: consult.StanceNeutral},
		{Theme: consult.ThemeHomes, Policy: "Affordable housing", Note: "key workers", Source: "c", Stance: consult.StanceSupport},
		{Theme: consult.ThemeHomes, Policy: "Affordable housing", Note: "key workers", Source: "d", Stance: consult.StanceSupport},
		{Theme: consult.ThemeHomes, Policy: "Affordable housing", Note: "rent caps", Source: "c", Stance: consult.StanceSupport},
	}

	groups := GroupMentions(mentions)
	require.Len(t, groups, 4)

	assert.Equal(t, "Homes / Support / Affordable housing", groups[0].Key())
	assert.Equal(t, []consult.PolicyNote{
		{Text: "key workers", Sources: []string{"c", "d"}},
		{Text: "rent caps", Sources: []string{"c"}},
	}, groups[0].Notes)
	assert.Equal(t, []string{"c", "d"}, groups[0].Sources)

	assert.Equal(t, "Homes / Support / Housing mix", groups[1].Key())
	assert.Equal(t, "Homes / Other / Affordable housing", groups[2].Key())
	assert.Equal(t, "Infrastructure / Object / Sustainable transport and connectivity", groups[3].Key())
}

func TestGroupMentionsKeepsNoteAttribution(t *testing.T) {
	const policy = "Sustainable transport and connectivity"
	mentions := []consult.PolicyMention{
		{Theme: consult.ThemeInfrastructure, Policy: policy, Note: "needs more buses", Source: "A", Stance: consult.StanceObject},
		{Theme: consult.ThemeInfrastructure, Policy: policy, Note: "new school on site", Source: "B", Stance: consult.StanceObject},
		{Theme: consult.ThemeInfrastructure, Policy: policy, Note: "needs more buses", Source: "C", Stance: consult.StanceObject},
		{Theme: consult.ThemeInfrastructure, Policy: policy, Note: "needs more buses", Source: "A", Stance: consult.StanceObject},
	}

	groups := GroupMentions(mentions)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"A", "B", "C"}, groups[0].Sources)
	assert.Equal(t, []consult.PolicyNote{
		{Text: "needs more buses", Sources: []string{"A", "C"}},
		{Text: "new school on site", Sources: []string{"B"}},
	}, groups[0].Notes)
}

func TestRenderSections(t *testing.T) {
	sections := []PolicySection{
		{Theme: consult.ThemeHomes, Stance: GroupSupport, Policy: "Affordable housing", Text: "- Wants key worker homes [c, d]\n* Rent caps [c]"},
		{Theme: consult.ThemeHomes, Stance: GroupSupport, Policy: "Housing mix", Text: "Bungalows for older residents [b]"},
		{Theme: consult.ThemeHomes, Stance: GroupOther, Policy: "Affordable housing", Text: "Prices are too high [a]"},
	}

	want := `## Homes - Support

### Affordable housing

- Wants key worker homes [c, d]
- Rent caps [c]

### Housing mix

- Bungalows for older residents [b]

## Homes - Other

### Affordable housing

- Prices are too high [a]
`
	assert.Equal(t, want, RenderSections(sections))
	assert.Empty(t, RenderSections(nil))
}
