package consult

import (
	"strings"

	"github.com/teranos/plansum/errors"
)

// Theme is a coarse topical category of the local plan.
// A representation is summarized against the themes it touches; each theme
// carries its own policy vocabulary.
type Theme string

const (
	ThemeClimate        Theme = "Climate change"
	ThemeBiodiversity   Theme = "Biodiversity and green spaces"
	ThemeWellbeing      Theme = "Wellbeing and social inclusion"
	ThemeGreatPlaces    Theme = "Great places"
	ThemeJobs           Theme = "Jobs"
	ThemeHomes          Theme = "Homes"
	ThemeInfrastructure Theme = "Infrastructure"
)

// Themes lists every theme in canonical report order.
var Themes = []Theme{
	ThemeClimate,
	ThemeBiodiversity,
	ThemeWellbeing,
	ThemeGreatPlaces,
	ThemeJobs,
	ThemeHomes,
	ThemeInfrastructure,
}

var themePolicies = map[Theme][]string{
	ThemeClimate: {
		"Net zero carbon new buildings",
		"Water efficiency in new developments",
		"Designing for a changing climate",
		"Flooding and integrated water management",
		"Renewable energy projects and infrastructure",
		"Reducing waste and supporting the circular economy",
		"Supporting land-based carbon sequestration",
	},
	ThemeBiodiversity: {
		"Biodiversity and geodiversity",
		"Green infrastructure",
		"Improving Tree Canopy Cover and the Tree Population",
		"River corridors",
		"Protecting open spaces",
		"Providing and enhancing open spaces",
	},
	ThemeWellbeing: {
		"Creating healthy new developments",
		"Community, sports and leisure facilities",
		"Meanwhile uses during long term redevelopments",
		"Creating inclusive employment and business opportunities through new developments",
		"Pollution, health and safety",
	},
	ThemeGreatPlaces: {
		"People and place responsive design",
		"Protection and enhancement of landscape character",
		"Protection and enhancement of the Cambridge Green Belt",
		"Achieving high quality development",
		"Establishing high quality landscape and public realm",
		"Conservation and enhancement of heritage assets",
		"Adapting heritage assets to climate change",
		"Protection of public houses",
	},
	ThemeJobs: {
		"New employment and development proposals",
		"Supporting the rural economy",
		"Protecting the best agricultural land",
		"Protecting existing business space",
		"Enabling remote working",
		"Affordable workspace and creative industries",
		"Supporting a range of facilities in employment parks",
		"Retail and centres",
		"Visitor accommodation, attractions and facilities",
		"Faculty development and specialist / language schools",
	},
	ThemeHomes: {
		"Affordable housing",
		"Exception sites for affordable housing",
		"Housing mix",
		"Housing density",
		"Garden land and subdivision of existing plots",
		"Residential space standards and accessible homes",
		"Specialist housing and homes for older people",
		"Self and custom build homes",
		"Build to rent homes",
		"Houses in multiple occupation (HMOs)",
		"Student accommodation",
		"Dwellings in the countryside",
		"Residential moorings",
		"Residential caravan sites",
		"Gypsy and Traveller and Travelling Showpeople sites",
		"Community-led housing",
	},
	ThemeInfrastructure: {
		"Sustainable transport and connectivity",
		"Parking and electric vehicles",
		"Freight and delivery consolidation",
		"Safeguarding important infrastructure",
		"Aviation development",
		"Energy infrastructure masterplanning",
		"Infrastructure and delivery",
		"Digital infrastructure",
	},
}

// Policies returns the policy names that belong to theme, in plan order.
func Policies(theme Theme) []string {
	return append([]string(nil), themePolicies[theme]...)
}

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	_, ok := themePolicies[t]
	return ok
}

// Rank is the theme's position in canonical order, or len(Themes) for unknown themes.
func (t Theme) Rank() int {
	for i, th := range Themes {
		if th == t {
			return i
		}
	}
	return len(Themes)
}

// ParseTheme matches s against the known themes case-insensitively.
func ParseTheme(s string) (Theme, error) {
	needle := strings.TrimSpace(s)
	for _, t := range Themes {
		if strings.EqualFold(string(t), needle) {
			return t, nil
		}
	}
	return "", errors.NewParseError("unknown theme %q", s)
}

// HasPolicy reports whether policy belongs to theme's vocabulary.
func HasPolicy(theme Theme, policy string) bool {
	for _, p := range themePolicies[theme] {
		if p == policy {
			return true
		}
	}
	return false
}

// ThemeSet is an ordered, de-duplicated set of themes.
// An empty set is the terminal "no theme" signal for a document.
type ThemeSet []Theme

// NewThemeSet builds a set keeping first-seen order and dropping duplicates.
func NewThemeSet(themes ...Theme) ThemeSet {
	set := make(ThemeSet, 0, len(themes))
	for _, t := range themes {
		if !set.Contains(t) {
			set = append(set, t)
		}
	}
	return set
}

// Empty reports whether the set holds no theme.
func (s ThemeSet) Empty() bool { return len(s) == 0 }

// Contains reports membership.
func (s ThemeSet) Contains(t Theme) bool {
	for _, x := range s {
		if x == t {
			return true
		}
	}
	return false
}

// Strings returns the theme names.
func (s ThemeSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}
