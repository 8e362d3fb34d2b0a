// Package feed implements the incremental discovery, expansion and capture
// pipeline over a lazily rendered social feed.
package feed

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// postContainerSelector locates the post elements of a feed page.
const postContainerSelector = `div[role="article"]`

// ControlPattern describes one class of "expand"-style controls. Patterns
// are evaluated in order; a candidate element matches if its rendered text
// is close enough to one of the canonical labels. A pattern without labels
// matches on selector alone.
type ControlPattern struct {
	Selector string
	Labels   []string
}

// expandPatterns lists the recognized control classes in priority order:
// primary truncation links first, then nested sub-section reveals, then the
// comment-section expander. Label variants drift across UI versions and
// locales, hence the fuzzy match.
var expandPatterns = []ControlPattern{
	{
		Selector: `div[role="button"]`,
		Labels:   []string{"see more", "show more", "mehr anzeigen", "voir plus", "ver más"},
	},
	{
		Selector: `span[role="button"]`,
		Labels:   []string{"see more", "show more"},
	},
	{
		Selector: `div[role="button"]`,
		Labels:   []string{"view more comments", "see all comments", "view previous comments"},
	},
}

// maxLabelDistance is the edit distance still accepted between a control's
// text and a canonical label, to absorb casing, punctuation and minor
// wording drift ("See more…" vs "see more").
const maxLabelDistance = 2

// matchesLabel reports whether text identifies an expand control of the
// given pattern. Not matching is a normal outcome, not an error.
func (p ControlPattern) matchesLabel(text string) bool {
	if len(p.Labels) == 0 {
		return true
	}
	candidate := strings.ToLower(strings.TrimSpace(text))
	candidate = strings.Trim(candidate, ".…")
	if candidate == "" {
		return false
	}
	for _, label := range p.Labels {
		if candidate == label {
			return true
		}
		if levenshtein.ComputeDistance(candidate, label) <= maxLabelDistance {
			return true
		}
	}
	return false
}
