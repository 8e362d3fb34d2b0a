package feed

import "testing"

func TestMatchesLabel(t *testing.T) {
	p := ControlPattern{Selector: `div[role="button"]`, Labels: []string{"see more", "show more"}}
	cases := []struct {
		text string
		want bool
	}{
		{"See more", true},
		{"See More", true},
		{"See more…", true},
		{"see more...", true},
		{"Se more", true},
		{"Show more", true},
		{"Hide", false},
		{"Share", false},
		{"", false},
		{"Write a comment", false},
	}
	for _, c := range cases {
		if got := p.matchesLabel(c.text); got != c.want {
			t.Fatalf("matchesLabel(%q): expected %v, got %v", c.text, c.want, got)
		}
	}
}

func TestMatchesLabelWithoutLabelsMatchesAnything(t *testing.T) {
	p := ControlPattern{Selector: `div[role="button"]`}
	if !p.matchesLabel("anything at all") {
		t.Fatal("expected a label-less pattern to match on selector alone")
	}
}
