package feed

import (
	"context"
	"testing"
	"time"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/config"
)

// testProfile keeps waits near zero so convergence tests run fast.
var testProfile = config.Profile{
	PageLoadWait: time.Millisecond,
	ScrollPause:  time.Millisecond,
	SettleWait:   time.Millisecond,
	ClickDelay:   time.Millisecond,
	StartupWait:  50 * time.Millisecond,
}

func firstPostHandle(t *testing.T, d *browse.MockDriver) browse.Handle {
	t.Helper()
	if err := d.Navigate(context.Background(), "https://example.com/groups/mock-group/"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	handles, err := d.FindAll(context.Background(), `div[role="article"]`)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if len(handles) == 0 {
		t.Fatal("expected at least one post handle")
	}
	return handles[0]
}

func TestExpandNoControlsConvergesImmediately(t *testing.T) {
	driver := browse.NewMockDriver([]*browse.MockPost{
		{Author: "Alice", Base: "short post without any collapsed text"},
	}, 0)
	engine := NewEngine(driver, testProfile)

	st, converged, err := engine.Expand(context.Background(), firstPostHandle(t, driver))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if !converged {
		t.Fatal("expected convergence")
	}
	if st.Attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d", st.Attempts)
	}
	if !st.Stable {
		t.Fatal("expected stable state")
	}
}

func TestExpandCascadedControlsConverge(t *testing.T) {
	driver := browse.NewMockDriver([]*browse.MockPost{
		{
			Author: "Bob",
			Base:   "a long story that was cut off at first",
			Expansions: []*browse.MockExpansion{
				{Label: "See more", Reveal: "the hidden middle part of the story, revealed on the first activation"},
				{Label: "See more", Reveal: "and the very end of the story, revealed on the second activation"},
			},
		},
	}, 0)
	engine := NewEngine(driver, testProfile)

	st, converged, err := engine.Expand(context.Background(), firstPostHandle(t, driver))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if !converged {
		t.Fatal("expected convergence")
	}
	if st.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", st.Attempts)
	}
	if len(st.ExpandedRegions) != 2 {
		t.Fatalf("expected 2 expanded regions, got %d", len(st.ExpandedRegions))
	}
}

func TestExpandBudgetExhausted(t *testing.T) {
	var expansions []*browse.MockExpansion
	for i := 0; i < 8; i++ {
		expansions = append(expansions, &browse.MockExpansion{
			Label:  "See more",
			Reveal: "yet another paragraph of text hidden behind one more truncation control",
		})
	}
	driver := browse.NewMockDriver([]*browse.MockPost{
		{Author: "Carol", Base: "a post that keeps revealing more controls", Expansions: expansions},
	}, 0)
	engine := NewEngine(driver, testProfile)

	st, converged, err := engine.Expand(context.Background(), firstPostHandle(t, driver))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if converged {
		t.Fatal("expected the attempt budget to run out")
	}
	if st.Attempts <= defaultAttemptBudget {
		t.Fatalf("expected attempts above the budget of %d, got %d", defaultAttemptBudget, st.Attempts)
	}
	if st.Stable {
		t.Fatal("expected non-stable state")
	}
}

func TestExpandRetriesFailedActivation(t *testing.T) {
	driver := browse.NewMockDriver([]*browse.MockPost{
		{
			Author: "Dave",
			Base:   "a post whose expand control is stale on the first try",
			Expansions: []*browse.MockExpansion{
				{Label: "See more", Reveal: "content that only shows up after the retry", FailFirst: 1},
			},
		},
	}, 0)
	engine := NewEngine(driver, testProfile)

	st, converged, err := engine.Expand(context.Background(), firstPostHandle(t, driver))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if !converged {
		t.Fatal("expected convergence after the retry")
	}
	if len(st.ExpandedRegions) != 1 {
		t.Fatalf("expected 1 expanded region, got %d", len(st.ExpandedRegions))
	}
	if st.Attempts < 2 {
		t.Fatalf("expected at least 2 attempts (failed try plus retry), got %d", st.Attempts)
	}
}

func TestExpandContentLengthIsMonotonic(t *testing.T) {
	driver := browse.NewMockDriver([]*browse.MockPost{
		{
			Author: "Erin",
			Base:   "base text",
			Expansions: []*browse.MockExpansion{
				{Label: "See more", Reveal: "a considerably longer reveal than the control label it replaces"},
			},
		},
	}, 0)
	engine := NewEngine(driver, testProfile)
	post := firstPostHandle(t, driver)
	before := engine.measure(context.Background(), post)

	st, _, err := engine.Expand(context.Background(), post)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if st.LastContentLength <= before {
		t.Fatalf("expected content length above %d, got %d", before, st.LastContentLength)
	}
}
