package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/capture"
	"github.com/feedsnap/feedsnap/store"
)

func scriptedFeed() []*browse.MockPost {
	return []*browse.MockPost{
		{
			Author:    "Alice",
			Base:      "first post, truncated twice",
			Permalink: "https://example.com/groups/g/permalink/1001/",
			Expansions: []*browse.MockExpansion{
				{Label: "See more", Reveal: "the first hidden chunk of the first post"},
				{Label: "See more", Reveal: "the second hidden chunk of the first post"},
			},
		},
		{
			Author:    "Bob",
			Base:      "second post, also truncated twice",
			Permalink: "https://example.com/groups/g/permalink/1002/",
			Expansions: []*browse.MockExpansion{
				{Label: "Show more", Reveal: "hidden text one of the second post"},
				{Label: "Show more", Reveal: "hidden text two of the second post"},
			},
		},
		{
			Author:    "Carol",
			Base:      "third post, fully visible from the start",
			Permalink: "https://example.com/groups/g/permalink/1003/",
		},
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	return len(entries)
}

func TestFeedStrategyFullPass(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	defer db.Close()
	shotDir := t.TempDir()
	capturer, err := capture.NewCapturer(shotDir)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}

	driver := browse.NewMockDriver(scriptedFeed(), 0)
	strategy := NewFeedStrategy(driver, db, capturer, "https://example.com/groups/g/", 10, testProfile)

	stats, err := strategy.Scrape(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if stats.Discovered != 3 || stats.NewlyPersisted != 3 || stats.Duplicates != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if countFiles(t, shotDir) != 3 {
		t.Fatalf("expected 3 screenshots, got %d", countFiles(t, shotDir))
	}

	recs, err := db.ListRecent(0, 0)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 stored posts, got %d", len(recs))
	}
	expandedByID := map[string]bool{}
	for _, r := range recs {
		expandedByID[r.PostID] = r.ContentExpanded
	}
	if !expandedByID["1001"] || !expandedByID["1002"] {
		t.Fatal("expected the truncated posts to be flagged as expanded")
	}
	// a post with nothing to expand is fully expanded as it stands
	if !expandedByID["1003"] {
		t.Fatal("expected the plain post to be flagged as expanded")
	}
}

func TestFeedStrategyFlagsPlainPostExpanded(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	defer db.Close()

	driver := browse.NewMockDriver([]*browse.MockPost{
		{
			Author:    "Frank",
			Base:      "a short post with no collapsed text at all",
			Permalink: "https://example.com/groups/g/permalink/2001/",
		},
	}, 0)
	strategy := NewFeedStrategy(driver, db, nil, "https://example.com/groups/g/", 10, testProfile)

	if _, err := strategy.Scrape(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	recs, err := db.ListRecent(0, 0)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 stored post, got %d", len(recs))
	}
	if !recs[0].ContentExpanded {
		t.Fatal("expected a post without expand controls to be stored as expanded")
	}
}

func TestFeedStrategyRerunIsIdempotent(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	defer db.Close()
	shotDir := t.TempDir()
	capturer, err := capture.NewCapturer(shotDir)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}

	first := NewFeedStrategy(browse.NewMockDriver(scriptedFeed(), 0), db, capturer,
		"https://example.com/groups/g/", 10, testProfile)
	if _, err := first.Scrape(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	shotsAfterFirst := countFiles(t, shotDir)

	// fresh page render of the same feed content
	second := NewFeedStrategy(browse.NewMockDriver(scriptedFeed(), 0), db, capturer,
		"https://example.com/groups/g/", 10, testProfile)
	stats, err := second.Scrape(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if stats.Discovered != 3 || stats.NewlyPersisted != 0 || stats.Duplicates != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := countFiles(t, shotDir); got != shotsAfterFirst {
		t.Fatalf("expected no new screenshots on the duplicate pass, got %d (was %d)", got, shotsAfterFirst)
	}
	n, err := db.Count()
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 stored posts after both passes, got %d", n)
	}
}

func TestFeedStrategyContainsPerPostFailures(t *testing.T) {
	posts := scriptedFeed()
	// a control that never activates keeps this post from converging but
	// must not keep the other posts from being persisted
	posts[1].Expansions = []*browse.MockExpansion{
		{Label: "See more", Reveal: "never shown", FailFirst: 100},
	}
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	defer db.Close()

	strategy := NewFeedStrategy(browse.NewMockDriver(posts, 0), db, nil,
		"https://example.com/groups/g/", 10, testProfile)
	stats, err := strategy.Scrape(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if stats.NewlyPersisted != 3 {
		t.Fatalf("expected all 3 posts persisted, got %d", stats.NewlyPersisted)
	}
	recs, err := db.ListRecent(0, 0)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	for _, r := range recs {
		if r.PostID == "1002" && r.ContentExpanded {
			t.Fatal("expected the timed-out post not to be flagged as expanded")
		}
	}
}
