package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/feedsnap/feedsnap/browse"
)

func mockFeed(n int) []*browse.MockPost {
	posts := make([]*browse.MockPost, n)
	for i := range posts {
		posts[i] = &browse.MockPost{Author: "Author", Base: "post body"}
	}
	return posts
}

func TestScrollerDiscoversLazilyLoadedPosts(t *testing.T) {
	driver := browse.NewMockDriver(mockFeed(6), 2)
	if err := driver.Navigate(context.Background(), "https://example.com/groups/g/"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	scroller := NewScroller(driver, testProfile, 100)

	var visited []string
	discovered, err := scroller.Each(context.Background(), func(h browse.Handle) error {
		visited = append(visited, h.ID())
		return nil
	})
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if discovered != 6 {
		t.Fatalf("expected 6 discovered posts, got %d", discovered)
	}
	seen := map[string]bool{}
	for _, id := range visited {
		if seen[id] {
			t.Fatalf("post %s visited twice", id)
		}
		seen[id] = true
	}
	if driver.Scrolls < 3 {
		t.Fatalf("expected at least 3 scroll actions (lazy batches plus idle run-out), got %d", driver.Scrolls)
	}
}

func TestScrollerStopsAtMaxPosts(t *testing.T) {
	driver := browse.NewMockDriver(mockFeed(10), 5)
	if err := driver.Navigate(context.Background(), "https://example.com/groups/g/"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	scroller := NewScroller(driver, testProfile, 3)

	discovered, err := scroller.Each(context.Background(), func(h browse.Handle) error { return nil })
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if discovered != 3 {
		t.Fatalf("expected exactly 3 posts, got %d", discovered)
	}
}

func TestScrollerReportsDiscoveryFailure(t *testing.T) {
	// never navigated: the page renders no post containers at all
	driver := browse.NewMockDriver(nil, 2)
	scroller := NewScroller(driver, testProfile, 10)

	_, err := scroller.Each(context.Background(), func(h browse.Handle) error { return nil })
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected a DiscoveryError, got %v", err)
	}
}

func TestScrollerPropagatesVisitError(t *testing.T) {
	driver := browse.NewMockDriver(mockFeed(4), 4)
	if err := driver.Navigate(context.Background(), "https://example.com/groups/g/"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	scroller := NewScroller(driver, testProfile, 10)

	boom := errors.New("boom")
	discovered, err := scroller.Each(context.Background(), func(h browse.Handle) error {
		if h.ID() == "post-1" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the visit error to propagate, got %v", err)
	}
	if discovered != 2 {
		t.Fatalf("expected enumeration to stop at the failing post, got %d", discovered)
	}
}
