package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/config"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/types"
)

// RecordStore is the persistence surface the pipeline needs. Upsert must be
// idempotent on PostID; re-upserting an existing post reports Duplicate, so
// no separate existence check is needed.
type RecordStore interface {
	Upsert(rec types.PostRecord) (types.UpsertResult, error)
	AttachScreenshot(postID string, art types.ScreenshotArtifact) error
}

// Capturer produces a screenshot artifact for a single post.
type Capturer interface {
	Capture(ctx context.Context, driver browse.Driver, post browse.Handle, postID string) (types.ScreenshotArtifact, error)
}

// Strategy is one way of walking a page and harvesting posts from it.
type Strategy interface {
	Name() string
	Scrape(ctx context.Context) (types.PassStats, error)
}

// FeedStrategy scrolls a feed page top to bottom, expanding and persisting
// each post it encounters. Posts are handled strictly one at a time; a
// failure on one post is logged and counted, never propagated, unless the
// browser session itself has died.
type FeedStrategy struct {
	driver    browse.Driver
	store     RecordStore
	capturer  Capturer
	targetURL string
	maxPosts  int
	profile   config.Profile
}

func NewFeedStrategy(driver browse.Driver, store RecordStore, capturer Capturer, targetURL string, maxPosts int, profile config.Profile) *FeedStrategy {
	return &FeedStrategy{
		driver:    driver,
		store:     store,
		capturer:  capturer,
		targetURL: targetURL,
		maxPosts:  maxPosts,
		profile:   profile,
	}
}

func (s *FeedStrategy) Name() string { return "feed" }

// Scrape runs one full pass over the feed.
func (s *FeedStrategy) Scrape(ctx context.Context) (types.PassStats, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("strategy", s.Name()))
	ctx = log.ContextWithLogger(ctx, logger)

	var stats types.PassStats

	if err := s.driver.Navigate(ctx, s.targetURL); err != nil {
		return stats, fmt.Errorf("navigating to %s: %w", s.targetURL, err)
	}
	if err := sleepCtx(ctx, s.profile.PageLoadWait); err != nil {
		return stats, err
	}
	pageURL, err := s.driver.Location(ctx)
	if err != nil {
		pageURL = s.targetURL
	}

	engine := NewEngine(s.driver, s.profile)
	extractor := NewExtractor(s.driver)
	scroller := NewScroller(s.driver, s.profile, s.maxPosts)

	discovered, err := scroller.Each(ctx, func(post browse.Handle) error {
		if perr := s.handlePost(ctx, engine, extractor, post, pageURL, &stats); perr != nil {
			if errors.Is(perr, browse.ErrDriverFatal) || errors.Is(perr, context.Canceled) {
				return perr
			}
			stats.ExtractFailures++
			logger.Warn("skipping post", slog.String("post", post.ID()), slog.String("error", perr.Error()))
		}
		return nil
	})
	stats.Discovered = discovered
	if err != nil {
		return stats, err
	}

	logger.Info("pass complete",
		slog.Int("discovered", stats.Discovered),
		slog.Int("new", stats.NewlyPersisted),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("extractFailures", stats.ExtractFailures),
		slog.Int("captureFailures", stats.CaptureFailures))
	return stats, nil
}

// handlePost takes a freshly discovered post through expansion, extraction,
// persistence and capture. Capture is skipped for duplicates; the first
// pass already holds the post's screenshot.
func (s *FeedStrategy) handlePost(ctx context.Context, engine *Engine, extractor *Extractor, post browse.Handle, pageURL string, stats *types.PassStats) error {
	logger := log.LoggerFromContext(ctx)

	state, converged, err := engine.Expand(ctx, post)
	if err != nil {
		return fmt.Errorf("expanding: %w", err)
	}
	if !converged {
		logger.Debug("expansion hit attempt budget, extracting as-is",
			slog.String("post", post.ID()), slog.Int("attempts", state.Attempts))
	}

	rec, err := extractor.Extract(ctx, post, pageURL)
	if err != nil {
		return fmt.Errorf("extracting: %w", err)
	}
	rec.ContentExpanded = converged

	result, err := s.store.Upsert(rec)
	if err != nil {
		return fmt.Errorf("persisting %s: %w", rec.PostID, err)
	}
	if result == types.Duplicate {
		stats.Duplicates++
		logger.Debug("already persisted", slog.String("postId", rec.PostID))
		return nil
	}
	stats.NewlyPersisted++

	if s.capturer == nil {
		return nil
	}
	art, err := s.capturer.Capture(ctx, s.driver, post, rec.PostID)
	if err != nil {
		if errors.Is(err, browse.ErrDriverFatal) {
			return err
		}
		stats.CaptureFailures++
		logger.Warn("screenshot failed, record kept without one",
			slog.String("postId", rec.PostID), slog.String("error", err.Error()))
		return nil
	}
	if err := s.store.AttachScreenshot(rec.PostID, art); err != nil {
		logger.Warn("attaching screenshot", slog.String("postId", rec.PostID), slog.String("error", err.Error()))
	}
	return nil
}
