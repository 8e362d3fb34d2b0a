package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/config"
	"github.com/feedsnap/feedsnap/log"
)

// maxIdleScrolls is the end-of-feed heuristic: this many consecutive scroll
// actions without a new post handle means the feed is exhausted.
const maxIdleScrolls = 3

// Scroller produces a lazy, de-duplicated sequence of post handles while
// advancing the page's scroll position so that lazily loaded posts render.
type Scroller struct {
	driver   browse.Driver
	profile  config.Profile
	maxPosts int
}

func NewScroller(driver browse.Driver, profile config.Profile, maxPosts int) *Scroller {
	return &Scroller{driver: driver, profile: profile, maxPosts: maxPosts}
}

// Each invokes visit for every newly discovered post handle, in feed order,
// before scrolling further. Handles are passed to visit while they are still
// fresh; they must not be retained past the callback. visit returning an
// error stops the enumeration and the error is passed through.
func (s *Scroller) Each(ctx context.Context, visit func(h browse.Handle) error) (int, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "scroller"))

	if err := s.awaitFirstPost(ctx, logger); err != nil {
		return 0, err
	}

	seen := map[string]struct{}{}
	discovered := 0
	idle := 0
	for discovered < s.maxPosts && idle < maxIdleScrolls {
		handles, err := s.driver.FindAll(ctx, postContainerSelector)
		if err != nil {
			if errors.Is(err, browse.ErrDriverFatal) {
				return discovered, err
			}
			logger.Warn("enumerating post containers failed", slog.String("err", err.Error()))
			handles = nil
		}

		newHandles := 0
		for _, h := range handles {
			if _, ok := seen[h.ID()]; ok {
				continue
			}
			seen[h.ID()] = struct{}{}
			newHandles++
			discovered++
			if err := visit(h); err != nil {
				return discovered, err
			}
			if discovered >= s.maxPosts {
				return discovered, nil
			}
			// cancellation is observed between posts, never mid-post
			if err := ctx.Err(); err != nil {
				return discovered, err
			}
		}
		if newHandles == 0 {
			idle++
		} else {
			idle = 0
		}
		logger.Debug("scroll step done",
			slog.Int("discovered", discovered), slog.Int("new", newHandles), slog.Int("idle", idle))

		if err := s.driver.Scroll(ctx, scrollIncrement()); err != nil {
			if errors.Is(err, browse.ErrDriverFatal) {
				return discovered, err
			}
			logger.Warn("scroll failed", slog.String("err", err.Error()))
		}
		if err := sleepCtx(ctx, config.Jitter(s.profile.ScrollPause)); err != nil {
			return discovered, err
		}
	}
	if idle >= maxIdleScrolls {
		logger.Info("end of feed reached", slog.Int("discovered", discovered))
	}
	return discovered, nil
}

// awaitFirstPost polls for the first post container until the startup
// timeout elapses, after which the run aborts with a DiscoveryError.
func (s *Scroller) awaitFirstPost(ctx context.Context, logger *slog.Logger) error {
	deadline := time.Now().Add(s.profile.StartupWait)
	for {
		handles, err := s.driver.FindAll(ctx, postContainerSelector)
		if err != nil && errors.Is(err, browse.ErrDriverFatal) {
			return err
		}
		if len(handles) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			url, _ := s.driver.Location(ctx)
			logger.Error(fmt.Sprintf("no post containers rendered within %v", s.profile.StartupWait))
			return &DiscoveryError{URL: url}
		}
		if err := sleepCtx(ctx, config.Jitter(s.profile.ScrollPause)); err != nil {
			return err
		}
	}
}

// scrollIncrement returns a jittered downward scroll distance in pixels.
func scrollIncrement() int {
	return 400 + rand.Intn(401)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
