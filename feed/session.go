package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/types"
)

// ScrapeSession owns a live browser session and the strategy run against
// it. Sessions are single-use per browser lifetime: Close releases the
// browser and is safe to call more than once.
type ScrapeSession struct {
	driver    browse.Driver
	strategy  Strategy
	totals    types.PassStats
	passes    int
	closeOnce sync.Once
	closeErr  error
}

func NewScrapeSession(driver browse.Driver, strategy Strategy) *ScrapeSession {
	return &ScrapeSession{driver: driver, strategy: strategy}
}

// RunPass executes one complete pass of the session's strategy and folds
// the pass statistics into the session totals.
func (s *ScrapeSession) RunPass(ctx context.Context) (types.PassStats, error) {
	logger := log.LoggerFromContext(ctx).With(slog.Int("pass", s.passes+1))
	ctx = log.ContextWithLogger(ctx, logger)

	stats, err := s.strategy.Scrape(ctx)
	s.passes++
	s.totals.Add(stats)
	return stats, err
}

// Totals reports the statistics accumulated across all passes.
func (s *ScrapeSession) Totals() types.PassStats { return s.totals }

// Passes reports how many passes have run, including failed ones.
func (s *ScrapeSession) Passes() int { return s.passes }

// Close releases the browser session.
func (s *ScrapeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}
