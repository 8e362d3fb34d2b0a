// Package monitor runs scrape passes on a fixed interval, surviving
// recoverable pass failures and restarting the browser session between
// passes.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/feedsnap/feedsnap/feed"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/types"
)

type State int

const (
	Idle State = iota
	Running
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// SessionFactory builds a fresh scrape session with a newly started
// browser. The scheduler calls it once per pass and closes the session
// when the pass ends.
type SessionFactory func(ctx context.Context) (*feed.ScrapeSession, error)

const (
	initRetries    = 3
	initialBackoff = 2 * time.Second
	backoffGrowth  = 2.0
)

type Scheduler struct {
	factory  SessionFactory
	interval time.Duration

	mu     sync.Mutex
	state  State
	totals types.PassStats

	retries     int
	baseBackoff time.Duration
}

func NewScheduler(factory SessionFactory, interval time.Duration) *Scheduler {
	return &Scheduler{
		factory:     factory,
		interval:    interval,
		state:       Idle,
		retries:     initRetries,
		baseBackoff: initialBackoff,
	}
}

// State reports the scheduler's current state. Safe to call while Run is
// executing on another goroutine.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Totals reports the statistics accumulated across all passes so far.
func (s *Scheduler) Totals() types.PassStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Scheduler) addTotals(stats types.PassStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Add(stats)
}

// Run executes passes until ctx is cancelled. A pass that fails after the
// session came up is logged and the scheduler sleeps until the next slot;
// only repeated failure to bring a session up at all stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "monitor"))
	ctx = log.ContextWithLogger(ctx, logger)
	defer s.setState(Stopped)

	for pass := 1; ; pass++ {
		s.setState(Running)
		logger.Info("starting pass", slog.Int("pass", pass))

		stats, err := s.runOnce(ctx)
		s.addTotals(stats)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("stopping", slog.String("reason", "cancelled"))
				return nil
			}
			if errors.Is(err, errSessionInit) {
				logger.Error("giving up, browser session cannot be established", slog.String("error", err.Error()))
				return err
			}
			logger.Warn("pass failed", slog.Int("pass", pass), slog.String("error", err.Error()))
		}

		s.setState(Sleeping)
		logger.Info("sleeping until next pass", slog.Duration("interval", s.interval))
		select {
		case <-ctx.Done():
			logger.Info("stopping", slog.String("reason", "cancelled"))
			return nil
		case <-time.After(s.interval):
		}
	}
}

var errSessionInit = errors.New("session initialization failed")

// runOnce brings a session up, runs a single pass, and always closes the
// session before returning.
func (s *Scheduler) runOnce(ctx context.Context) (types.PassStats, error) {
	session, err := s.initSession(ctx)
	if err != nil {
		return types.PassStats{}, err
	}
	defer session.Close()
	return session.RunPass(ctx)
}

// initSession retries session startup with exponential backoff. Browser
// launches fail transiently under memory pressure; a short retry ladder
// rides that out.
func (s *Scheduler) initSession(ctx context.Context) (*feed.ScrapeSession, error) {
	logger := log.LoggerFromContext(ctx)
	backoff := s.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		session, err := s.factory(ctx)
		if err == nil {
			return session, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Warn("session startup failed",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == s.retries {
			break
		}
		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff = time.Duration(float64(backoff) * backoffGrowth)
	}
	return nil, errors.Join(errSessionInit, lastErr)
}
