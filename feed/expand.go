package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/config"
	"github.com/feedsnap/feedsnap/log"
)

// defaultAttemptBudget caps the number of scan/expand/settle cycles spent on
// one post. Exceeding it means the post is extracted as-is and flagged as
// not fully expanded.
const defaultAttemptBudget = 5

// ExpansionState tracks the convergence loop for a single post handle. It is
// created when processing of the handle starts and discarded afterwards.
type ExpansionState struct {
	Attempts          int
	LastContentLength int
	Stable            bool
	// ExpandedRegions holds the ids of controls that were activated
	// successfully, so repeated cycles don't re-click them.
	ExpandedRegions map[string]struct{}
}

// Engine drives a post's collapsed regions to a stable, fully expanded
// state through repeated targeted interaction.
type Engine struct {
	driver  browse.Driver
	profile config.Profile
	budget  int
	// patterns can be overridden in tests; defaults to expandPatterns.
	patterns []ControlPattern
}

func NewEngine(driver browse.Driver, profile config.Profile) *Engine {
	return &Engine{
		driver:   driver,
		profile:  profile,
		budget:   defaultAttemptBudget,
		patterns: expandPatterns,
	}
}

// Expand runs the convergence loop on one post. It returns the final state
// and whether the post converged (as opposed to running out of attempts).
// Individual control failures never abort the post; only a lost browser
// session is returned as an error.
func (e *Engine) Expand(ctx context.Context, post browse.Handle) (*ExpansionState, bool, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "expand"), slog.String("post", post.ID()))

	st := &ExpansionState{ExpandedRegions: map[string]struct{}{}}
	st.LastContentLength = e.measure(ctx, post)
	seenControls := map[string]struct{}{}

	for {
		// Scanning
		controls, err := e.scanControls(ctx, post)
		if err != nil {
			return st, false, err
		}
		for _, c := range controls {
			seenControls[c.ID()] = struct{}{}
		}
		pending := 0
		for _, c := range controls {
			if _, done := st.ExpandedRegions[c.ID()]; !done {
				pending++
			}
		}
		if pending == 0 && st.Attempts == 0 && len(st.ExpandedRegions) == 0 {
			// nothing to expand at all
			st.Stable = true
			logger.Debug("no expand controls found, converged immediately")
			return st, true, nil
		}

		// Expanding: activate in document order, ignore individual failures
		clickFailed := false
		for _, c := range controls {
			if _, done := st.ExpandedRegions[c.ID()]; done {
				continue
			}
			if err := e.driver.Click(ctx, c); err != nil {
				if errors.Is(err, browse.ErrDriverFatal) {
					return st, false, err
				}
				clickFailed = true
				logger.Debug("control activation failed, continuing",
					slog.String("control", c.ID()), slog.String("err", err.Error()))
				continue
			}
			st.ExpandedRegions[c.ID()] = struct{}{}
			if err := sleepCtx(ctx, config.Jitter(e.profile.ClickDelay)); err != nil {
				return st, false, err
			}
		}

		// Settling
		if err := sleepCtx(ctx, config.Jitter(e.profile.SettleWait)); err != nil {
			return st, false, err
		}
		newLen := e.measure(ctx, post)
		grew := newLen > st.LastContentLength
		if grew {
			// recorded length is monotonic even if the DOM shrinks later
			st.LastContentLength = newLen
		}

		rescanned, err := e.scanControls(ctx, post)
		if err != nil {
			return st, false, err
		}
		appeared := false
		for _, c := range rescanned {
			if _, ok := seenControls[c.ID()]; !ok {
				seenControls[c.ID()] = struct{}{}
				appeared = true
			}
		}

		// retry failed activations as long as the budget allows; a control
		// that failed once (stale ref) often succeeds on the next cycle
		if grew || appeared || clickFailed {
			st.Attempts++
			if st.Attempts > e.budget {
				logger.Warn("expansion attempt budget exhausted",
					slog.Int("attempts", st.Attempts), slog.Int("contentLength", st.LastContentLength))
				return st, false, nil
			}
			continue
		}

		st.Stable = true
		logger.Debug("expansion converged",
			slog.Int("attempts", st.Attempts), slog.Int("contentLength", st.LastContentLength))
		return st, true, nil
	}
}

// measure returns the post's rendered text length in runes. A read failure
// counts as zero; the monotonic tracking in Expand keeps the recorded
// length from regressing.
func (e *Engine) measure(ctx context.Context, post browse.Handle) int {
	text, err := e.driver.ReadText(ctx, post)
	if err != nil {
		return 0
	}
	return len([]rune(text))
}

// scanControls enumerates the post's visible expand controls across all
// recognized patterns, de-duplicated, in pattern priority order.
func (e *Engine) scanControls(ctx context.Context, post browse.Handle) ([]browse.Handle, error) {
	var controls []browse.Handle
	found := map[string]struct{}{}
	for _, p := range e.patterns {
		candidates, err := e.driver.FindWithin(ctx, post, p.Selector)
		if err != nil {
			if errors.Is(err, browse.ErrDriverFatal) {
				return nil, err
			}
			continue
		}
		for _, c := range candidates {
			if _, ok := found[c.ID()]; ok {
				continue
			}
			text, err := e.driver.ReadText(ctx, c)
			if err != nil {
				continue
			}
			if !p.matchesLabel(text) {
				continue
			}
			found[c.ID()] = struct{}{}
			controls = append(controls, c)
		}
	}
	return controls, nil
}
