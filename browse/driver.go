// Package browse abstracts the browser session behind a small capability
// interface so that the pipeline can run against a real chrome instance or
// a scripted mock.
package browse

import (
	"context"
	"errors"

	"github.com/feedsnap/feedsnap/types"
)

var (
	// ErrDriverFatal indicates the browser session is lost. The current
	// pass aborts; the monitor may start a fresh session later.
	ErrDriverFatal = errors.New("browser session lost")

	// ErrStaleHandle indicates an element handle no longer resolves to a
	// live node, usually because the page re-rendered. Callers treat this
	// as recoverable.
	ErrStaleHandle = errors.New("stale element handle")
)

// Handle is an opaque, session-scoped reference to a rendered element.
// Handles are only valid within the driver that produced them and are
// invalidated when the page re-renders.
type Handle interface {
	// ID returns an identifier that is stable for the lifetime of the
	// rendered element. It is only meaningful within the current session.
	ID() string
}

// Driver is the capability set the pipeline needs from a browser session.
// Implementations are not safe for concurrent use; the pipeline drives one
// session strictly sequentially.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// FindAll returns handles for all elements matching the selector.
	FindAll(ctx context.Context, selector string) ([]Handle, error)
	// FindWithin returns handles for elements matching the selector below
	// the given parent element.
	FindWithin(ctx context.Context, parent Handle, selector string) ([]Handle, error)
	// Scroll scrolls the viewport vertically by dy pixels (negative is up).
	Scroll(ctx context.Context, dy int) error
	// ScrollIntoView brings the element into the viewport.
	ScrollIntoView(ctx context.Context, h Handle) error
	Click(ctx context.Context, h Handle) error
	// ReadText returns the rendered text of the element.
	ReadText(ctx context.Context, h Handle) (string, error)
	// OuterHTML returns the element's outer HTML.
	OuterHTML(ctx context.Context, h Handle) (string, error)
	// BoundingBox returns the element's geometry in viewport coordinates.
	BoundingBox(ctx context.Context, h Handle) (types.Rect, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser session. It is safe to call more than once.
	Close() error
}
