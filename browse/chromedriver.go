package browse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/feedsnap/feedsnap/types"
)

// Options configures a chrome session.
type Options struct {
	Headless  bool
	UserAgent string
	// ActionsPerSec limits how many page interactions (navigation, clicks,
	// scrolls) are performed per second. Zero means 2/s.
	ActionsPerSec float64
}

// ChromeDriver drives a headless (or headful) chrome instance via the
// devtools protocol. One ChromeDriver owns one browser tab.
type ChromeDriver struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	limiter     *rate.Limiter

	closeOnce sync.Once
}

const opTimeout = 30 * time.Second

// NewChromeDriver allocates a new browser session. The chrome process is
// started lazily on the first action.
func NewChromeDriver(opts Options) *ChromeDriver {
	execOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // desktop view, mobile pages hide expand controls
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
	)
	if opts.UserAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), execOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	aps := opts.ActionsPerSec
	if aps <= 0 {
		aps = 2
	}
	return &ChromeDriver{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		ctx:         ctx,
		cancel:      cancel,
		limiter:     rate.NewLimiter(rate.Limit(aps), 1),
	}
}

// Start makes sure the browser process is up. Navigation would start it
// anyway; calling Start first lets the monitor treat a broken chrome
// install as an init failure instead of a mid-pass one.
func (d *ChromeDriver) Start(ctx context.Context) error {
	if err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error { return nil })); err != nil {
		return fmt.Errorf("failed to start chrome: %w", errors.Join(ErrDriverFatal, err))
	}
	return nil
}

func (d *ChromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.cancelAlloc()
	})
	return nil
}

type chromeHandle struct {
	node *cdp.Node
}

func (h *chromeHandle) ID() string {
	return fmt.Sprintf("node-%d", h.node.NodeID)
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(d.ctx, opTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// pace blocks until the interaction rate limit allows another action.
func (d *ChromeDriver) pace(ctx context.Context) error {
	return d.limiter.Wait(ctx)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.pace(ctx); err != nil {
		return err
	}
	err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, errors.Join(ErrDriverFatal, err))
	}
	return nil
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", classify(err)
	}
	return loc, nil
}

func (d *ChromeDriver) FindAll(ctx context.Context, selector string) ([]Handle, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, classify(err)
	}
	return wrapNodes(nodes), nil
}

func (d *ChromeDriver) FindWithin(ctx context.Context, parent Handle, selector string) ([]Handle, error) {
	ph, err := d.unwrap(parent)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	err = d.run(ctx, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(ph.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, classify(err)
	}
	return wrapNodes(nodes), nil
}

func (d *ChromeDriver) Scroll(ctx context.Context, dy int) error {
	if err := d.pace(ctx); err != nil {
		return err
	}
	return classify(d.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil)))
}

func (d *ChromeDriver) ScrollIntoView(ctx context.Context, h Handle) error {
	ch, err := d.unwrap(h)
	if err != nil {
		return err
	}
	if err := d.pace(ctx); err != nil {
		return err
	}
	return classify(d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(ch.node.NodeID).Do(ctx)
	})))
}

func (d *ChromeDriver) Click(ctx context.Context, h Handle) error {
	ch, err := d.unwrap(h)
	if err != nil {
		return err
	}
	if err := d.pace(ctx); err != nil {
		return err
	}
	return classify(d.run(ctx, chromedp.MouseClickNode(ch.node)))
}

func (d *ChromeDriver) ReadText(ctx context.Context, h Handle) (string, error) {
	const textFn = `function() { return this.innerText || this.textContent || ""; }`
	var text string
	if err := d.callOnNode(ctx, h, textFn, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (d *ChromeDriver) OuterHTML(ctx context.Context, h Handle) (string, error) {
	ch, err := d.unwrap(h)
	if err != nil {
		return "", err
	}
	var html string
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(ch.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", classify(err)
	}
	return html, nil
}

func (d *ChromeDriver) BoundingBox(ctx context.Context, h Handle) (types.Rect, error) {
	const rectFn = `function() {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	}`
	var rect types.Rect
	if err := d.callOnNode(ctx, h, rectFn, &rect); err != nil {
		return types.Rect{}, err
	}
	return rect, nil
}

func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", errors.Join(ErrDriverFatal, err))
	}
	return buf, nil
}

// callOnNode resolves the handle's node to a javascript object and invokes
// fn with the element as receiver, unmarshalling the returned value into out.
func (d *ChromeDriver) callOnNode(ctx context.Context, h Handle, fn string, out any) error {
	ch, err := d.unwrap(h)
	if err != nil {
		return err
	}
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(ch.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return json.Unmarshal(res.Value, out)
	}))
	return classify(err)
}

func (d *ChromeDriver) unwrap(h Handle) (*chromeHandle, error) {
	ch, ok := h.(*chromeHandle)
	if !ok || ch.node == nil {
		return nil, fmt.Errorf("%w: handle %T does not belong to this driver", ErrStaleHandle, h)
	}
	return ch, nil
}

func wrapNodes(nodes []*cdp.Node) []Handle {
	handles := make([]Handle, 0, len(nodes))
	for _, n := range nodes {
		handles = append(handles, &chromeHandle{node: n})
	}
	return handles
}

// classify maps low level protocol errors onto the driver error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStaleHandle) || errors.Is(err, ErrDriverFatal) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// keep the context error visible so callers can tell a user
		// cancellation from a crashed browser
		return errors.Join(ErrDriverFatal, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "No node with given id") ||
		strings.Contains(msg, "Could not find node") ||
		strings.Contains(msg, "node not found") {
		slog.Debug("element handle went stale", slog.String("err", msg))
		return fmt.Errorf("%w: %v", ErrStaleHandle, err)
	}
	return err
}
