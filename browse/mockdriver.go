package browse

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/feedsnap/feedsnap/types"
)

// MockExpansion models one "see more"-class control of a mock post.
// Expansions form a cascade: only the first unconsumed expansion is
// rendered, consuming it reveals its text and surfaces the next one.
type MockExpansion struct {
	// Label is the control's rendered text, eg "See more".
	Label string
	// Selector restricts which selector queries the control shows up for.
	// Empty matches any control query.
	Selector string
	// Reveal is the text appended to the post content once the control
	// has been activated successfully.
	Reveal string
	// FailFirst makes the first n activation attempts fail with a stale
	// handle error before one succeeds.
	FailFirst int

	consumed bool
	fails    int
}

// MockPost is a scripted feed post rendered by the MockDriver.
type MockPost struct {
	Author        string
	TimestampText string
	Permalink     string
	Likes         string
	Comments      string
	Shares        string
	Base          string
	Expansions    []*MockExpansion
	Box           types.Rect
	// OmitContent drops the content element from the rendered HTML to
	// exercise per-field defaults.
	OmitContent bool
}

func (p *MockPost) content() string {
	parts := []string{p.Base}
	for _, e := range p.Expansions {
		if e.consumed && e.Reveal != "" {
			parts = append(parts, e.Reveal)
		}
	}
	return strings.Join(parts, "\n")
}

// visibleExpansion returns the first unconsumed expansion, if any.
func (p *MockPost) visibleExpansion() *MockExpansion {
	for _, e := range p.Expansions {
		if !e.consumed {
			return e
		}
	}
	return nil
}

// MockDriver renders a scripted feed page without a browser. It reveals
// PerScroll additional posts per scroll action, mimicking lazy loading.
type MockDriver struct {
	Posts     []*MockPost
	PerScroll int
	PageURL   string

	// Failure injection.
	FailNavigate   error
	FailScreenshot error

	ViewportW int
	ViewportH int

	visible   int
	navigated bool
	Scrolls   int
	closed    bool
}

// NewMockDriver returns a driver rendering the given posts, with the first
// batch visible right after navigation.
func NewMockDriver(posts []*MockPost, perScroll int) *MockDriver {
	return &MockDriver{
		Posts:     posts,
		PerScroll: perScroll,
		PageURL:   "https://example.com/groups/mock-group/",
		ViewportW: 1280,
		ViewportH: 800,
	}
}

type mockPostHandle struct {
	post *MockPost
	idx  int
}

func (h *mockPostHandle) ID() string { return fmt.Sprintf("post-%d", h.idx) }

type mockControlHandle struct {
	exp     *MockExpansion
	postIdx int
	expIdx  int
}

func (h *mockControlHandle) ID() string {
	return fmt.Sprintf("post-%d-ctl-%d", h.postIdx, h.expIdx)
}

func (d *MockDriver) Navigate(ctx context.Context, url string) error {
	if d.FailNavigate != nil {
		return d.FailNavigate
	}
	d.navigated = true
	d.PageURL = url
	d.visible = d.PerScroll
	if d.visible == 0 || d.visible > len(d.Posts) {
		d.visible = len(d.Posts)
	}
	return nil
}

func (d *MockDriver) Location(ctx context.Context) (string, error) {
	return d.PageURL, nil
}

func (d *MockDriver) FindAll(ctx context.Context, selector string) ([]Handle, error) {
	if !d.navigated {
		return nil, nil
	}
	if !strings.Contains(selector, "article") {
		return nil, nil
	}
	handles := make([]Handle, 0, d.visible)
	for i := 0; i < d.visible; i++ {
		handles = append(handles, &mockPostHandle{post: d.Posts[i], idx: i})
	}
	return handles, nil
}

func (d *MockDriver) FindWithin(ctx context.Context, parent Handle, selector string) ([]Handle, error) {
	ph, ok := parent.(*mockPostHandle)
	if !ok {
		return nil, nil
	}
	exp := ph.post.visibleExpansion()
	if exp == nil {
		return nil, nil
	}
	if exp.Selector != "" && exp.Selector != selector {
		return nil, nil
	}
	for i, e := range ph.post.Expansions {
		if e == exp {
			return []Handle{&mockControlHandle{exp: exp, postIdx: ph.idx, expIdx: i}}, nil
		}
	}
	return nil, nil
}

func (d *MockDriver) Scroll(ctx context.Context, dy int) error {
	if dy <= 0 {
		return nil
	}
	d.Scrolls++
	d.visible += d.PerScroll
	if d.visible > len(d.Posts) {
		d.visible = len(d.Posts)
	}
	return nil
}

func (d *MockDriver) ScrollIntoView(ctx context.Context, h Handle) error {
	if _, ok := h.(*mockPostHandle); !ok {
		return ErrStaleHandle
	}
	return nil
}

func (d *MockDriver) Click(ctx context.Context, h Handle) error {
	ch, ok := h.(*mockControlHandle)
	if !ok {
		return nil
	}
	if ch.exp.consumed {
		return fmt.Errorf("%w: control already activated", ErrStaleHandle)
	}
	if ch.exp.fails < ch.exp.FailFirst {
		ch.exp.fails++
		return fmt.Errorf("%w: injected activation failure", ErrStaleHandle)
	}
	ch.exp.consumed = true
	return nil
}

func (d *MockDriver) ReadText(ctx context.Context, h Handle) (string, error) {
	switch t := h.(type) {
	case *mockPostHandle:
		text := t.post.Author + "\n" + t.post.content()
		if exp := t.post.visibleExpansion(); exp != nil {
			text += "\n" + exp.Label
		}
		return text, nil
	case *mockControlHandle:
		return t.exp.Label, nil
	}
	return "", ErrStaleHandle
}

func (d *MockDriver) OuterHTML(ctx context.Context, h Handle) (string, error) {
	ph, ok := h.(*mockPostHandle)
	if !ok {
		return "", ErrStaleHandle
	}
	p := ph.post
	var b strings.Builder
	b.WriteString(`<div role="article">`)
	if p.Author != "" {
		fmt.Fprintf(&b, `<h3><a role="link" href="%s">%s</a></h3>`, p.Permalink, html.EscapeString(p.Author))
	}
	if !p.OmitContent {
		fmt.Fprintf(&b, `<div data-ad-preview="message" dir="auto">%s</div>`,
			strings.ReplaceAll(html.EscapeString(p.content()), "\n", "<br/>"))
	}
	if p.Permalink != "" {
		fmt.Fprintf(&b, `<a role="link" href="%s"><span class="timestamp">%s</span></a>`,
			p.Permalink, html.EscapeString(p.TimestampText))
	}
	fmt.Fprintf(&b, `<div><span data-testid="like_count">%s</span>`+
		`<span data-testid="comment_count">%s</span>`+
		`<span data-testid="share_count">%s</span></div>`,
		p.Likes, p.Comments, p.Shares)
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (d *MockDriver) BoundingBox(ctx context.Context, h Handle) (types.Rect, error) {
	ph, ok := h.(*mockPostHandle)
	if !ok {
		return types.Rect{}, ErrStaleHandle
	}
	if !ph.post.Box.Empty() {
		return ph.post.Box, nil
	}
	return types.Rect{X: 100, Y: 80, Width: 500, Height: 300}, nil
}

func (d *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if d.FailScreenshot != nil {
		return nil, d.FailScreenshot
	}
	img := image.NewRGBA(image.Rect(0, 0, d.ViewportW, d.ViewportH))
	for y := 0; y < d.ViewportH; y++ {
		for x := 0; x < d.ViewportW; x++ {
			img.Set(x, y, color.RGBA{R: 230, G: 230, B: 230, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *MockDriver) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether Close has been called, for resource-release tests.
func (d *MockDriver) Closed() bool { return d.closed }
