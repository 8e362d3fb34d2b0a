package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/types"
)

// Prioritized selector lists per field. Selectors are tried in order; the
// first one yielding a non-empty value wins. A field for which no selector
// matches gets a defined default, never an error.
var (
	authorSelectors = []string{
		`h3 a`,
		`h2 a`,
		`[data-testid="post_author_link"]`,
		`strong a`,
	}
	contentSelectors = []string{
		`[data-ad-preview="message"]`,
		`[data-testid="post_message"]`,
		`div[dir="auto"]`,
	}
	timestampSelectors = []string{
		`a[href*="/permalink/"] span`,
		`a[href*="/posts/"] span`,
		`span[class*="timestamp"]`,
		`abbr`,
	}
	permalinkSelectors = []string{
		`a[href*="/permalink/"]`,
		`a[href*="/posts/"]`,
		`a[href*="/story"]`,
	}
	likesSelectors = []string{
		`[data-testid="like_count"]`,
		`[aria-label*="reaction"]`,
		`span[class*="like"]`,
	}
	commentsSelectors = []string{
		`[data-testid="comment_count"]`,
		`[aria-label*="comment"]`,
		`span[class*="comment"]`,
	}
	sharesSelectors = []string{
		`[data-testid="share_count"]`,
		`[aria-label*="share"]`,
		`span[class*="share"]`,
	}
	groupNameSelectors = []string{
		`h1 a`,
		`h1`,
	}
)

// Extractor maps a converged (or timed out) post handle to a PostRecord.
type Extractor struct {
	driver browse.Driver
}

func NewExtractor(driver browse.Driver) *Extractor {
	return &Extractor{driver: driver}
}

// Extract produces a PostRecord from the post's current DOM state. Fields
// are extracted independently; a missing field yields its zero value.
// Extract only fails when the post's markup cannot be obtained at all.
func (e *Extractor) Extract(ctx context.Context, post browse.Handle, pageURL string) (types.PostRecord, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "extract"), slog.String("post", post.ID()))

	markup, err := e.driver.OuterHTML(ctx, post)
	if err != nil {
		return types.PostRecord{}, fmt.Errorf("reading post markup: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return types.PostRecord{}, fmt.Errorf("parsing post markup: %w", err)
	}

	rec := types.PostRecord{
		Author:        firstText(doc, authorSelectors),
		Content:       contentText(doc),
		TimestampText: timestampText(doc),
		PostURL:       firstHref(doc, permalinkSelectors, pageURL),
		LikesCount:    ParseCount(firstText(doc, likesSelectors)),
		CommentsCount: ParseCount(firstText(doc, commentsSelectors)),
		SharesCount:   ParseCount(firstText(doc, sharesSelectors)),
		GroupName:     groupName(doc, pageURL),
		ScrapedAt:     time.Now().Format(time.RFC3339),
	}
	rec.PostID = Fingerprint(rec.Author, rec.Content, rec.PostURL)

	logger.Debug("extracted post",
		slog.String("postId", rec.PostID),
		slog.String("author", rec.Author),
		slog.Int("contentLength", len(rec.Content)))
	return rec, nil
}

// firstText returns the first non-empty rendered text among the selectors,
// preferring the element's first direct text node over nested markup.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		selection := doc.Find(sel)
		if len(selection.Nodes) == 0 {
			continue
		}
		if t := firstTextNode(selection.Nodes[0]); t != "" {
			return t
		}
		if t := strings.TrimSpace(selection.First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstTextNode walks the node's children and returns the first non-empty
// text node encountered.
func firstTextNode(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				return t
			}
		}
		if t := firstTextNode(c); t != "" {
			return t
		}
	}
	return ""
}

// contentText returns the full post-expansion text, with element breaks
// preserved as newlines.
func contentText(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		selection := doc.Find(sel).First()
		if len(selection.Nodes) == 0 {
			continue
		}
		// <br> and block boundaries matter for the content field, goquery's
		// Text() collapses them
		var b strings.Builder
		renderText(selection.Nodes[0], &b)
		if t := strings.TrimSpace(b.String()); t != "" {
			return t
		}
	}
	return ""
}

func renderText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p" || n.Data == "div") {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}
}

func firstHref(doc *goquery.Document, selectors []string, pageURL string) string {
	for _, sel := range selectors {
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		return absolutize(href, pageURL)
	}
	return ""
}

func absolutize(href, pageURL string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

// timestampText returns the post's timestamp as displayed, normalized to
// RFC3339 when it happens to carry an absolute date. Relative timestamps
// ("2 hrs ago") are kept verbatim; they are display data, not identity.
func timestampText(doc *goquery.Document) string {
	raw := ""
	for _, sel := range timestampSelectors {
		selection := doc.Find(sel).First()
		if len(selection.Nodes) == 0 {
			continue
		}
		if title, ok := selection.Attr("title"); ok && title != "" {
			raw = strings.TrimSpace(title)
			break
		}
		if t := strings.TrimSpace(selection.Text()); t != "" {
			raw = t
			break
		}
	}
	if raw == "" {
		return ""
	}
	if t, ok := ParseAbsoluteTimestamp(raw); ok {
		return t.Format(time.RFC3339)
	}
	return raw
}

// groupName extracts the feed's group name, falling back to the URL slug
// ("my-group" -> "My Group") when the page carries no usable heading.
func groupName(doc *goquery.Document, pageURL string) string {
	for _, sel := range groupNameSelectors {
		name := strings.TrimSpace(doc.Find(sel).First().Text())
		if name != "" && name != "Facebook" {
			return name
		}
	}
	if i := strings.Index(pageURL, "/groups/"); i >= 0 {
		slug := pageURL[i+len("/groups/"):]
		slug = strings.SplitN(slug, "/", 2)[0]
		slug = strings.SplitN(slug, "?", 2)[0]
		if slug != "" {
			return titleCase(strings.ReplaceAll(slug, "-", " "))
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

var countRe = regexp.MustCompile(`([\d][\d.,]*)\s*([KkMmBb]?)`)

// magnitude multipliers for abbreviated counters
var countSuffix = map[string]float64{
	"K": 1_000,
	"M": 1_000_000,
	"B": 1_000_000_000,
}

// ParseCount parses an engagement counter like "1.2K", "3M", "1,234" or
// "12 comments" into an integer. Unparseable input yields zero.
func ParseCount(s string) int {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	numStr := strings.ReplaceAll(m[1], ",", "")
	mult := 1.0
	if m[2] != "" {
		mult = countSuffix[strings.ToUpper(m[2])]
		if mult == 0 {
			mult = 1
		}
	} else {
		// "1.2" without a suffix is not a counter, "1234" is
		numStr = strings.SplitN(numStr, ".", 2)[0]
	}
	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0
	}
	return int(n * mult)
}
