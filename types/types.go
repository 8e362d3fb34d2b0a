// Package types defines shared types used across the application.
package types

import "time"

// PostRecord is the structured result of extracting one fully expanded
// (or expansion-timed-out) feed post. It is immutable once extracted.
type PostRecord struct {
	PostID          string `json:"post_id"`
	Author          string `json:"author"`
	Content         string `json:"content"`
	TimestampText   string `json:"timestamp"`
	PostURL         string `json:"post_url"`
	LikesCount      int    `json:"likes_count"`
	CommentsCount   int    `json:"comments_count"`
	SharesCount     int    `json:"shares_count"`
	GroupName       string `json:"group_name"`
	ScrapedAt       string `json:"scraped_at"`
	ContentExpanded bool   `json:"content_expanded"`
}

// ScreenshotArtifact describes a capture file written for a persisted post.
type ScreenshotArtifact struct {
	Path        string    `json:"screenshot_path"`
	PostID      string    `json:"post_id"`
	CapturedAt  time.Time `json:"screenshot_timestamp"`
	BoundingBox Rect      `json:"bounding_box"`
	Cropped     bool      `json:"cropped"`
}

// Rect is an element's bounding geometry in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Empty reports whether the rect has no drawable area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// UpsertResult is the outcome of persisting a PostRecord. A duplicate is a
// normal control-flow outcome, not an error.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Duplicate
)

func (r UpsertResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "inserted"
}

// PassStats summarizes one complete pipeline pass over a feed.
type PassStats struct {
	Discovered      int `json:"discovered"`
	NewlyPersisted  int `json:"newly_persisted"`
	Duplicates      int `json:"duplicates"`
	ExtractFailures int `json:"extract_failures"`
	CaptureFailures int `json:"capture_failures"`
}

// Add accumulates other into s, for monitoring totals across passes.
func (s *PassStats) Add(other PassStats) {
	s.Discovered += other.Discovered
	s.NewlyPersisted += other.NewlyPersisted
	s.Duplicates += other.Duplicates
	s.ExtractFailures += other.ExtractFailures
	s.CaptureFailures += other.CaptureFailures
}
