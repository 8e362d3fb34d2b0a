// Package capture takes per-post screenshots: the viewport is shot whole,
// then cropped to the post's bounding box so each artifact shows exactly
// one post.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/types"
)

// scrollMargin keeps a little context above the post after scrolling it
// into view, matching what a reader would see.
const scrollMargin = 60

type Capturer struct {
	dir string
	seq atomic.Int64

	now func() time.Time
}

func NewCapturer(dir string) (*Capturer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating screenshot directory: %w", err)
	}
	return &Capturer{dir: dir, now: time.Now}, nil
}

// Capture scrolls the post into view, screenshots the viewport and crops
// the result to the post's bounding box. When the geometry cannot be read
// or the crop fails, the uncropped viewport shot is kept instead; only a
// failure to obtain any screenshot at all is an error.
func (c *Capturer) Capture(ctx context.Context, driver browse.Driver, post browse.Handle, postID string) (types.ScreenshotArtifact, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "capture"), slog.String("postId", postID))

	if err := driver.ScrollIntoView(ctx, post); err != nil {
		logger.Debug("scroll into view failed, shooting current viewport", slog.String("error", err.Error()))
	} else if err := driver.Scroll(ctx, -scrollMargin); err != nil {
		logger.Debug("margin scroll failed", slog.String("error", err.Error()))
	}

	shot, err := driver.Screenshot(ctx)
	if err != nil {
		return types.ScreenshotArtifact{}, fmt.Errorf("taking screenshot: %w", err)
	}

	art := types.ScreenshotArtifact{
		PostID:     postID,
		CapturedAt: c.now(),
	}

	box, err := driver.BoundingBox(ctx, post)
	if err != nil || box.Empty() {
		logger.Debug("no usable bounding box, keeping full viewport shot")
	} else {
		art.BoundingBox = box
		if cropped, cerr := cropPNG(shot, box); cerr != nil {
			logger.Debug("crop failed, keeping full viewport shot", slog.String("error", cerr.Error()))
		} else {
			shot = cropped
			art.Cropped = true
		}
	}

	name := fmt.Sprintf("post_%d_%s.png", c.seq.Add(1), art.CapturedAt.Format("20060102_150405"))
	art.Path = filepath.Join(c.dir, name)
	if err := os.WriteFile(art.Path, shot, 0o644); err != nil {
		return types.ScreenshotArtifact{}, fmt.Errorf("writing %s: %w", art.Path, err)
	}
	logger.Debug("saved screenshot", slog.String("path", art.Path), slog.Bool("cropped", art.Cropped))
	return art, nil
}

// cropPNG cuts the bounding box out of the PNG-encoded viewport shot. The
// box is clamped to the image bounds; an empty intersection is an error.
func cropPNG(data []byte, box types.Rect) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("screenshot image type %T does not support cropping", img)
	}
	region := image.Rect(int(box.X), int(box.Y), int(box.X+box.Width), int(box.Y+box.Height))
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("bounding box %+v lies outside the viewport", box)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(region)); err != nil {
		return nil, fmt.Errorf("encoding cropped screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
