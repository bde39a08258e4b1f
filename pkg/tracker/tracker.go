// Package tracker follows a rectangular region across frames by template
// matching.
//
// Each step searches a margin around the previous location for the offset
// minimising the sum of squared RGB differences against the region's content
// in the previous frame. There is no re-acquisition: a step whose best match
// is still poor is flagged Lost and the search continues from there.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// Defaults for Config.
const (
	DefaultMargin        = 20
	DefaultStride        = 2
	DefaultLostThreshold = 3 * 40 * 40
)

// ErrEmptyRegion is returned when the region does not overlap the frame.
var ErrEmptyRegion = errors.New("tracker: region is empty")

// Config tunes the search.
type Config struct {
	// Margin is how far, in pixels, the search extends around the region.
	Margin int `yaml:"margin" toml:"margin"`
	// Stride subsamples the template in both directions.
	Stride int `yaml:"stride" toml:"stride"`
	// LostThreshold is the mean squared RGB error per sampled pixel above
	// which a match is flagged Lost. Zero disables flagging.
	LostThreshold float64 `yaml:"lost_threshold" toml:"lost_threshold"`
}

// DefaultConfig returns a ±20px search over every second pixel.
func DefaultConfig() Config {
	return Config{Margin: DefaultMargin, Stride: DefaultStride, LostThreshold: DefaultLostThreshold}
}

// Result is the outcome of one step.
type Result struct {
	Rect  image.Rectangle
	Error float64 // mean squared RGB error per sampled pixel
	Lost  bool
}

// Tracker runs template searches.
type Tracker struct {
	cfg Config
}

// New creates a tracker. Zero fields take their defaults.
func New(cfg Config) *Tracker {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	if cfg.Stride <= 0 {
		cfg.Stride = DefaultStride
	}
	return &Tracker{cfg: cfg}
}

// Step finds roi, taken from prev, in cur. Both frames must share a size.
func (t *Tracker) Step(prev, cur *image.RGBA, roi image.Rectangle) Result {
	frame := cur.Bounds()
	roi = roi.Intersect(frame).Intersect(prev.Bounds())
	if roi.Empty() {
		return Result{Rect: roi}
	}
	w, h := roi.Dx(), roi.Dy()

	search := image.Rect(roi.Min.X-t.cfg.Margin, roi.Min.Y-t.cfg.Margin,
		roi.Max.X+t.cfg.Margin, roi.Max.Y+t.cfg.Margin).Intersect(frame)

	// The previous location is scored first so that ties keep it.
	best := roi.Min
	bestSSD := t.ssd(prev, cur, roi, roi.Min, math.Inf(1))
	for y := search.Min.Y; y+h <= search.Max.Y; y++ {
		for x := search.Min.X; x+w <= search.Max.X; x++ {
			p := image.Pt(x, y)
			if p == roi.Min {
				continue
			}
			if s := t.ssd(prev, cur, roi, p, bestSSD); s < bestSSD {
				best, bestSSD = p, s
			}
		}
	}

	res := Result{
		Rect:  image.Rectangle{Min: best, Max: best.Add(image.Pt(w, h))},
		Error: bestSSD / float64(t.samples(w, h)),
	}
	res.Lost = t.cfg.LostThreshold > 0 && res.Error > t.cfg.LostThreshold
	return res
}

// ssd compares the template at roi in prev with the same-sized block at p in
// cur. It stops once the running sum exceeds limit.
func (t *Tracker) ssd(prev, cur *image.RGBA, roi image.Rectangle, p image.Point, limit float64) float64 {
	var sum float64
	stride := t.cfg.Stride
	for ty := 0; ty < roi.Dy(); ty += stride {
		po := prev.PixOffset(roi.Min.X, roi.Min.Y+ty)
		co := cur.PixOffset(p.X, p.Y+ty)
		for tx := 0; tx < roi.Dx(); tx += stride {
			i, j := po+tx*4, co+tx*4
			dr := float64(prev.Pix[i]) - float64(cur.Pix[j])
			dg := float64(prev.Pix[i+1]) - float64(cur.Pix[j+1])
			db := float64(prev.Pix[i+2]) - float64(cur.Pix[j+2])
			sum += dr*dr + dg*dg + db*db
			if sum > limit {
				return sum
			}
		}
	}
	return sum
}

func (t *Tracker) samples(w, h int) int {
	s := t.cfg.Stride
	return ((w + s - 1) / s) * ((h + s - 1) / s)
}

// FrameSource renders or decodes the frame at a time in milliseconds.
type FrameSource interface {
	FrameAt(ctx context.Context, ms float64) (*image.RGBA, error)
}

// Sample is one tracked position. TimeMs is relative to the start of the
// tracked span; X and Y are the region centroid.
type Sample struct {
	TimeMs float64 `json:"time_ms"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Error  float64 `json:"error"`
	Lost   bool    `json:"lost,omitempty"`
}

// ProgressFunc receives the number of processed and total frames.
type ProgressFunc func(done, total int)

// Track follows roi from startMs to endMs inclusive in steps of stepMs.
func (t *Tracker) Track(ctx context.Context, src FrameSource, roi image.Rectangle, startMs, endMs, stepMs float64, progress ProgressFunc) ([]Sample, error) {
	if stepMs <= 0 {
		return nil, fmt.Errorf("tracker: step %vms must be positive", stepMs)
	}
	if endMs < startMs {
		return nil, fmt.Errorf("tracker: end %vms before start %vms", endMs, startMs)
	}
	total := int(math.Floor((endMs-startMs)/stepMs+1e-9)) + 1

	prev, err := src.FrameAt(ctx, startMs)
	if err != nil {
		return nil, fmt.Errorf("frame at %vms: %w", startMs, err)
	}
	roi = roi.Intersect(prev.Bounds())
	if roi.Empty() {
		return nil, ErrEmptyRegion
	}

	samples := make([]Sample, 0, total)
	samples = append(samples, sampleOf(0, Result{Rect: roi}))
	if progress != nil {
		progress(1, total)
	}

	for i := 1; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		at := startMs + float64(i)*stepMs
		cur, err := src.FrameAt(ctx, at)
		if err != nil {
			return samples, fmt.Errorf("frame at %vms: %w", at, err)
		}
		res := t.Step(prev, cur, roi)
		samples = append(samples, sampleOf(at-startMs, res))
		roi, prev = res.Rect, cur
		if progress != nil {
			progress(i+1, total)
		}
	}
	return samples, nil
}

func sampleOf(ms float64, r Result) Sample {
	return Sample{
		TimeMs: ms,
		X:      float64(r.Rect.Min.X+r.Rect.Max.X) / 2,
		Y:      float64(r.Rect.Min.Y+r.Rect.Max.Y) / 2,
		Error:  r.Error,
		Lost:   r.Lost,
	}
}
