// Package matte provides a Segmenter computing foreground masks from pixel
// luminance or distance to a key color.
package matte

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// Models served by the Segmenter.
const (
	ModelLuma   = "luma"
	ModelChroma = "chroma"
)

// Config tunes the mattes. Thresholds are in [0,1].
type Config struct {
	// LumaThreshold is the luminance at which a pixel becomes half opaque.
	LumaThreshold float64 `yaml:"luma_threshold" toml:"luma_threshold"`
	// Key is the background color removed by the chroma matte.
	Key string `yaml:"key" toml:"key"`
	// Tolerance is the RGB distance below which a pixel counts as key.
	Tolerance float64 `yaml:"tolerance" toml:"tolerance"`
	// Softness widens both ramps.
	Softness float64 `yaml:"softness" toml:"softness"`
}

// DefaultConfig returns a mid-gray luma threshold and a green key.
func DefaultConfig() Config {
	return Config{
		LumaThreshold: 0.5,
		Key:           "#00ff00",
		Tolerance:     0.3,
		Softness:      0.1,
	}
}

// Segmenter implements ports.Segmenter without a learned model.
type Segmenter struct {
	cfg Config
	key [3]float64
	log ports.Logger
}

// New creates a segmenter. An invalid key color is an error.
func New(cfg Config, log ports.Logger) (*Segmenter, error) {
	d := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = d.Key
	}
	if cfg.Softness <= 0 {
		cfg.Softness = d.Softness
	}
	c, err := scene.ParseColor(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("matte key: %w", err)
	}
	return &Segmenter{
		cfg: cfg,
		key: [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255},
		log: log.WithComponent("matte"),
	}, nil
}

// Segment returns a mask the size of img for the named model.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error) {
	var alpha func(r, g, b float64) float64
	switch model {
	case ModelLuma:
		alpha = s.luma
	case ModelChroma:
		alpha = s.chroma
	default:
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownModel, model)
	}

	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	s.log.Debug("Segmenting %dx%d image with %s matte", b.Dx(), b.Dy(), model)
	for y := 0; y < b.Dy(); y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			a := alpha(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
			a *= float64(c.A) / 255
			mask.Pix[y*mask.Stride+x] = uint8(math.Round(clamp01(a) * 255))
		}
	}
	return mask, nil
}

// luma keeps bright pixels with a ramp centered on the threshold.
func (s *Segmenter) luma(r, g, b float64) float64 {
	y := 0.299*r + 0.587*g + 0.114*b
	return ramp(y, s.cfg.LumaThreshold-s.cfg.Softness/2, s.cfg.LumaThreshold+s.cfg.Softness/2)
}

// chroma drops pixels close to the key color.
func (s *Segmenter) chroma(r, g, b float64) float64 {
	dr, dg, db := r-s.key[0], g-s.key[1], b-s.key[2]
	d := math.Sqrt(dr*dr+dg*dg+db*db) / math.Sqrt(3)
	return ramp(d, s.cfg.Tolerance, s.cfg.Tolerance+s.cfg.Softness)
}

// ramp is 0 at or below lo, 1 at or above hi and linear between.
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

var _ ports.Segmenter = (*Segmenter)(nil)
