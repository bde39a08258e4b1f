package matte

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameflow/pkg/adapters/logger"
	"github.com/user/frameflow/pkg/ports"
)

func newSegmenter(t *testing.T, cfg Config) *Segmenter {
	t.Helper()
	s, err := New(cfg, logger.NewNoop())
	require.NoError(t, err)
	return s
}

func pixels(cs ...color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(10, 10, 10+len(cs), 11))
	for i, c := range cs {
		img.Set(10+i, 10, c)
	}
	return img
}

func TestSegment_Luma(t *testing.T) {
	s := newSegmenter(t, DefaultConfig())
	img := pixels(color.White, color.Black, color.NRGBA{128, 128, 128, 255}, color.NRGBA{255, 255, 255, 0})

	mask, err := s.Segment(context.Background(), img, ModelLuma)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 4, 1), mask.Bounds())
	assert.Equal(t, uint8(255), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(1, 0).Y)
	assert.InDelta(t, 133, int(mask.GrayAt(2, 0).Y), 1)
	assert.Equal(t, uint8(0), mask.GrayAt(3, 0).Y, "transparent source stays transparent")
}

func TestSegment_Chroma(t *testing.T) {
	s := newSegmenter(t, DefaultConfig())
	img := pixels(color.NRGBA{0, 255, 0, 255}, color.NRGBA{20, 240, 10, 255}, color.NRGBA{200, 40, 60, 255})

	mask, err := s.Segment(context.Background(), img, ModelChroma)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(2, 0).Y)
}

func TestSegment_UnknownModel(t *testing.T) {
	s := newSegmenter(t, DefaultConfig())
	_, err := s.Segment(context.Background(), pixels(color.White), "portrait")
	assert.ErrorIs(t, err, ports.ErrUnknownModel)
}

func TestSegment_Cancelled(t *testing.T) {
	s := newSegmenter(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Segment(ctx, pixels(color.White), ModelLuma)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New(Config{Key: "#zzz"}, logger.NewNoop())
	assert.Error(t, err)
}

func TestRamp(t *testing.T) {
	assert.Equal(t, 0.0, ramp(0.1, 0.2, 0.4))
	assert.Equal(t, 1.0, ramp(0.5, 0.2, 0.4))
	assert.InDelta(t, 0.5, ramp(0.3, 0.2, 0.4), 1e-12)
	assert.Equal(t, 1.0, ramp(0.3, 0.3, 0.3))
}
