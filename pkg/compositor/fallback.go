package compositor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
)

// fallback draws layers with 2D blits: transform, opacity and z-order only.
type fallback struct {
	mu       sync.Mutex
	renderer ports.Renderer
	log      ports.Logger
	width    int
	height   int
	canvas   ports.Canvas
	closed   bool
}

// NewFallback creates a reduced-feature compositor on a 2D canvas. Chroma
// key, masks, LUTs, extrusion and projection are ignored.
func NewFallback(renderer ports.Renderer, width, height int, log ports.Logger) Compositor {
	f := &fallback{
		renderer: renderer,
		log:      log.WithComponent("compositor"),
		width:    width,
		height:   height,
	}
	f.canvas = renderer.CreateCanvas(width, height, color.Transparent)
	f.log.Info("Using 2D fallback compositor (%dx%d)", width, height)
	return f
}

func (f *fallback) Render(layers []Layer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	f.canvas.Clear(color.Transparent)
	for _, l := range sortLayers(layers) {
		if l.Source == nil || l.Width <= 0 || l.Height <= 0 || l.Opacity <= 0 {
			continue
		}
		p := ports.Placement{
			X:        l.X,
			Y:        l.Y,
			Width:    l.Width,
			Height:   l.Height,
			Rotation: l.Rotation,
			Opacity:  clamp01(l.Opacity),
		}
		if l.Mix == nil {
			f.canvas.DrawImageTransformed(l.Source, p)
			continue
		}
		t := clamp01(l.Progress)
		a, b := p, p
		a.Opacity *= 1 - t
		b.Opacity *= t
		f.canvas.DrawImageTransformed(l.Source, a)
		f.canvas.DrawImageTransformed(l.Mix, b)
	}
	return nil
}

func (f *fallback) ReadPixels(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	src := f.canvas.ToImage()
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return img, nil
}

func (f *fallback) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidSize
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if width == f.width && height == f.height {
		return nil
	}
	f.width, f.height = width, height
	f.canvas = f.renderer.CreateCanvas(width, height, color.Transparent)
	return nil
}

// CreateLUT accepts the table but grading is not applied by 2D blits.
func (f *fallback) CreateLUT(t *lut.Table) (LUTHandle, error) {
	if t == nil {
		return 0, ErrInvalidLUT
	}
	return 0, nil
}

func (f *fallback) Capabilities() Capabilities {
	return Capabilities{Backend: BackendFallback, Workers: 1, Mix: true}
}

func (f *fallback) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

func (f *fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ Compositor = (*fallback)(nil)
