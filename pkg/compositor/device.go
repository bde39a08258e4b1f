package compositor

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
)

// rowAlignment is the byte alignment of target rows.
const rowAlignment = 256

// alignPitch returns the padded byte length of one target row.
func alignPitch(width int) int {
	return (width*4 + rowAlignment - 1) &^ (rowAlignment - 1)
}

// shaderDevice is the data-parallel compositor. The target holds
// premultiplied RGBA rows of pitch bytes each.
type shaderDevice struct {
	mu      sync.Mutex
	log     ports.Logger
	workers int
	maxSize int

	width  int
	height int
	pitch  int
	target []byte

	luts    map[LUTHandle]*lut.Table
	nextLUT LUTHandle
	closed  bool
}

// Open returns a compositor for cfg.Backend:
//
//	auto    wgpu on a hardware adapter, else the shader device
//	gpu     wgpu on any adapter, including the software rasterizer
//	shader  the row-parallel shader device
//	none    ErrGPUUnavailable
//
// Any failure to bring a device up wraps ErrGPUUnavailable; callers then use
// NewFallback.
func Open(cfg Config, log ports.Logger) (Compositor, error) {
	log = log.WithComponent("compositor")

	switch cfg.Backend {
	case "", BackendAuto:
		g, err := openGPU(cfg, log, false)
		if err == nil {
			log.Debug("GPU device ready: %s %dx%d", g.name, g.width, g.height)
			return g, nil
		}
		log.Debug("GPU device unavailable, using shader device: %v", err)
	case BackendGPU:
		g, err := openGPU(cfg, log, true)
		if err != nil {
			log.Warn("GPU device unavailable: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
		}
		log.Debug("GPU device ready: %s %dx%d", g.name, g.width, g.height)
		return g, nil
	case BackendShader:
	case BackendNone:
		return nil, ErrGPUUnavailable
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrGPUUnavailable, cfg.Backend)
	}

	d, err := openShader(cfg, log)
	if err != nil {
		log.Warn("Shader device unavailable: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}
	log.Debug("Shader device ready: %dx%d, pitch %d, %d workers", d.width, d.height, d.pitch, d.workers)
	return d, nil
}

func openShader(cfg Config, log ports.Logger) (*shaderDevice, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		return nil, fmt.Errorf("no execution units")
	}
	maxSize := cfg.MaxTextureSize
	if maxSize <= 0 {
		maxSize = DefaultMaxTextureSize
	}

	d := &shaderDevice{
		log:     log,
		workers: workers,
		maxSize: maxSize,
		luts:    make(map[LUTHandle]*lut.Table),
	}
	if err := d.allocate(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *shaderDevice) allocate(width, height int) error {
	if width <= 0 || height <= 0 || width > d.maxSize || height > d.maxSize {
		return fmt.Errorf("%w: %dx%d (max %d)", ErrInvalidSize, width, height, d.maxSize)
	}
	d.width, d.height = width, height
	d.pitch = alignPitch(width)
	d.target = make([]byte, d.pitch*height)
	return nil
}

func (d *shaderDevice) Render(layers []Layer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	clear(d.target)
	for _, l := range sortLayers(layers) {
		if err := d.draw(l); err != nil {
			return err
		}
	}
	return nil
}

// sortLayers returns layers in ascending Z, keeping list order for ties.
func sortLayers(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out
}

func (d *shaderDevice) draw(l Layer) error {
	if l.Source == nil || l.Width <= 0 || l.Height <= 0 || l.Opacity <= 0 {
		return nil
	}
	p := newProgram(l, d.luts[l.LUT])

	if l.Extrusion == nil || l.Extrusion.Depth <= 0 {
		return d.pass(p, 0, false)
	}
	// Instance i sits depth-i pixels down and right; all but the last are dimmed.
	depth := l.Extrusion.Depth
	for i := 0; i < depth; i++ {
		if err := d.pass(p, float64(depth-i), i < depth-1); err != nil {
			return err
		}
	}
	return nil
}

// pass rasterises one instance of a program shifted by offset pixels.
func (d *shaderDevice) pass(p *program, offset float64, dim bool) error {
	q := p.quad.shift(offset)
	bounds := q.bounds().Intersect(image.Rect(0, 0, d.width, d.height))
	if bounds.Empty() {
		return nil
	}
	return d.dispatch(bounds, func(y int) {
		row := d.target[y*d.pitch:]
		py := float64(y) + 0.5
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			u, v, ok := q.local(float64(x)+0.5, py)
			if !ok {
				continue
			}
			r, g, b, a, ok := p.shade(u, v, dim)
			if !ok {
				continue
			}
			blendOver(row[x*4:x*4+4], r, g, b, a)
		}
	})
}

// dispatch runs fn for every row of rect across the worker pool.
func (d *shaderDevice) dispatch(rect image.Rectangle, fn func(y int)) error {
	var g errgroup.Group
	g.SetLimit(d.workers)

	band := (rect.Dy() + d.workers*4 - 1) / (d.workers * 4)
	if band < 1 {
		band = 1
	}
	for y0 := rect.Min.Y; y0 < rect.Max.Y; y0 += band {
		y1 := min(y0+band, rect.Max.Y)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				fn(y)
			}
			return nil
		})
	}
	return g.Wait()
}

// blendOver composites premultiplied (r, g, b, a) over dst.
func blendOver(dst []byte, r, g, b, a float64) {
	inv := 1 - a
	dst[0] = toByte(r + float64(dst[0])/255*inv)
	dst[1] = toByte(g + float64(dst[1])/255*inv)
	dst[2] = toByte(b + float64(dst[2])/255*inv)
	dst[3] = toByte(a + float64(dst[3])/255*inv)
}

func toByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

func (d *shaderDevice) ReadPixels(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	rowBytes := d.width * 4
	for y := 0; y < d.height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+rowBytes], d.target[y*d.pitch:y*d.pitch+rowBytes])
	}
	return img, nil
}

func (d *shaderDevice) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if width == d.width && height == d.height {
		return nil
	}
	return d.allocate(width, height)
}

func (d *shaderDevice) CreateLUT(t *lut.Table) (LUTHandle, error) {
	if t == nil || t.Size < 2 || len(t.Data) != t.Size*t.Size*t.Size*3 {
		return 0, ErrInvalidLUT
	}
	if t.IsIdentity() {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	d.nextLUT++
	d.luts[d.nextLUT] = t
	return d.nextLUT, nil
}

func (d *shaderDevice) Capabilities() Capabilities {
	return Capabilities{
		Backend:    BackendShader,
		Workers:    d.workers,
		ChromaKey:  true,
		LUT:        true,
		Extrusion:  true,
		Projection: true,
		Mask:       true,
		Mix:        true,
	}
}

func (d *shaderDevice) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *shaderDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.target = nil
	d.luts = nil
	return nil
}

var _ Compositor = (*shaderDevice)(nil)
