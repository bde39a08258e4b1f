package compositor

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameflow/pkg/adapters/logger"
	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/mocks"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func open(t *testing.T, w, h int) Compositor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = BackendShader
	cfg.Width, cfg.Height = w, h
	c, err := Open(cfg, logger.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// devices opens the shader device and, when an adapter is present, the GPU
// device, keyed by backend name.
func devices(t *testing.T, w, h int) map[string]Compositor {
	t.Helper()
	out := map[string]Compositor{BackendShader: open(t, w, h)}
	g, err := Open(Config{Backend: BackendGPU, Width: w, Height: h}, logger.NewNoop())
	if err != nil {
		require.ErrorIs(t, err, ErrGPUUnavailable)
		t.Logf("GPU device skipped: %v", err)
		return out
	}
	t.Cleanup(func() { g.Close() })
	out[BackendGPU] = g
	return out
}

// noise returns a premultiplied image of pseudo-random pixels, including
// fully transparent ones.
func noise(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	state := uint32(2463534242)
	for i := 0; i < len(img.Pix); i += 4 {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		a := uint32(state >> 24)
		if i%36 == 0 {
			a = 0
		}
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = byte((state >> (8 * c) & 0xff) * a / 255)
		}
		img.Pix[i+3] = byte(a)
	}
	return img
}

func full(src *image.RGBA, w, h int) Layer {
	return Layer{Source: src, Width: float64(w), Height: float64(h), Opacity: 1}
}

func render(t *testing.T, c Compositor, layers ...Layer) *image.RGBA {
	t.Helper()
	require.NoError(t, c.Render(layers))
	img, err := c.ReadPixels(context.Background())
	require.NoError(t, err)
	return img
}

func assertColor(t *testing.T, want color.RGBA, got color.RGBA, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, want.R, got.R, 2, msgAndArgs...)
	assert.InDelta(t, want.G, got.G, 2, msgAndArgs...)
	assert.InDelta(t, want.B, got.B, 2, msgAndArgs...)
	assert.InDelta(t, want.A, got.A, 2, msgAndArgs...)
}

func TestAlignPitch(t *testing.T) {
	assert.Equal(t, 256, alignPitch(1))
	assert.Equal(t, 256, alignPitch(64))
	assert.Equal(t, 512, alignPitch(65))
	assert.Equal(t, 7680, alignPitch(1920))
}

func TestOpen_Backends(t *testing.T) {
	_, err := Open(Config{Backend: BackendNone, Width: 8, Height: 8}, logger.NewNoop())
	assert.ErrorIs(t, err, ErrGPUUnavailable)

	_, err = Open(Config{Backend: "vulkan", Width: 8, Height: 8}, logger.NewNoop())
	assert.ErrorIs(t, err, ErrGPUUnavailable)

	_, err = Open(Config{Backend: BackendShader, Width: 0, Height: 8}, logger.NewNoop())
	assert.ErrorIs(t, err, ErrGPUUnavailable)

	c, err := Open(Config{Backend: BackendShader, Width: 8, Height: 8, Workers: 2}, logger.NewNoop())
	require.NoError(t, err)
	defer c.Close()
	caps := c.Capabilities()
	assert.Equal(t, BackendShader, caps.Backend)
	assert.Equal(t, 2, caps.Workers)
	assert.True(t, caps.ChromaKey && caps.LUT && caps.Projection)

	g, err := Open(Config{Backend: BackendGPU, Width: 8, Height: 8}, logger.NewNoop())
	if err != nil {
		assert.ErrorIs(t, err, ErrGPUUnavailable)
		return
	}
	defer g.Close()
	assert.Equal(t, BackendGPU, g.Capabilities().Backend)
	assert.NotEmpty(t, g.Capabilities().Device)
}

func TestRender_FullFrameLayerIsByteExact(t *testing.T) {
	src := noise(37, 23)
	for name, c := range devices(t, 37, 23) {
		t.Run(name, func(t *testing.T) {
			img := render(t, c, full(src, 37, 23))
			assert.Equal(t, src.Pix, img.Pix)
		})
	}
}

func TestRender_ClearsToTransparent(t *testing.T) {
	c := open(t, 8, 8)
	render(t, c, full(solid(8, 8, red), 8, 8))
	img := render(t, c)
	for _, v := range img.Pix {
		require.Zero(t, v)
	}
}

func TestRender_AscendingZ(t *testing.T) {
	c := open(t, 4, 4)

	top := full(solid(4, 4, red), 4, 4)
	top.Z = 1
	bottom := full(solid(4, 4, blue), 4, 4)
	img := render(t, c, top, bottom)
	assertColor(t, red, img.RGBAAt(1, 1))

	// equal Z keeps list order
	img = render(t, c, full(solid(4, 4, red), 4, 4), full(solid(4, 4, blue), 4, 4))
	assertColor(t, blue, img.RGBAAt(1, 1))
}

func TestRender_PremultipliedOver(t *testing.T) {
	c := open(t, 4, 4)

	half := full(solid(4, 4, white), 4, 4)
	half.Opacity = 0.5
	img := render(t, c, half)
	assertColor(t, color.RGBA{128, 128, 128, 128}, img.RGBAAt(0, 0))

	img = render(t, c, full(solid(4, 4, black), 4, 4), half)
	assertColor(t, color.RGBA{128, 128, 128, 255}, img.RGBAAt(0, 0))
}

func TestReadPixels_PackedRows(t *testing.T) {
	c := open(t, 65, 3)
	l := Layer{Source: solid(5, 3, red), X: 60, Width: 5, Height: 3, Opacity: 1}
	img := render(t, c, l)

	assert.Equal(t, 65*4, img.Stride)
	for y := 0; y < 3; y++ {
		assertColor(t, red, img.RGBAAt(64, y))
		assert.Equal(t, color.RGBA{}, img.RGBAAt(59, y))
	}
}

func TestRender_ChromaKey(t *testing.T) {
	c := open(t, 4, 4)
	key := scene.DefaultChromaKey()

	l := full(solid(4, 4, green), 4, 4)
	l.ChromaKey = &key
	img := render(t, c, l)
	assert.Zero(t, img.RGBAAt(1, 1).A)

	l.Source = solid(4, 4, red)
	img = render(t, c, l)
	assertColor(t, red, img.RGBAAt(1, 1))
}

func TestRender_Mask(t *testing.T) {
	c := open(t, 4, 4)
	mask := image.NewGray(image.Rect(0, 0, 4, 4))

	l := full(solid(4, 4, white), 4, 4)
	l.Mask = mask
	img := render(t, c, l)
	assert.Zero(t, img.RGBAAt(1, 1).A)

	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	img = render(t, c, l)
	assertColor(t, white, img.RGBAAt(1, 1))
}

func TestRender_LUT(t *testing.T) {
	c := open(t, 4, 4)

	h, err := c.CreateLUT(lut.Identity(lut.DefaultIdentitySize))
	require.NoError(t, err)
	assert.Equal(t, LUTHandle(0), h)

	invert := &lut.Table{Size: 2}
	for b := 0; b < 2; b++ {
		for g := 0; g < 2; g++ {
			for r := 0; r < 2; r++ {
				invert.Data = append(invert.Data, float32(1-r), float32(1-g), float32(1-b))
			}
		}
	}
	h, err = c.CreateLUT(invert)
	require.NoError(t, err)
	assert.NotZero(t, h)

	l := full(solid(4, 4, red), 4, 4)
	l.LUT = h
	img := render(t, c, l)
	assertColor(t, color.RGBA{0, 255, 255, 255}, img.RGBAAt(1, 1))

	_, err = c.CreateLUT(&lut.Table{Size: 2, Data: []float32{1}})
	assert.ErrorIs(t, err, ErrInvalidLUT)
}

func TestRender_Extrusion(t *testing.T) {
	c := open(t, 32, 32)
	l := Layer{Source: solid(4, 4, white), X: 10, Y: 10, Width: 4, Height: 4, Opacity: 1}
	l.Extrusion = &Extrusion{Depth: 3}
	img := render(t, c, l)

	assertColor(t, white, img.RGBAAt(11, 11), "front instance")
	assertColor(t, color.RGBA{153, 153, 153, 255}, img.RGBAAt(16, 16), "deepest instance is dimmed")
	assert.Zero(t, img.RGBAAt(10, 10).A)

	l.Extrusion.Color = red
	img = render(t, c, l)
	assertColor(t, red, img.RGBAAt(16, 16), "inner instances take the extrusion color")
}

func TestRender_Rotation(t *testing.T) {
	c := open(t, 40, 40)
	l := Layer{Source: solid(20, 10, white), X: 10, Y: 15, Width: 20, Height: 10, Opacity: 1}

	img := render(t, c, l)
	assert.Zero(t, img.RGBAAt(20, 28).A)
	assertColor(t, white, img.RGBAAt(28, 20))

	l.Rotation = 90
	img = render(t, c, l)
	assertColor(t, white, img.RGBAAt(20, 28))
	assert.Zero(t, img.RGBAAt(28, 20).A)
}

func TestRender_Mix(t *testing.T) {
	c := open(t, 4, 4)
	l := full(solid(4, 4, red), 4, 4)
	l.Mix = solid(4, 4, blue)
	l.Progress = 0.5
	img := render(t, c, l)
	assertColor(t, color.RGBA{128, 0, 128, 255}, img.RGBAAt(1, 1))

	l.Progress = 1
	img = render(t, c, l)
	assertColor(t, blue, img.RGBAAt(1, 1))
}

func TestRender_Equirect(t *testing.T) {
	c := open(t, 16, 16)
	src := solid(64, 32, red)
	for y := 0; y < 32; y++ {
		for x := 32; x < 64; x++ {
			src.SetRGBA(x, y, blue)
		}
	}

	proj := scene.DefaultProjection()
	l := full(src, 16, 16)
	l.Projection = &proj
	img := render(t, c, l)
	assertColor(t, red, img.RGBAAt(8, 8), "looking ahead samples u=0.25")

	proj.Yaw = 180
	img = render(t, c, l)
	assertColor(t, blue, img.RGBAAt(8, 8), "turned around samples u=0.75")
}

func TestRender_WorkerCountDoesNotChangeOutput(t *testing.T) {
	l := Layer{Source: solid(13, 7, white), X: 3, Y: 5, Width: 23, Height: 11, Rotation: 33, Opacity: 0.7}

	one, err := Open(Config{Backend: BackendShader, Width: 40, Height: 30, Workers: 1}, logger.NewNoop())
	require.NoError(t, err)
	defer one.Close()
	many, err := Open(Config{Backend: BackendShader, Width: 40, Height: 30, Workers: 8}, logger.NewNoop())
	require.NoError(t, err)
	defer many.Close()

	a := render(t, one, l)
	b := render(t, many, l)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestResizeAndClose(t *testing.T) {
	c := open(t, 4, 4)
	require.NoError(t, c.Resize(10, 6))
	w, h := c.Size()
	assert.Equal(t, 10, w)
	assert.Equal(t, 6, h)
	img := render(t, c)
	assert.Equal(t, image.Rect(0, 0, 10, 6), img.Bounds())

	assert.ErrorIs(t, c.Resize(0, 6), ErrInvalidSize)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Render(nil), ErrClosed)
}

func TestFallback_DrawsInZOrder(t *testing.T) {
	canvas := mocks.NewCanvas(16, 16)
	r := &mocks.Renderer{CreateCanvasFunc: func(w, h int, bg color.Color) ports.Canvas { return canvas }}
	c := NewFallback(r, 16, 16, logger.NewNoop())

	key := scene.DefaultChromaKey()
	back := Layer{Source: solid(2, 2, red), X: 1, Y: 2, Width: 3, Height: 4, Rotation: 10, Opacity: 0.5, Z: 0, ChromaKey: &key}
	front := Layer{Source: solid(2, 2, blue), Width: 16, Height: 16, Opacity: 1, Z: 5}
	fade := Layer{Source: solid(2, 2, red), Mix: solid(2, 2, blue), Progress: 0.25, Width: 4, Height: 4, Opacity: 1, Z: 9}
	require.NoError(t, c.Render([]Layer{front, fade, back}))

	require.Len(t, canvas.Placements, 4)
	assert.Equal(t, ports.Placement{X: 1, Y: 2, Width: 3, Height: 4, Rotation: 10, Opacity: 0.5}, canvas.Placements[0])
	assert.Equal(t, 16.0, canvas.Placements[1].Width)
	assert.InDelta(t, 0.75, canvas.Placements[2].Opacity, 1e-9)
	assert.InDelta(t, 0.25, canvas.Placements[3].Opacity, 1e-9)
	assert.Equal(t, 1, canvas.Clears)

	caps := c.Capabilities()
	assert.Equal(t, BackendFallback, caps.Backend)
	assert.False(t, caps.ChromaKey)

	img, err := c.ReadPixels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
}
