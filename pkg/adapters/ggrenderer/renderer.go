// Package ggrenderer provides a renderer implementation using the gg library.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	_ "golang.org/x/image/webp"

	"github.com/user/frameflow/pkg/ports"
)

// defaultFaceHeight is the pixel height of the built-in face.
const defaultFaceHeight = 13

// lineSpacing is the line height relative to the font height.
const lineSpacing = 1.25

// Renderer implements ports.Renderer using the gg library.
type Renderer struct {
	mu    sync.Mutex
	faces map[faceKey]font.Face
}

type faceKey struct {
	path string
	size float64
}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{faces: make(map[faceKey]font.Face)}
}

// CreateCanvas creates a new drawing canvas.
func (r *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	dc := gg.NewContext(width, height)
	dc.SetColor(bg)
	dc.Clear()
	return &Canvas{dc: dc, renderer: r}
}

// DecodeImage decodes PNG, JPEG, GIF, BMP or WebP data.
func (r *Renderer) DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeImage encodes an image to the specified format.
func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ResizeImage resizes an image to the specified dimensions.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// RenderText rasterizes text onto a transparent image sized to fit it. Each
// line of text is placed below the previous one.
func (r *Renderer) RenderText(text string, style ports.TextStyle) (image.Image, error) {
	face, scale, err := r.face(style)
	if err != nil {
		return nil, err
	}
	col := style.Color
	if col == nil {
		col = color.White
	}

	lines := strings.Split(text, "\n")
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)
	fh := measure.FontHeight()
	width := 0.0
	for _, line := range lines {
		w, _ := measure.MeasureString(line)
		width = math.Max(width, w)
	}
	lineHeight := fh * lineSpacing
	w := int(math.Ceil(width)) + 1
	h := int(math.Ceil(lineHeight * float64(len(lines))))

	dc := gg.NewContext(w, h)
	dc.SetFontFace(face)
	dc.SetColor(col)
	ax, x := anchor(style.Align, float64(w))
	for i, line := range lines {
		dc.DrawStringAnchored(line, x, float64(i)*lineHeight, ax, 1)
	}

	img := dc.Image()
	if scale != 1 {
		sw := int(math.Ceil(float64(w) * scale))
		sh := int(math.Ceil(float64(h) * scale))
		dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}
	return img, nil
}

// face returns the font face for a style and the scale to apply after
// drawing. Without a font path the built-in face is scaled to size.
func (r *Renderer) face(style ports.TextStyle) (font.Face, float64, error) {
	size := style.FontSize
	if size <= 0 {
		size = defaultFaceHeight
	}
	if style.FontPath == "" {
		return basicfont.Face7x13, size / defaultFaceHeight, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := faceKey{path: style.FontPath, size: size}
	if f, ok := r.faces[key]; ok {
		return f, 1, nil
	}
	f, err := gg.LoadFontFace(style.FontPath, size)
	if err != nil {
		return nil, 0, fmt.Errorf("load font %s: %w", style.FontPath, err)
	}
	r.faces[key] = f
	return f, 1, nil
}

func anchor(align ports.TextAlign, width float64) (ax, x float64) {
	switch align {
	case ports.AlignCenter:
		return 0.5, width / 2
	case ports.AlignRight:
		return 1, width
	default:
		return 0, 0
	}
}

// Ensure Renderer implements ports.Renderer
var _ ports.Renderer = (*Renderer)(nil)

// Canvas implements ports.Canvas using gg.Context.
type Canvas struct {
	dc       *gg.Context
	renderer *Renderer
}

// Clear fills the canvas with c, replacing existing pixels.
func (c *Canvas) Clear(col color.Color) {
	c.dc.SetColor(col)
	c.dc.Clear()
}

// DrawImage draws an image at the specified position.
func (c *Canvas) DrawImage(img image.Image, x, y int) {
	c.dc.DrawImage(img, x, y)
}

// DrawImageTransformed draws img scaled into the placement box, rotated
// about its center.
func (c *Canvas) DrawImageTransformed(img image.Image, p ports.Placement) {
	bounds := img.Bounds()
	if bounds.Empty() || p.Width <= 0 || p.Height <= 0 || p.Opacity <= 0 {
		return
	}
	src := img
	if p.Opacity < 1 || bounds.Min != (image.Point{}) {
		src = withOpacity(img, p.Opacity)
	}

	c.dc.Push()
	defer c.dc.Pop()

	c.dc.Translate(p.X+p.Width/2, p.Y+p.Height/2)
	c.dc.Rotate(gg.Radians(p.Rotation))
	c.dc.Scale(p.Width/float64(bounds.Dx()), p.Height/float64(bounds.Dy()))
	c.dc.DrawImageAnchored(src, 0, 0, 0.5, 0.5)
}

// withOpacity returns a zero-origin copy of img with its alpha scaled.
func withOpacity(img image.Image, opacity float64) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if opacity > 1 {
		opacity = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), img, bounds.Min, mask, image.Point{}, draw.Src)
	return dst
}

// DrawRect draws a filled rectangle.
func (c *Canvas) DrawRect(x, y, w, h int, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	c.dc.Fill()
}

// DrawText draws text with its top-left corner at the specified position.
func (c *Canvas) DrawText(text string, x, y int, style ports.TextStyle) {
	img, err := c.renderer.RenderText(text, style)
	if err != nil {
		return
	}
	ax, _ := anchor(style.Align, 0)
	c.dc.DrawImage(img, x-int(ax*float64(img.Bounds().Dx())), y)
}

// MeasureText returns the width and height of the text.
func (c *Canvas) MeasureText(text string, style ports.TextStyle) (width, height float64) {
	face, scale, err := c.renderer.face(style)
	if err != nil {
		return 0, 0
	}
	dc := gg.NewContext(1, 1)
	dc.SetFontFace(face)
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		w, _ := dc.MeasureString(line)
		width = math.Max(width, w)
	}
	height = dc.FontHeight() * lineSpacing * float64(len(lines))
	return width * scale, height * scale
}

// ToImage returns the canvas as an image.Image.
func (c *Canvas) ToImage() image.Image {
	return c.dc.Image()
}

// Ensure Canvas implements ports.Canvas
var _ ports.Canvas = (*Canvas)(nil)
