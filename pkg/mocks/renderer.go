package mocks

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/user/frameflow/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	CreateCanvasFunc func(width, height int, bg color.Color) ports.Canvas
	DecodeImageFunc  func(data []byte) (image.Image, error)
	EncodeImageFunc  func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc  func(img image.Image, width, height int) image.Image
	RenderTextFunc   func(text string, style ports.TextStyle) (image.Image, error)
}

func (m *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	if m.CreateCanvasFunc != nil {
		return m.CreateCanvasFunc(width, height, bg)
	}
	return NewCanvas(width, height)
}

func (m *Renderer) DecodeImage(data []byte) (image.Image, error) {
	if m.DecodeImageFunc != nil {
		return m.DecodeImageFunc(data)
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (m *Renderer) RenderText(text string, style ports.TextStyle) (image.Image, error) {
	if m.RenderTextFunc != nil {
		return m.RenderTextFunc(text, style)
	}
	w := int(style.FontSize) * len(text) / 2
	if w < 1 {
		w = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, int(style.FontSize)+1))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

var _ ports.Renderer = (*Renderer)(nil)

// Canvas is a mock implementation of ports.Canvas that records placements.
type Canvas struct {
	mu     sync.Mutex
	width  int
	height int
	img    *image.RGBA

	Placements []ports.Placement
	Texts      []string
	Clears     int
}

// NewCanvas creates a mock canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{width: width, height: height, img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (m *Canvas) Clear(c color.Color) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Clears++
	m.Placements = nil
}

func (m *Canvas) DrawImage(img image.Image, x, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := img.Bounds()
	m.Placements = append(m.Placements, ports.Placement{
		X: float64(x), Y: float64(y), Width: float64(b.Dx()), Height: float64(b.Dy()), Opacity: 1,
	})
}

func (m *Canvas) DrawImageTransformed(img image.Image, p ports.Placement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Placements = append(m.Placements, p)
}

func (m *Canvas) DrawRect(x, y, w, h int, c color.Color) {}

func (m *Canvas) DrawText(text string, x, y int, style ports.TextStyle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts = append(m.Texts, text)
}

func (m *Canvas) MeasureText(text string, style ports.TextStyle) (width, height float64) {
	return float64(len(text)) * style.FontSize / 2, style.FontSize
}

func (m *Canvas) ToImage() image.Image {
	return m.img
}

var _ ports.Canvas = (*Canvas)(nil)
