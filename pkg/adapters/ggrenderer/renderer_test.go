package ggrenderer

import (
	"image"
	"image/color"
	"testing"

	"github.com/user/frameflow/pkg/ports"
)

func TestRenderer_CreateCanvas(t *testing.T) {
	r := New()

	canvas := r.CreateCanvas(100, 100, color.White)
	if canvas == nil {
		t.Fatal("expected canvas to be created")
	}

	img := canvas.ToImage()
	bounds := img.Bounds()

	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Errorf("expected 100x100, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderer_EncodeDecode(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 50, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	for _, format := range []ports.ImageFormat{ports.FormatJPEG, ports.FormatPNG} {
		data, err := r.EncodeImage(img, format, 80)
		if err != nil {
			t.Fatalf("EncodeImage(%d) failed: %v", format, err)
		}
		decoded, err := r.DecodeImage(data)
		if err != nil {
			t.Fatalf("DecodeImage(%d) failed: %v", format, err)
		}
		if b := decoded.Bounds(); b.Dx() != 50 || b.Dy() != 40 {
			t.Errorf("format %d: expected 50x40, got %dx%d", format, b.Dx(), b.Dy())
		}
	}
}

func TestRenderer_DecodeImage_Invalid(t *testing.T) {
	r := New()
	if _, err := r.DecodeImage([]byte("not an image")); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestRenderer_ResizeImage(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	resized := r.ResizeImage(img, 50, 50)

	bounds := resized.Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 50 {
		t.Errorf("expected 50x50, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderer_RenderText(t *testing.T) {
	r := New()

	small, err := r.RenderText("Hello", ports.TextStyle{FontSize: 13, Color: color.White})
	if err != nil {
		t.Fatalf("RenderText failed: %v", err)
	}
	large, err := r.RenderText("Hello", ports.TextStyle{FontSize: 30, Color: color.White})
	if err != nil {
		t.Fatalf("RenderText failed: %v", err)
	}
	if large.Bounds().Dy() <= small.Bounds().Dy() {
		t.Errorf("expected larger font to be taller: %d <= %d", large.Bounds().Dy(), small.Bounds().Dy())
	}

	// Some pixel must be inked and the corner must stay transparent.
	inked := false
	b := small.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !inked; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := small.At(x, y).RGBA(); a > 0 {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Error("expected text pixels")
	}

	twoLines, err := r.RenderText("a\nb", ports.TextStyle{FontSize: 13})
	if err != nil {
		t.Fatalf("RenderText failed: %v", err)
	}
	if twoLines.Bounds().Dy() <= small.Bounds().Dy() {
		t.Error("expected two lines to be taller than one")
	}
}

func TestRenderer_RenderText_MissingFont(t *testing.T) {
	r := New()
	_, err := r.RenderText("x", ports.TextStyle{FontSize: 12, FontPath: "/nonexistent/font.ttf"})
	if err == nil {
		t.Error("expected error for missing font")
	}
}

func TestCanvas_DrawRect(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.White)

	canvas.DrawRect(10, 10, 30, 30, color.RGBA{R: 255, A: 255})

	img := canvas.ToImage()
	c := img.At(20, 20)
	red, green, _, _ := c.RGBA()
	if red == 0 || green != 0 {
		t.Error("expected red pixel inside rectangle")
	}
}

func TestCanvas_Clear(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(10, 10, color.White)

	canvas.Clear(color.Transparent)

	if _, _, _, a := canvas.ToImage().At(5, 5).RGBA(); a != 0 {
		t.Errorf("expected transparent pixel, got alpha %d", a)
	}
}

func TestCanvas_DrawImage(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.White)

	small := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			small.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	canvas.DrawImage(small, 10, 10)

	img := canvas.ToImage()
	c := img.At(15, 15)
	red, green, _, _ := c.RGBA()
	if red == 0 || green != 0 {
		t.Error("expected red pixel from drawn image")
	}
}

func TestCanvas_DrawImageTransformed(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.Transparent)

	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 255
	}

	// Scaled into a 40x20 box at (30, 40), half transparent.
	canvas.DrawImageTransformed(src, ports.Placement{X: 30, Y: 40, Width: 40, Height: 20, Opacity: 0.5})
	img := canvas.ToImage()

	if _, _, _, a := img.At(50, 50).RGBA(); a < 0x7000 || a > 0x9000 {
		t.Errorf("expected half alpha at box center, got %#x", a)
	}
	if _, _, _, a := img.At(25, 50).RGBA(); a != 0 {
		t.Errorf("expected nothing left of the box, got %#x", a)
	}

	// Rotated by 90 degrees the box becomes 20 wide and 40 tall.
	canvas.Clear(color.Transparent)
	canvas.DrawImageTransformed(src, ports.Placement{X: 30, Y: 40, Width: 40, Height: 20, Rotation: 90, Opacity: 1})
	img = canvas.ToImage()
	if _, _, _, a := img.At(50, 35).RGBA(); a == 0 {
		t.Error("expected rotated box to cover (50, 35)")
	}
	if _, _, _, a := img.At(35, 50).RGBA(); a != 0 {
		t.Error("expected rotated box to leave (35, 50) empty")
	}
}

func TestCanvas_DrawTextAndMeasure(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(200, 50, color.Transparent)

	style := ports.TextStyle{
		FontSize: 14,
		Color:    color.Black,
		Align:    ports.AlignLeft,
	}

	canvas.DrawText("Hello World", 10, 10, style)

	w, h := canvas.MeasureText("Hello World", style)
	if w <= 0 || h <= 0 {
		t.Errorf("expected positive text size, got %.1fx%.1f", w, h)
	}
	w2, _ := canvas.MeasureText("Hello World, again", style)
	if w2 <= w {
		t.Error("expected longer text to measure wider")
	}
}
