package ports

import (
	"image"
	"image/color"
)

// Renderer abstracts 2D image operations.
type Renderer interface {
	// CreateCanvas creates a new drawing canvas with the specified dimensions and background color.
	CreateCanvas(width, height int, bg color.Color) Canvas

	// DecodeImage decodes PNG or JPEG data into an image.Image.
	DecodeImage(data []byte) (image.Image, error)

	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image

	// RenderText rasterizes text into a tightly cropped transparent image.
	RenderText(text string, style TextStyle) (image.Image, error)
}

// Placement positions an image on a canvas. X and Y are the top-left corner of
// the unrotated box; rotation is in degrees about the box center.
type Placement struct {
	X, Y          float64
	Width, Height float64
	Rotation      float64
	Opacity       float64
}

// Canvas provides drawing operations for compositing images.
type Canvas interface {
	// Clear fills the whole canvas with c.
	Clear(c color.Color)

	// DrawImage draws an image at the specified position.
	DrawImage(img image.Image, x, y int)

	// DrawImageTransformed draws img scaled into the placement box, rotated
	// about its center and blended with the placement opacity.
	DrawImageTransformed(img image.Image, p Placement)

	// DrawRect draws a filled rectangle.
	DrawRect(x, y, w, h int, c color.Color)

	// DrawText draws text with its top-left corner at the specified position.
	DrawText(text string, x, y int, style TextStyle)

	// MeasureText returns the width and height of the text.
	MeasureText(text string, style TextStyle) (width, height float64)

	// ToImage returns the canvas as an image.Image.
	ToImage() image.Image
}

// TextStyle defines text rendering properties.
type TextStyle struct {
	FontSize float64
	FontPath string
	Color    color.Color
	Align    TextAlign
}

// TextAlign specifies text alignment.
type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// ParseTextAlign maps "left", "center" and "right" to a TextAlign.
func ParseTextAlign(s string) TextAlign {
	switch s {
	case "center":
		return AlignCenter
	case "right":
		return AlignRight
	default:
		return AlignLeft
	}
}

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
)
