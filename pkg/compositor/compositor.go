// Package compositor blends layers into frames.
//
// Two devices run the same three pipelines: a quad pipeline (mask, chroma
// key, extrusion, LUT), a cross-dissolve mix pipeline and an equirectangular
// reprojection pipeline, all over a row-pitched RGBA target. The GPU device
// dispatches them as wgpu compute passes; the shader device fans rows out
// across goroutines. When neither is available, NewFallback draws layers with
// plain 2D blits.
package compositor

import (
	"context"
	"image"
	"image/color"

	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/scene"
)

// Backend names.
const (
	BackendAuto     = "auto"
	BackendGPU      = "gpu"
	BackendShader   = "shader"
	BackendNone     = "none"
	BackendFallback = "fallback"
)

// DefaultMaxTextureSize bounds each target dimension.
const DefaultMaxTextureSize = 8192

// Config configures the compositor.
type Config struct {
	Backend        string `yaml:"backend" toml:"backend"`
	Width          int    `yaml:"width" toml:"width"`
	Height         int    `yaml:"height" toml:"height"`
	Workers        int    `yaml:"workers" toml:"workers"` // shader device; 0 = one per CPU
	MaxTextureSize int    `yaml:"max_texture_size" toml:"max_texture_size"`
}

// DefaultConfig returns a 1920x1080 configuration on the auto backend.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		Width:          1920,
		Height:         1080,
		MaxTextureSize: DefaultMaxTextureSize,
	}
}

// Capabilities describes what a compositor can draw.
type Capabilities struct {
	Backend    string
	Device     string // adapter name on the GPU device
	Workers    int
	ChromaKey  bool
	LUT        bool
	Extrusion  bool
	Projection bool
	Mask       bool
	Mix        bool
}

// LUTHandle references an uploaded lookup table. The zero handle is the
// identity table.
type LUTHandle int

// Extrusion stacks Depth copies of a layer behind it, offset one pixel each.
type Extrusion struct {
	Depth int
	Color color.Color // nil dims the source instead
}

// Layer is one draw in a frame. X and Y are the top-left corner of the
// unrotated box in target pixels; Rotation is in degrees about the center.
type Layer struct {
	Source *image.RGBA

	// Mix cross-dissolves Source into Mix by Progress (0..1).
	Mix      *image.RGBA
	Progress float64

	X, Y, Width, Height float64
	Rotation            float64
	Opacity             float64
	Z                   int

	Mask       *image.Gray
	ChromaKey  *scene.ChromaKey
	Extrusion  *Extrusion
	LUT        LUTHandle
	Projection *scene.Projection
}

// Compositor renders layer lists into a target.
type Compositor interface {
	// Render clears the target to transparent and draws layers in
	// ascending Z order. Layers with equal Z keep their list order.
	Render(layers []Layer) error
	// ReadPixels copies the target into a tightly packed image.
	ReadPixels(ctx context.Context) (*image.RGBA, error)
	Resize(width, height int) error
	CreateLUT(t *lut.Table) (LUTHandle, error)
	Capabilities() Capabilities
	Size() (width, height int)
	Close() error
}
