// Package scene defines the project data model: elements, effects, scenes and timelines.
package scene

import (
	"github.com/user/frameflow/pkg/keyframe"
)

// Keyframe is an animation control point.
type Keyframe = keyframe.Keyframe

// Animatable properties.
const (
	PropX        = "x"
	PropY        = "y"
	PropWidth    = "width"
	PropHeight   = "height"
	PropRotation = "rotation"
	PropOpacity  = "opacity"
	PropYaw      = "yaw"
	PropPitch    = "pitch"
	PropFOV      = "fov"
)

var animatable = map[string]bool{
	PropX: true, PropY: true, PropWidth: true, PropHeight: true,
	PropRotation: true, PropOpacity: true,
	PropYaw: true, PropPitch: true, PropFOV: true,
}

// IsAnimatable reports whether prop can carry keyframes.
func IsAnimatable(prop string) bool {
	return animatable[prop]
}

// Kind identifies the payload of an element.
type Kind string

const (
	KindCamera Kind = "camera"
	KindImage  Kind = "image"
	KindText   Kind = "text"
	KindVideo  Kind = "video"
)

// Transform places an element in scene pixels. X and Y are the top-left corner
// of the unrotated box. Rotation is in degrees about the box center.
type Transform struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	Rotation float64 `yaml:"rotation,omitempty"`
	Z        int     `yaml:"z,omitempty"`
	Opacity  float64 `yaml:"opacity"`
}

// DefaultTransform returns a fully opaque transform at the origin.
func DefaultTransform() Transform {
	return Transform{Opacity: 1}
}

// At applies animated values from tracks at time t (ms, owner relative).
func (tf Transform) At(tracks keyframe.Tracks, t float64) Transform {
	out := tf
	out.X = tracks.Value(PropX, t, tf.X)
	out.Y = tracks.Value(PropY, t, tf.Y)
	out.Width = tracks.Value(PropWidth, t, tf.Width)
	out.Height = tracks.Value(PropHeight, t, tf.Height)
	out.Rotation = tracks.Value(PropRotation, t, tf.Rotation)
	out.Opacity = clamp01(tracks.Value(PropOpacity, t, tf.Opacity))
	return out
}

// Payload is the kind-specific part of an element.
// It is implemented only by the payload types of this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// CameraPayload binds a live capture device.
type CameraPayload struct {
	DeviceID   string `yaml:"device_id"`
	SourceType string `yaml:"source_type,omitempty"` // "camera" or "screen"
}

// ImagePayload binds a still image asset.
type ImagePayload struct {
	Source string `yaml:"source"`
}

// TextPayload is a text overlay.
type TextPayload struct {
	Text     string  `yaml:"text"`
	FontSize float64 `yaml:"font_size"`
	FontPath string  `yaml:"font_path,omitempty"`
	Color    string  `yaml:"color"`
	Align    string  `yaml:"align,omitempty"`
}

// VideoPayload binds a video asset.
type VideoPayload struct {
	AssetID string `yaml:"asset_id"`
	Source  string `yaml:"source,omitempty"`
}

func (CameraPayload) Kind() Kind { return KindCamera }
func (ImagePayload) Kind() Kind  { return KindImage }
func (TextPayload) Kind() Kind   { return KindText }
func (VideoPayload) Kind() Kind  { return KindVideo }

func (CameraPayload) sealed() {}
func (ImagePayload) sealed()  {}
func (TextPayload) sealed()   {}
func (VideoPayload) sealed()  {}

// Element is one visual item of a scene.
type Element struct {
	ID        string
	Transform Transform
	Payload   Payload
	Effects   Effects
	Keyframes []Keyframe
}

// Kind returns the kind of the element payload, or "" when unset.
func (e *Element) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Animation groups the element keyframes by property.
func (e *Element) Animation() keyframe.Tracks {
	return keyframe.NewTracks(e.Keyframes)
}

// Layout selects how the scene maps onto the output surface.
type Layout string

const (
	// LayoutFixed letterboxes the scene frame inside the output.
	LayoutFixed Layout = "fixed"
	// LayoutInfinite renders an unbounded canvas shifted by the viewport offset.
	LayoutInfinite Layout = "infinite"
)

// Scene is a set of elements with a resolution and layout.
type Scene struct {
	ID         string     `yaml:"id"`
	Width      int        `yaml:"width"`
	Height     int        `yaml:"height"`
	Background string     `yaml:"background"`
	Layout     Layout     `yaml:"layout"`
	ViewportX  float64    `yaml:"viewport_x,omitempty"`
	ViewportY  float64    `yaml:"viewport_y,omitempty"`
	Elements   []*Element `yaml:"elements"`
}

// DefaultScene returns an empty 1920x1080 fixed scene.
func DefaultScene() Scene {
	return Scene{
		ID:         "main",
		Width:      1920,
		Height:     1080,
		Background: "#000000",
		Layout:     LayoutFixed,
	}
}

// Element returns the element with the given id.
func (s *Scene) Element(id string) (*Element, bool) {
	for _, e := range s.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the scene that shares no mutable state.
func (s *Scene) Clone() *Scene {
	out := *s
	out.Elements = make([]*Element, len(s.Elements))
	for i, e := range s.Elements {
		c := *e
		c.Keyframes = append([]Keyframe(nil), e.Keyframes...)
		c.Effects = e.Effects.clone()
		out.Elements[i] = &c
	}
	return &out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
