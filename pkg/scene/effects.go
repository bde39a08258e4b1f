package scene

import (
	"github.com/user/frameflow/pkg/keyframe"
	"gopkg.in/yaml.v3"
)

// Effects are optional attachments. A nil pointer disables the effect.
type Effects struct {
	ChromaKey    *ChromaKey    `yaml:"chroma_key,omitempty"`
	Extrusion    *Extrusion    `yaml:"extrusion,omitempty"`
	Segmentation *Segmentation `yaml:"segmentation,omitempty"`
	LUT          *LUTRef       `yaml:"lut,omitempty"`
	Projection   *Projection   `yaml:"projection,omitempty"`
}

// ChromaKey removes pixels close to a key color.
type ChromaKey struct {
	Color      [3]float64 `yaml:"color"` // RGB in 0..1
	Similarity float64    `yaml:"similarity"`
	Smoothness float64    `yaml:"smoothness"`
}

// DefaultChromaKey keys out pure green.
func DefaultChromaKey() ChromaKey {
	return ChromaKey{Color: [3]float64{0, 1, 0}, Similarity: 0.4, Smoothness: 0.1}
}

// UnmarshalYAML fills unset fields with defaults.
func (c *ChromaKey) UnmarshalYAML(value *yaml.Node) error {
	type plain ChromaKey
	v := plain(DefaultChromaKey())
	if err := value.Decode(&v); err != nil {
		return err
	}
	*c = ChromaKey(v)
	return nil
}

// Extrusion draws stacked copies behind the element for a pseudo-3D look.
type Extrusion struct {
	Depth int    `yaml:"depth"`
	Color string `yaml:"color,omitempty"` // empty tints with the source
}

// Segmentation masks the element with a one-shot foreground matte.
type Segmentation struct {
	Model string `yaml:"model"` // "luma" or "chroma"
}

// LUTRef grades the element through a .cube lookup table.
type LUTRef struct {
	Name   string `yaml:"name,omitempty"`
	Source string `yaml:"source"`
}

// Projection reprojects an equirectangular source onto a perspective view.
// Angles are in degrees.
type Projection struct {
	Yaw   float64 `yaml:"yaw"`
	Pitch float64 `yaml:"pitch"`
	FOV   float64 `yaml:"fov"`
}

// DefaultProjection looks straight ahead with a 90 degree field of view.
func DefaultProjection() Projection {
	return Projection{FOV: 90}
}

// UnmarshalYAML fills unset fields with defaults.
func (p *Projection) UnmarshalYAML(value *yaml.Node) error {
	type plain Projection
	v := plain(DefaultProjection())
	if err := value.Decode(&v); err != nil {
		return err
	}
	*p = Projection(v)
	return nil
}

// At applies animated yaw, pitch and fov values at time t.
func (p Projection) At(tracks keyframe.Tracks, t float64) Projection {
	return Projection{
		Yaw:   tracks.Value(PropYaw, t, p.Yaw),
		Pitch: tracks.Value(PropPitch, t, p.Pitch),
		FOV:   tracks.Value(PropFOV, t, p.FOV),
	}
}

// allowedEffects lists which attachments each kind may carry.
var allowedEffects = map[Kind]effectSet{
	KindCamera: {chroma: true, extrusion: true, segmentation: true, lut: true, projection: true},
	KindImage:  {chroma: true, extrusion: true, segmentation: true, lut: true, projection: true},
	KindVideo:  {chroma: true, extrusion: true, segmentation: true, lut: true, projection: true},
	KindText:   {extrusion: true, lut: true},
}

type effectSet struct {
	chroma, extrusion, segmentation, lut, projection bool
}

// disallowed returns the attached effects not present in allowed.
func (fx Effects) disallowed(allowed effectSet) []string {
	var out []string
	if fx.ChromaKey != nil && !allowed.chroma {
		out = append(out, "chroma_key")
	}
	if fx.Extrusion != nil && !allowed.extrusion {
		out = append(out, "extrusion")
	}
	if fx.Segmentation != nil && !allowed.segmentation {
		out = append(out, "segmentation")
	}
	if fx.LUT != nil && !allowed.lut {
		out = append(out, "lut")
	}
	if fx.Projection != nil && !allowed.projection {
		out = append(out, "projection")
	}
	return out
}

func (fx Effects) clone() Effects {
	out := Effects{}
	if fx.ChromaKey != nil {
		v := *fx.ChromaKey
		out.ChromaKey = &v
	}
	if fx.Extrusion != nil {
		v := *fx.Extrusion
		out.Extrusion = &v
	}
	if fx.Segmentation != nil {
		v := *fx.Segmentation
		out.Segmentation = &v
	}
	if fx.LUT != nil {
		v := *fx.LUT
		out.LUT = &v
	}
	if fx.Projection != nil {
		v := *fx.Projection
		out.Projection = &v
	}
	return out
}
