package scene

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Project bundles a scene and a timeline with output settings.
type Project struct {
	Scene    Scene    `yaml:"scene"`
	Timeline Timeline `yaml:"timeline"`
	FPS      float64  `yaml:"fps"`
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
}

// DefaultProject returns an empty 1920x1080 project at 30 fps.
func DefaultProject() Project {
	return Project{
		Scene:  DefaultScene(),
		FPS:    30,
		Width:  1920,
		Height: 1080,
	}
}

// Parse decodes and validates a YAML project.
func Parse(data []byte) (*Project, error) {
	p := DefaultProject()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	out := *p
	out.Scene = *p.Scene.Clone()
	out.Timeline = *p.Timeline.Clone()
	return &out
}

// Marshal encodes the project as YAML.
func (p *Project) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Validate checks ids, kind/effect combinations and keyframes.
func (p *Project) Validate() error {
	if p.FPS <= 0 || p.FPS > 240 {
		return fmt.Errorf("%w: fps %v out of range", ErrInvalidProject, p.FPS)
	}
	if p.Width <= 0 || p.Height <= 0 || p.Scene.Width <= 0 || p.Scene.Height <= 0 {
		return fmt.Errorf("%w: non-positive size", ErrInvalidProject)
	}
	switch p.Scene.Layout {
	case LayoutFixed, LayoutInfinite:
	case "":
		p.Scene.Layout = LayoutFixed
	default:
		return fmt.Errorf("%w: layout %q", ErrInvalidProject, p.Scene.Layout)
	}

	ids := make(map[string]bool)
	for _, e := range p.Scene.Elements {
		if err := e.Validate(); err != nil {
			return err
		}
		if ids[e.ID] {
			return fmt.Errorf("element %q: %w", e.ID, ErrDuplicateID)
		}
		ids[e.ID] = true
	}

	for _, tr := range p.Timeline.Tracks {
		if ids[tr.ID] {
			return fmt.Errorf("track %q: %w", tr.ID, ErrDuplicateID)
		}
		ids[tr.ID] = true
		for _, c := range tr.Clips {
			if ids[c.ID] {
				return fmt.Errorf("clip %q: %w", c.ID, ErrDuplicateID)
			}
			ids[c.ID] = true
			if c.Duration <= 0 || c.Start < 0 || c.Offset < 0 {
				return fmt.Errorf("%w: clip %q has invalid span", ErrInvalidProject, c.ID)
			}
			if err := validateKeyframes(c.ID, c.Keyframes); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks the payload and effect attachments of a single element.
func (e *Element) Validate() error {
	if e.Payload == nil {
		return fmt.Errorf("element %q: %w", e.ID, ErrMissingPayload)
	}
	allowed, ok := allowedEffects[e.Kind()]
	if !ok {
		return fmt.Errorf("element %q: %w: %q", e.ID, ErrUnknownKind, e.Kind())
	}
	if bad := e.Effects.disallowed(allowed); len(bad) > 0 {
		return fmt.Errorf("element %q: %w: %s cannot carry %v", e.ID, ErrEffectNotAllowed, e.Kind(), bad)
	}
	if e.Effects.Extrusion != nil && e.Effects.Extrusion.Depth < 0 {
		return fmt.Errorf("element %q: %w: negative extrusion depth", e.ID, ErrInvalidProject)
	}
	return validateKeyframes(e.ID, e.Keyframes)
}

func validateKeyframes(owner string, frames []Keyframe) error {
	for _, kf := range frames {
		if !IsAnimatable(kf.Property) {
			return fmt.Errorf("%q: %w: unknown property %q", owner, ErrInvalidKeyframe, kf.Property)
		}
		if math.IsNaN(kf.Time) || math.IsInf(kf.Time, 0) || kf.Time < 0 {
			return fmt.Errorf("%q: %w: time %v", owner, ErrInvalidKeyframe, kf.Time)
		}
		if math.IsNaN(kf.Value) || math.IsInf(kf.Value, 0) {
			return fmt.Errorf("%q: %w: value %v", owner, ErrInvalidKeyframe, kf.Value)
		}
	}
	return nil
}
