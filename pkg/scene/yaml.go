package scene

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// elementYAML is the on-disk form of an Element. Exactly one payload field
// matching Kind is expected.
type elementYAML struct {
	ID        string         `yaml:"id"`
	Kind      Kind           `yaml:"kind"`
	Transform Transform      `yaml:"transform"`
	Camera    *CameraPayload `yaml:"camera,omitempty"`
	Image     *ImagePayload  `yaml:"image,omitempty"`
	Text      *TextPayload   `yaml:"text,omitempty"`
	Video     *VideoPayload  `yaml:"video,omitempty"`
	Effects   Effects        `yaml:"effects,omitempty"`
	Keyframes []Keyframe     `yaml:"keyframes,omitempty"`
}

// UnmarshalYAML decodes the kind tag and its payload.
func (e *Element) UnmarshalYAML(value *yaml.Node) error {
	raw := elementYAML{Transform: DefaultTransform()}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var payload Payload
	switch raw.Kind {
	case KindCamera:
		if raw.Camera != nil {
			payload = *raw.Camera
		}
	case KindImage:
		if raw.Image != nil {
			payload = *raw.Image
		}
	case KindText:
		p := TextPayload{FontSize: 30, Color: "#ffffff"}
		if raw.Text != nil {
			p = *raw.Text
			if p.FontSize == 0 {
				p.FontSize = 30
			}
			if p.Color == "" {
				p.Color = "#ffffff"
			}
		}
		payload = p
	case KindVideo:
		if raw.Video != nil {
			payload = *raw.Video
		}
	default:
		return fmt.Errorf("element %q: %w: %q", raw.ID, ErrUnknownKind, raw.Kind)
	}
	if payload == nil {
		return fmt.Errorf("element %q: %w: %s", raw.ID, ErrMissingPayload, raw.Kind)
	}

	*e = Element{
		ID:        raw.ID,
		Transform: raw.Transform,
		Payload:   payload,
		Effects:   raw.Effects,
		Keyframes: raw.Keyframes,
	}
	return nil
}

// MarshalYAML writes the kind tag next to its payload.
func (e Element) MarshalYAML() (interface{}, error) {
	raw := elementYAML{
		ID:        e.ID,
		Kind:      e.Kind(),
		Transform: e.Transform,
		Effects:   e.Effects,
		Keyframes: e.Keyframes,
	}
	switch p := e.Payload.(type) {
	case CameraPayload:
		raw.Camera = &p
	case ImagePayload:
		raw.Image = &p
	case TextPayload:
		raw.Text = &p
	case VideoPayload:
		raw.Video = &p
	default:
		return nil, fmt.Errorf("element %q: %w", e.ID, ErrMissingPayload)
	}
	return raw, nil
}

// UnmarshalYAML defaults Opacity to 1 when omitted.
func (c *Clip) UnmarshalYAML(value *yaml.Node) error {
	type plain Clip
	v := plain{Kind: ClipVideo, Transform: DefaultTransform()}
	if err := value.Decode(&v); err != nil {
		return err
	}
	*c = Clip(v)
	return nil
}

// UnmarshalYAML defaults Volume to 1 when omitted.
func (t *Track) UnmarshalYAML(value *yaml.Node) error {
	type plain Track
	v := plain{Kind: TrackVideo, Volume: 1}
	if err := value.Decode(&v); err != nil {
		return err
	}
	*t = Track(v)
	return nil
}
