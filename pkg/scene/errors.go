package scene

import "errors"

var (
	// ErrUnknownKind is returned for an element kind outside camera, image, text and video.
	ErrUnknownKind = errors.New("scene: unknown element kind")
	// ErrMissingPayload is returned when an element has no payload for its kind.
	ErrMissingPayload = errors.New("scene: missing element payload")
	// ErrEffectNotAllowed is returned when an effect is attached to a kind that cannot carry it.
	ErrEffectNotAllowed = errors.New("scene: effect not allowed for element kind")
	// ErrDuplicateID is returned when two elements, tracks or clips share an id.
	ErrDuplicateID = errors.New("scene: duplicate id")
	// ErrInvalidKeyframe is returned for keyframes on unknown properties or with invalid times.
	ErrInvalidKeyframe = errors.New("scene: invalid keyframe")
	// ErrInvalidProject is returned for out-of-range project settings.
	ErrInvalidProject = errors.New("scene: invalid project")
	// ErrInvalidColor is returned for a malformed hex color.
	ErrInvalidColor = errors.New("scene: invalid color")
)
