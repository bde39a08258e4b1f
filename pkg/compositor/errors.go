package compositor

import "errors"

var (
	// ErrGPUUnavailable means no shader device could be opened.
	ErrGPUUnavailable = errors.New("compositor: gpu unavailable")
	// ErrInvalidSize is returned for non-positive or oversized targets.
	ErrInvalidSize = errors.New("compositor: invalid target size")
	// ErrInvalidLUT is returned when a lookup table cannot be uploaded.
	ErrInvalidLUT = errors.New("compositor: invalid lut")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("compositor: closed")
)
