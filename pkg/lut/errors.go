package lut

import "errors"

var (
	// ErrMissingHeader is returned when a .cube file has no LUT_3D_SIZE line.
	ErrMissingHeader = errors.New("lut: missing LUT_3D_SIZE header")
	// ErrShortData is returned when fewer than size³ triplets are present.
	ErrShortData = errors.New("lut: not enough table entries")
	// ErrInvalidSize is returned for a size outside 2..256.
	ErrInvalidSize = errors.New("lut: invalid table size")
	// ErrMalformed is returned for unknown keywords and bad data lines.
	ErrMalformed = errors.New("lut: malformed line")
)
