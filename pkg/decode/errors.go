package decode

import (
	"errors"
	"fmt"
)

var (
	// ErrDecodeFailure is returned when a source cannot be parsed or decoded.
	ErrDecodeFailure = errors.New("decode: decode failure")
	// ErrSampleTableNotFound is returned when no sample table is found within the scan limits.
	ErrSampleTableNotFound = errors.New("decode: sample table not found")
	// ErrNoVideoTrack is returned when the container has no video track.
	ErrNoVideoTrack = errors.New("decode: no video track")
	// ErrNoFrame is returned when a request times out without a matching frame.
	ErrNoFrame = errors.New("decode: no frame")
	// ErrStale is returned for requests abandoned by a seek or invalidate.
	ErrStale = errors.New("decode: request is stale")
	// ErrClosed is returned after the source or manager is closed.
	ErrClosed = errors.New("decode: closed")
)

// SourceError records which asset failed.
type SourceError struct {
	AssetID string
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.AssetID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
