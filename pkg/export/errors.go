package export

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoderConfigUnsupported is returned when the encoder rejects the
	// job configuration. Nothing has been rendered at that point.
	ErrEncoderConfigUnsupported = errors.New("export: encoder configuration unsupported")

	// ErrExportFrameFailure is wrapped by FrameError.
	ErrExportFrameFailure = errors.New("export: frame failed")

	// ErrInvalidJob is returned for jobs with a non-positive size or rate.
	ErrInvalidJob = errors.New("export: invalid job")
)

// FrameError reports the frame that aborted an export.
type FrameError struct {
	Index   int   // frame that failed after retries
	Encoded int   // frames handed to the encoder before the abort
	Err     error // last render error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("export: frame %d failed after %d encoded: %v", e.Index, e.Encoded, e.Err)
}

// Is matches ErrExportFrameFailure.
func (e *FrameError) Is(target error) bool {
	return target == ErrExportFrameFailure
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
