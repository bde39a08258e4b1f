package scheduler

import "errors"

var (
	// ErrResourceUnavailable means a texture or frame is not loaded yet. The
	// element is skipped for this frame.
	ErrResourceUnavailable = errors.New("scheduler: resource unavailable")
	// ErrClosed is returned after the engine or renderer is closed.
	ErrClosed = errors.New("scheduler: closed")
	// ErrNotStarted is returned for requests that need a running loop.
	ErrNotStarted = errors.New("scheduler: not started")
	// ErrUnknownTarget is returned when a tracking target does not exist.
	ErrUnknownTarget = errors.New("scheduler: unknown target")
)
