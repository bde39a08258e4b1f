package h264encoder

import "errors"

var (
	// ErrNotConfigured is returned when Encode is called before Configure.
	ErrNotConfigured = errors.New("h264encoder: encoder not configured")

	// ErrUnsupportedConfig is returned for configurations ffmpeg cannot encode.
	ErrUnsupportedConfig = errors.New("h264encoder: unsupported configuration")

	// ErrEncodingFailed is returned when the ffmpeg process fails.
	ErrEncodingFailed = errors.New("h264encoder: encoding failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("h264encoder: encoder closed")
)
