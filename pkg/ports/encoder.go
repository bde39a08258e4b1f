package ports

import (
	"context"
	"image"
	"time"
)

// EncoderConfig configures a video encoder.
type EncoderConfig struct {
	Codec   string // e.g. "avc1.42001f"
	Width   int
	Height  int
	FPS     float64
	Bitrate int // Target bitrate in bits per second
	Quality int // CRF value: 0-51 (lower is higher quality), 0 means bitrate mode
}

// ChunkWriter receives encoded chunks in decode order.
type ChunkWriter func(chunk EncodedChunk) error

// VideoEncoder abstracts a streaming video encoder.
type VideoEncoder interface {
	// Configure validates cfg and starts the encoder. Chunks produced later are
	// delivered to out. An unsupported configuration is rejected here, before
	// any frame is submitted.
	Configure(cfg EncoderConfig, out ChunkWriter) error

	// Encode submits one frame. key requests an IDR picture.
	Encode(img image.Image, pts time.Duration, key bool) error

	// QueueDepth returns the number of submitted frames not yet delivered.
	QueueDepth() int

	// Drain blocks until at most one submitted frame is undelivered. The
	// stream continues: the next frame does not start a new GOP.
	Drain(ctx context.Context) error

	// Flush blocks until every submitted frame has been delivered and ends
	// the running GOP.
	Flush(ctx context.Context) error

	// Close stops the encoder. Pending output is discarded.
	Close() error
}

// Muxer packs encoded chunks into a container.
type Muxer interface {
	// WriteChunk appends a chunk. Chunks must arrive in decode order.
	WriteChunk(chunk EncodedChunk) error

	// Finalize returns the complete container bytes.
	Finalize() ([]byte, error)
}
