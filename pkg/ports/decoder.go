package ports

import (
	"context"
	"image"
	"time"
)

// EncodedChunk is one compressed access unit.
type EncodedChunk struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	Key      bool // sync sample; decoding can start here
}

// VideoFrame is a decoded picture with its presentation time.
type VideoFrame struct {
	Image    *image.RGBA
	PTS      time.Duration
	Duration time.Duration
}

// DecoderConfig describes an elementary stream.
type DecoderConfig struct {
	Codec  string // e.g. "avc1.42001f"
	Width  int
	Height int
	// Description holds codec setup data. For H.264 it is the Annex B
	// encoded SPS and PPS with start codes.
	Description []byte
}

// VideoDecoder abstracts a stateful video decoder.
type VideoDecoder interface {
	// Configure prepares the decoder for a stream. It must be called before Decode
	// and again after Reset.
	Configure(cfg DecoderConfig) error

	// Decode feeds chunks in decode order and returns every frame that became
	// available, in presentation order. A run starting with a Key chunk is
	// always decodable on its own.
	Decode(ctx context.Context, chunks []EncodedChunk) ([]VideoFrame, error)

	// Reset discards reference state. The next Decode must start at a key chunk.
	Reset() error

	// Close releases decoder resources.
	Close() error
}
