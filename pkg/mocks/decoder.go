package mocks

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/user/frameflow/pkg/ports"
)

// VideoDecoder is a mock implementation of ports.VideoDecoder. By default it
// returns one frame per chunk, filled with the gray level of the chunk's last
// data byte, carrying the chunk's PTS.
type VideoDecoder struct {
	mu sync.Mutex

	ConfigureFunc func(cfg ports.DecoderConfig) error
	DecodeFunc    func(ctx context.Context, chunks []ports.EncodedChunk) ([]ports.VideoFrame, error)

	// Recorded calls for verification
	Configs     []ports.DecoderConfig
	DecodeCalls [][]ports.EncodedChunk
	ResetCalls  int
	Closed      bool
}

func (m *VideoDecoder) Configure(cfg ports.DecoderConfig) error {
	m.mu.Lock()
	m.Configs = append(m.Configs, cfg)
	m.mu.Unlock()
	if m.ConfigureFunc != nil {
		return m.ConfigureFunc(cfg)
	}
	return nil
}

func (m *VideoDecoder) Decode(ctx context.Context, chunks []ports.EncodedChunk) ([]ports.VideoFrame, error) {
	m.mu.Lock()
	m.DecodeCalls = append(m.DecodeCalls, append([]ports.EncodedChunk(nil), chunks...))
	m.mu.Unlock()
	if m.DecodeFunc != nil {
		return m.DecodeFunc(ctx, chunks)
	}

	frames := make([]ports.VideoFrame, 0, len(chunks))
	for _, c := range chunks {
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		var v uint8
		if len(c.Data) > 0 {
			v = c.Data[len(c.Data)-1]
		}
		for i := 0; i < 4; i++ {
			img.SetRGBA(i%2, i/2, color.RGBA{R: v, G: v, B: v, A: 255})
		}
		frames = append(frames, ports.VideoFrame{Image: img, PTS: c.PTS, Duration: c.Duration})
	}
	return frames, nil
}

func (m *VideoDecoder) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalls++
	return nil
}

func (m *VideoDecoder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *VideoDecoder) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// Calls returns a copy of the recorded Decode calls.
func (m *VideoDecoder) Calls() [][]ports.EncodedChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ports.EncodedChunk(nil), m.DecodeCalls...)
}

// Resets returns the number of Reset calls.
func (m *VideoDecoder) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ResetCalls
}

var _ ports.VideoDecoder = (*VideoDecoder)(nil)
