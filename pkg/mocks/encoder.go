package mocks

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/user/frameflow/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder. By default every
// Encode call immediately emits one chunk whose first data byte is the frame
// sequence number modulo 256.
type VideoEncoder struct {
	mu sync.Mutex

	ConfigureFunc  func(cfg ports.EncoderConfig) error
	EncodeFunc     func(img image.Image, pts time.Duration, key bool) error
	QueueDepthFunc func() int
	DrainFunc      func(ctx context.Context) error
	FlushFunc      func(ctx context.Context) error

	// Recorded calls for verification
	Config      ports.EncoderConfig
	EncodeCalls []EncodeCall
	DrainCalls  int
	FlushCalls  int
	Closed      bool

	out ports.ChunkWriter
}

// EncodeCall records a call to Encode.
type EncodeCall struct {
	PTS time.Duration
	Key bool
}

func (m *VideoEncoder) Configure(cfg ports.EncoderConfig, out ports.ChunkWriter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Config = cfg
	if m.ConfigureFunc != nil {
		if err := m.ConfigureFunc(cfg); err != nil {
			return err
		}
	}
	m.out = out
	return nil
}

func (m *VideoEncoder) Encode(img image.Image, pts time.Duration, key bool) error {
	m.mu.Lock()
	seq := len(m.EncodeCalls)
	m.EncodeCalls = append(m.EncodeCalls, EncodeCall{PTS: pts, Key: key})
	fn, out, fps := m.EncodeFunc, m.out, m.Config.FPS
	m.mu.Unlock()

	if fn != nil {
		return fn(img, pts, key)
	}
	if out == nil {
		return nil
	}
	var dur time.Duration
	if fps > 0 {
		dur = time.Duration(float64(time.Second) / fps)
	}
	return out(ports.EncodedChunk{Data: []byte{byte(seq)}, PTS: pts, Duration: dur, Key: key})
}

func (m *VideoEncoder) QueueDepth() int {
	if m.QueueDepthFunc != nil {
		return m.QueueDepthFunc()
	}
	return 0
}

func (m *VideoEncoder) Drain(ctx context.Context) error {
	m.mu.Lock()
	m.DrainCalls++
	m.mu.Unlock()
	if m.DrainFunc != nil {
		return m.DrainFunc(ctx)
	}
	return nil
}

func (m *VideoEncoder) Flush(ctx context.Context) error {
	m.mu.Lock()
	m.FlushCalls++
	m.mu.Unlock()
	if m.FlushFunc != nil {
		return m.FlushFunc(ctx)
	}
	return nil
}

func (m *VideoEncoder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Emit delivers a chunk through the configured writer.
func (m *VideoEncoder) Emit(chunk ports.EncodedChunk) error {
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()
	return out(chunk)
}

// Calls returns a copy of the recorded Encode calls.
func (m *VideoEncoder) Calls() []EncodeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EncodeCall(nil), m.EncodeCalls...)
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)

// Muxer is a mock implementation of ports.Muxer.
type Muxer struct {
	mu sync.Mutex

	WriteChunkFunc func(chunk ports.EncodedChunk) error
	FinalizeFunc   func() ([]byte, error)

	Chunks    []ports.EncodedChunk
	Finalized bool
}

func (m *Muxer) WriteChunk(chunk ports.EncodedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteChunkFunc != nil {
		if err := m.WriteChunkFunc(chunk); err != nil {
			return err
		}
	}
	m.Chunks = append(m.Chunks, chunk)
	return nil
}

func (m *Muxer) Finalize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finalized = true
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc()
	}
	out := make([]byte, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		out = append(out, c.Data...)
	}
	return out, nil
}

var _ ports.Muxer = (*Muxer)(nil)
