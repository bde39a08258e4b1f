package mocks

import (
	"image"
	"sync"

	"github.com/user/frameflow/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Frames       map[int]image.Image
	SampleTables map[string][]byte
	Tracks       map[string][]byte
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:      enabled,
		Frames:       make(map[int]image.Image),
		SampleTables: make(map[string][]byte),
		Tracks:       make(map[string][]byte),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveFrame(index int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames[index] = img
	return nil
}

func (m *DebugSink) SaveSampleTable(assetID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SampleTables[assetID] = data
	return nil
}

func (m *DebugSink) SaveTrack(jobID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tracks[jobID] = data
	return nil
}

// SampleTable returns a saved sample table (for test verification).
func (m *DebugSink) SampleTable(assetID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.SampleTables[assetID]
	return data, ok
}

var _ ports.DebugSink = (*DebugSink)(nil)

// NullSink is a no-op implementation of ports.DebugSink.
type NullSink struct{}

func (m *NullSink) Enabled() bool                                     { return false }
func (m *NullSink) SaveFrame(index int, img image.Image) error        { return nil }
func (m *NullSink) SaveSampleTable(assetID string, data []byte) error { return nil }
func (m *NullSink) SaveTrack(jobID string, data []byte) error         { return nil }

var _ ports.DebugSink = (*NullSink)(nil)
