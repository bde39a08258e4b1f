package mocks

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/user/frameflow/pkg/ports"
)

// AssetStore is an in-memory mock implementation of ports.AssetStore.
type AssetStore struct {
	mu     sync.Mutex
	assets map[string][]byte

	ReadRangeFunc func(ctx context.Context, id string, off, n int64) ([]byte, error)

	// Recorded calls for verification
	RangeCalls []RangeCall
	OpenCalls  []string
}

// RangeCall records a call to ReadRange.
type RangeCall struct {
	ID     string
	Offset int64
	Length int64
}

// NewAssetStore creates an empty store.
func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string][]byte)}
}

// Put stores an asset.
func (m *AssetStore) Put(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[id] = data
}

func (m *AssetStore) get(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset not found: %s", id)
	}
	return data, nil
}

func (m *AssetStore) Stat(ctx context.Context, id string) (ports.AssetInfo, error) {
	data, err := m.get(id)
	if err != nil {
		return ports.AssetInfo{}, err
	}
	return ports.AssetInfo{ID: id, Size: int64(len(data))}, nil
}

func (m *AssetStore) ReadRange(ctx context.Context, id string, off, n int64) ([]byte, error) {
	m.mu.Lock()
	m.RangeCalls = append(m.RangeCalls, RangeCall{ID: id, Offset: off, Length: n})
	m.mu.Unlock()
	if m.ReadRangeFunc != nil {
		return m.ReadRangeFunc(ctx, id, off, n)
	}

	data, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if off >= int64(len(data)) {
		return nil, io.EOF
	}
	end := off + n
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end], nil
}

func (m *AssetStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, id)
	m.mu.Unlock()
	data, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Ranges returns a copy of the recorded ReadRange calls.
func (m *AssetStore) Ranges() []RangeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RangeCall(nil), m.RangeCalls...)
}

var _ ports.AssetStore = (*AssetStore)(nil)

// Segmenter is a mock implementation of ports.Segmenter. By default it
// returns a fully opaque mask.
type Segmenter struct {
	mu sync.Mutex

	SegmentFunc func(ctx context.Context, img image.Image, model string) (*image.Gray, error)

	Calls []string
}

func (m *Segmenter) Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, model)
	m.mu.Unlock()
	if m.SegmentFunc != nil {
		return m.SegmentFunc(ctx, img, model)
	}
	mask := image.NewGray(img.Bounds())
	for i := range mask.Pix {
		mask.Pix[i] = 0xFF
	}
	return mask, nil
}

// CallCount returns the number of Segment calls.
func (m *Segmenter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ ports.Segmenter = (*Segmenter)(nil)
