// Package decode indexes H.264 MP4 assets and serves decoded frames by time.
//
// A Manager owns one Source per asset. Each Source parses its sample table
// from a bounded window of the asset, then answers frame requests through
// either a sequential run continuing from the last decoded sample or a
// random-access run starting at the preceding sync sample.
package decode

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/user/frameflow/pkg/ports"
)

// DecoderFactory creates a decoder for a new source.
type DecoderFactory func() ports.VideoDecoder

// Manager maps asset ids to decode sources. Sources are created on first
// reference and closed with the manager.
type Manager struct {
	cfg        Config
	store      ports.AssetStore
	newDecoder DecoderFactory
	log        ports.Logger
	sink       ports.DebugSink

	mu       sync.Mutex
	sources  map[string]*Source
	failures map[string]*SourceError
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithDebugSink saves parsed sample tables to sink.
func WithDebugSink(sink ports.DebugSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// NewManager creates a manager reading assets from store.
func NewManager(store ports.AssetStore, newDecoder DecoderFactory, cfg Config, log ports.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg.withDefaults(),
		store:      store,
		newDecoder: newDecoder,
		log:        log.WithComponent("decode"),
		sources:    make(map[string]*Source),
		failures:   make(map[string]*SourceError),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) source(id string) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sources[id]; ok {
		return s, nil
	}
	s := newSource(id, m.store, m.newDecoder(), m.cfg, m.log, m.sink, m.failures[id])
	m.sources[id] = s
	return s, nil
}

// Prepare parses the sample table of an asset.
func (m *Manager) Prepare(ctx context.Context, assetID string) (*SampleTable, error) {
	s, err := m.source(assetID)
	if err != nil {
		return nil, err
	}
	return s.Prepare(ctx)
}

// Frame returns the frame of assetID presented at t seconds.
func (m *Manager) Frame(ctx context.Context, assetID string, t float64) (ports.VideoFrame, error) {
	s, err := m.source(assetID)
	if err != nil {
		return ports.VideoFrame{}, err
	}
	return s.Frame(ctx, time.Duration(math.Round(t*float64(time.Second))))
}

// Seek abandons pending requests for one asset and forces random access.
func (m *Manager) Seek(assetID string) {
	m.mu.Lock()
	s, ok := m.sources[assetID]
	m.mu.Unlock()
	if ok {
		s.Invalidate()
	}
}

// Invalidate abandons pending requests of every source.
func (m *Manager) Invalidate() {
	for _, s := range m.snapshot() {
		s.Invalidate()
	}
}

// Evict closes the source of one asset. A later request recreates it; a
// source that failed to parse comes back with the same failure.
func (m *Manager) Evict(assetID string) {
	m.mu.Lock()
	s, ok := m.sources[assetID]
	delete(m.sources, assetID)
	if ok {
		if f := s.failed.Load(); f != nil {
			m.failures[assetID] = f
		}
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Sources returns the ids of open sources in sorted order.
func (m *Manager) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every source.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, s := range m.snapshot() {
		s.Close()
	}
	m.mu.Lock()
	m.sources = make(map[string]*Source)
	m.mu.Unlock()
	return nil
}

func (m *Manager) snapshot() []*Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}
