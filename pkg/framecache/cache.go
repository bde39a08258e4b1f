// Package framecache holds decoded frames per source and evicts idle ones.
package framecache

import (
	"image"
	"sort"
	"time"
)

// Defaults for idle eviction.
const (
	DefaultIdleTimeout   = 10 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Kind tags what produced an entry.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindCamera
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindCamera:
		return "camera"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

type entry struct {
	kind     Kind
	img      *image.RGBA
	timeMs   float64 // source time of a video frame
	lastUsed time.Time
	pinned   bool
}

// Cache maps a source key to its latest decoded frame.
// It is owned by one goroutine and is not safe for concurrent use.
type Cache struct {
	idle    time.Duration
	now     func() time.Time
	entries map[string]*entry
	pending map[string]time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithIdleTimeout sets how long an unused entry survives a sweep.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.idle = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		idle:    DefaultIdleTimeout,
		now:     time.Now,
		entries: make(map[string]*entry),
		pending: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached image for key and marks it used.
func (c *Cache) Get(key string) (*image.RGBA, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e.lastUsed = c.now()
	return e.img, true
}

// Frame returns the cached video frame for key. fresh is true when the
// frame time lies within tolerance of timeMs. A stale frame is still returned
// so callers can keep showing it while a newer one loads.
func (c *Cache) Frame(key string, timeMs, toleranceMs float64) (img *image.RGBA, fresh bool, ok bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	e.lastUsed = c.now()
	d := e.timeMs - timeMs
	if d < 0 {
		d = -d
	}
	return e.img, d <= toleranceMs, true
}

// Put stores img under key and clears any pending mark.
func (c *Cache) Put(key string, kind Kind, img *image.RGBA) {
	c.PutFrame(key, kind, img, 0)
}

// PutFrame stores a video frame decoded for timeMs.
func (c *Cache) PutFrame(key string, kind Kind, img *image.RGBA, timeMs float64) {
	delete(c.pending, key)
	c.entries[key] = &entry{
		kind:     kind,
		img:      img,
		timeMs:   timeMs,
		lastUsed: c.now(),
		pinned:   kind == KindCamera,
	}
}

// MarkPending records that a load for key is in flight. It returns false
// when a load is already pending.
func (c *Cache) MarkPending(key string) bool {
	if _, ok := c.pending[key]; ok {
		return false
	}
	c.pending[key] = c.now()
	return true
}

// IsPending reports whether a load for key is in flight.
func (c *Cache) IsPending(key string) bool {
	_, ok := c.pending[key]
	return ok
}

// ClearPending drops the pending mark for key, e.g. after a failed load.
func (c *Cache) ClearPending(key string) {
	delete(c.pending, key)
}

// Remove drops key.
func (c *Cache) Remove(key string) {
	delete(c.entries, key)
	delete(c.pending, key)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.entries = make(map[string]*entry)
	c.pending = make(map[string]time.Time)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Sweep evicts unpinned entries idle longer than the idle timeout and
// returns their keys in sorted order.
func (c *Cache) Sweep() []string {
	now := c.now()
	var evicted []string
	for key, e := range c.entries {
		if e.pinned {
			continue
		}
		if now.Sub(e.lastUsed) > c.idle {
			evicted = append(evicted, key)
			delete(c.entries, key)
		}
	}
	for key, started := range c.pending {
		if now.Sub(started) > c.idle {
			delete(c.pending, key)
		}
	}
	sort.Strings(evicted)
	return evicted
}
