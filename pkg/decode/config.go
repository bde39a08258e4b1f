package decode

import "time"

// Config tunes the decode pipeline.
type Config struct {
	// InitialWindow is the number of bytes fetched to find the sample table.
	InitialWindow int64
	// Rescan follows box headers past the window and fetches moov/moof boxes
	// found there.
	Rescan bool
	// MaxScanBytes bounds the bytes fetched beyond the initial window.
	MaxScanBytes int64
	// MaxSequentialGap is the largest forward jump, in samples, decoded
	// without a reset.
	MaxSequentialGap int
	// Tolerance is how far a frame PTS may be from the requested time.
	Tolerance time.Duration
	// RequestTimeout bounds a request that needs a fetch.
	RequestTimeout time.Duration
	// WaitTimeout bounds a request waiting on a run already in flight.
	WaitTimeout time.Duration
	// RecentFrames is how many decoded frames are kept to answer repeats.
	RecentFrames int
}

// DefaultConfig returns the default decode configuration.
func DefaultConfig() Config {
	return Config{
		InitialWindow:    10 << 20,
		Rescan:           true,
		MaxScanBytes:     64 << 20,
		MaxSequentialGap: 10,
		Tolerance:        50 * time.Millisecond,
		RequestTimeout:   3 * time.Second,
		WaitTimeout:      1 * time.Second,
		RecentFrames:     16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialWindow <= 0 {
		c.InitialWindow = d.InitialWindow
	}
	if c.MaxScanBytes <= 0 {
		c.MaxScanBytes = d.MaxScanBytes
	}
	if c.MaxSequentialGap <= 0 {
		c.MaxSequentialGap = d.MaxSequentialGap
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.RecentFrames <= 0 {
		c.RecentFrames = d.RecentFrames
	}
	return c
}
