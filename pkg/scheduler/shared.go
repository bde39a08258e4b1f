package scheduler

import (
	"math"
	"sync/atomic"
)

// Shared exposes the playhead to hosts that poll it. The same values are
// delivered by TimeChanged events.
type Shared struct {
	timeBits atomic.Uint64
	playing  atomic.Bool
}

// Time returns the current time in milliseconds.
func (s *Shared) Time() float64 {
	return math.Float64frombits(s.timeBits.Load())
}

// Playing reports whether the timeline is playing.
func (s *Shared) Playing() bool {
	return s.playing.Load()
}

func (s *Shared) store(timeMs float64, playing bool) {
	s.timeBits.Store(math.Float64bits(timeMs))
	s.playing.Store(playing)
}
