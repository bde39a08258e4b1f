package scheduler

import "time"

// Clock supplies time and tickers to the render loop.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// NewTicker wraps time.NewTicker.
func (SystemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time    { return s.t.C }
func (s systemTicker) Reset(d time.Duration) { s.t.Reset(d) }
func (s systemTicker) Stop()                 { s.t.Stop() }

// step gates a tick at now against baseline. When due, it returns the
// elapsed delta and the next baseline, corrected by delta mod period so
// that ticks do not drift.
func step(baseline, now time.Time, period time.Duration) (delta time.Duration, next time.Time, due bool) {
	delta = now.Sub(baseline)
	if delta < period {
		return 0, baseline, false
	}
	return delta, now.Add(-(delta % period)), true
}

// durationMs converts d to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
