package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameflow/pkg/adapters/mp4mux"
	"github.com/user/frameflow/pkg/mocks"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// fakeClock moves only when advanced. Each Advance fires every ticker that
// came due at most once, as a lagging time.Ticker would.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &fakeTicker{clock: c, c: make(chan time.Time, 1), period: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, tk)
	return tk
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, tk := range c.tickers {
		if tk.stopped || c.now.Before(tk.next) {
			continue
		}
		for !c.now.Before(tk.next) {
			tk.next = tk.next.Add(tk.period)
		}
		select {
		case tk.c <- c.now:
		default:
		}
	}
}

type fakeTicker struct {
	clock   *fakeClock
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.period, t.next, t.stopped = d, t.clock.now.Add(d), false
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

func startClocked(t *testing.T, deps Deps, p *scene.Project, tune func(*Config)) (*Engine, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	deps.Clock = clk
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = p.Scene.Width+20, p.Scene.Height+20
	cfg.Padding = 10
	cfg.FPS = 25
	if tune != nil {
		tune(&cfg)
	}
	e := New(deps, cfg)
	require.NoError(t, e.SetProject(p))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Close() })
	// The loop owns its tickers once it answers a call.
	_, err := e.Project()
	require.NoError(t, err)
	return e, clk
}

// advanceUntil steps the clock until an event matches, giving the loop a
// moment of real time after each step.
func advanceUntil[T Event](t *testing.T, clk *fakeClock, e *Engine, step time.Duration, match func(T) bool) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		clk.Advance(step)
		settle := time.After(10 * time.Millisecond)
	drain:
		for {
			select {
			case ev := <-e.Events():
				if v, ok := ev.(T); ok && match(v) {
					return v
				}
			case <-settle:
				break drain
			}
		}
	}
	var zero T
	t.Fatalf("no matching %T", zero)
	return zero
}

func TestEngine_PlayFollowsClock(t *testing.T) {
	deps, _ := testDeps(nil)
	p := project(16, 16)
	p.Timeline.DurationMs = 1000
	e, clk := startClocked(t, deps, p, nil)

	require.NoError(t, e.SetMode(ModeTimeline))
	require.NoError(t, e.Play())
	waitFor(t, e.Events(), time.Second, func(tc TimeChanged) bool { return tc.Playing })

	// 25 fps: 120ms is three whole periods, so the baseline carries no drift.
	clk.Advance(120 * time.Millisecond)
	f := waitFor[FrameRendered](t, e.Events(), time.Second, nil)
	assert.Equal(t, uint64(1), f.Frame)
	assert.Equal(t, 120.0, f.TimeMs)

	// TimeChanged is throttled to one per 250ms of clock time.
	clk.Advance(200 * time.Millisecond)
	tc := waitFor[TimeChanged](t, e.Events(), time.Second, nil)
	assert.Equal(t, 320.0, tc.TimeMs)
	assert.True(t, tc.Playing)
	f = waitFor[FrameRendered](t, e.Events(), time.Second, nil)
	assert.Equal(t, uint64(2), f.Frame)
	assert.Equal(t, 320.0, f.TimeMs)
	assert.Equal(t, 320.0, e.Shared().Time())

	clk.Advance(800 * time.Millisecond)
	tc = waitFor(t, e.Events(), time.Second, func(tc TimeChanged) bool { return !tc.Playing })
	assert.Equal(t, 1000.0, tc.TimeMs)
	f = waitFor[FrameRendered](t, e.Events(), time.Second, nil)
	assert.Equal(t, 1000.0, f.TimeMs)

	// Paused at the end, further ticks still render the same instant.
	clk.Advance(40 * time.Millisecond)
	f = waitFor[FrameRendered](t, e.Events(), time.Second, nil)
	assert.Equal(t, uint64(4), f.Frame)
	assert.Equal(t, 1000.0, f.TimeMs)
	assert.False(t, e.Shared().Playing())
}

func TestEngine_IdleSweepEvictsAndReloadsVideo(t *testing.T) {
	clip := mp4mux.New(64, 64, 30)
	for i := 0; i < 10; i++ {
		require.NoError(t, clip.WriteChunk(ports.EncodedChunk{
			Data:     mocks.AccessUnit(i == 0, 200),
			PTS:      time.Duration(i) * time.Second / 30,
			Duration: time.Second / 30,
			Key:      i == 0,
		}))
	}
	data, err := clip.Finalize()
	require.NoError(t, err)

	deps, store := testDeps(nil)
	store.Put("clip", data)
	var mu sync.Mutex
	var decoders []*mocks.VideoDecoder
	deps.Decoders = func() ports.VideoDecoder {
		mu.Lock()
		defer mu.Unlock()
		d := &mocks.VideoDecoder{}
		decoders = append(decoders, d)
		return d
	}
	created := func() []*mocks.VideoDecoder {
		mu.Lock()
		defer mu.Unlock()
		return append([]*mocks.VideoDecoder(nil), decoders...)
	}

	video := &scene.Element{
		ID:        "v",
		Transform: scene.Transform{Width: 16, Height: 16, Opacity: 1},
		Payload:   scene.VideoPayload{AssetID: "clip"},
	}
	p := project(16, 16, video)
	e, clk := startClocked(t, deps, p, func(c *Config) {
		c.SweepInterval = time.Second
		c.IdleTimeout = 2 * time.Second
	})
	period := 40 * time.Millisecond

	advanceUntil(t, clk, e, period, func(f FrameRendered) bool { return f.Layers == 3 })
	assert.Equal(t, []string{"clip"}, e.manager.Sources())

	// Without the element nothing touches the cached frame.
	empty := p.Scene
	empty.Elements = nil
	require.NoError(t, e.SetScene(&empty))
	_, err = e.Project()
	require.NoError(t, err)
	clk.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		d := created()
		return len(e.manager.Sources()) == 0 && len(d) == 1 && d[0].IsClosed()
	}, 2*time.Second, 5*time.Millisecond, "idle source evicted")

	// Referencing the asset again reopens a source and decodes anew.
	require.NoError(t, e.SetScene(&p.Scene))
	advanceUntil(t, clk, e, period, func(f FrameRendered) bool { return f.Layers == 3 })
	assert.Equal(t, []string{"clip"}, e.manager.Sources())
	assert.Len(t, created(), 2)
	assert.NotEmpty(t, created()[1].Calls())
}
