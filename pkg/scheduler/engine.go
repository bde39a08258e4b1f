// Package scheduler drives rendering: a single loop goroutine owns the
// compositor, the frame cache and the decode manager, ticks at the target
// rate, resolves every visible element into a layer and submits the frame.
//
// Hosts talk to an Engine through command methods and the Events channel.
// Resource loads run in their own goroutines and post results back to the
// loop. Headless renders every frame synchronously for export and tracking.
package scheduler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/frameflow/pkg/audio"
	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/history"
	"github.com/user/frameflow/pkg/keyframe"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// ErrStarted is returned by a second Start.
var ErrStarted = errors.New("scheduler: already started")

// Engine is the live render scheduler.
type Engine struct {
	cfg    Config
	deps   Deps
	log    ports.Logger
	shared Shared

	cmds    chan func()
	loads   chan loadResult
	events  chan Event
	done    chan struct{}
	exited  chan struct{}
	started atomic.Bool
	once    sync.Once
	cancel  context.CancelFunc
	stop    <-chan struct{}
	jobs    sync.WaitGroup
	mixer   *audio.Graph

	// Owned by the loop goroutine once started.
	ctx           context.Context
	project       *scene.Project
	anim          map[string]keyframe.Tracks
	history       *history.Stack
	mode          Mode
	width         int
	height        int
	fps           float64
	period        time.Duration
	timeMs        float64
	playing       bool
	baseline      time.Time
	lastTimeEvent time.Time
	lastTimeMs    float64
	frame         uint64
	comp          compositor.Compositor
	manager       *decode.Manager
	live          *liveResolver
	await         *syncResolver
	ticker        Ticker
	clock         Clock
}

// New creates an engine holding the default project. Call Start to run it.
func New(deps Deps, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	p := scene.DefaultProject()
	e := &Engine{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log.WithComponent("scheduler"),
		cmds:    make(chan func(), 64),
		loads:   make(chan loadResult, cfg.MaxLoads),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		project: &p,
		anim:    animationIndex(&p),
		width:   cfg.Width,
		height:  cfg.Height,
		fps:     cfg.FPS,
		period:  interval(cfg.FPS),
		mixer:   audio.NewGraph(),
		clock:   deps.Clock,
	}
	e.mixer.Sync(&p.Timeline)
	e.history = history.New(history.WithNotify(e.historyChanged))
	return e
}

// Start creates the compositor and spawns the loop. The loop stops when
// ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	comp, err := e.deps.Compositor(e.width, e.height, e.deps.Log)
	if err != nil {
		e.started.Store(false)
		return err
	}
	e.comp = comp
	e.manager = e.deps.newManager(e.deps.Log)

	ctx, e.cancel = context.WithCancel(ctx)
	e.ctx = ctx
	e.stop = ctx.Done()
	load := loader{
		assets:    e.deps.Assets,
		renderer:  e.deps.Renderer,
		segmenter: e.deps.Segmenter,
		manager:   e.manager,
	}
	e.live = newLiveResolver(ctx, e.cfg, load, comp, e.loads, e.emit, e.log, e.clock.Now)
	e.await = newSyncResolver(load, comp, e.log)
	e.await.cameras = e.live.cameraFrame

	caps := comp.Capabilities()
	e.log.Info("Render loop started: %s backend, %dx%d @ %g fps", caps.Backend, e.width, e.height, e.fps)
	e.emit(GPUCapability{Capabilities: caps, Fallback: isFallback(comp)})

	go e.loop(ctx)
	return nil
}

// Events returns the event channel. It is closed by Close.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Shared returns the polled playhead block.
func (e *Engine) Shared() *Shared {
	return &e.shared
}

// Close stops the loop, waits for tracking jobs and releases resources.
func (e *Engine) Close() error {
	if e.started.Load() {
		e.cancel()
		<-e.exited
	}
	e.closeDone()
	e.jobs.Wait()
	e.once.Do(func() { close(e.events) })
	return nil
}

func (e *Engine) closeDone() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.exited)
	defer e.shutdown()

	e.ticker = e.clock.NewTicker(pollPeriod(e.period))
	defer e.ticker.Stop()
	sweep := e.clock.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	e.baseline = e.clock.Now()
	e.publish(true)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
		case res := <-e.loads:
			e.live.apply(res)
		case <-e.ticker.C():
			e.tick(ctx, e.clock.Now())
		case <-sweep.C():
			if evicted := e.live.sweep(); len(evicted) > 0 {
				e.log.Debug("Evicted %d idle sources", len(evicted))
			}
		}
	}
}

func (e *Engine) shutdown() {
	e.closeDone()
	e.live.wait()
	if err := e.manager.Close(); err != nil {
		e.log.Warn("Closing decoders: %v", err)
	}
	if err := e.comp.Close(); err != nil {
		e.log.Warn("Closing compositor: %v", err)
	}
	e.log.Info("Render loop stopped after %d frames", e.frame)
}

// pollPeriod is how often the loop checks whether a tick is due.
func pollPeriod(period time.Duration) time.Duration {
	return max(time.Millisecond, period/4)
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	delta, next, due := step(e.baseline, now, e.period)
	if !due {
		return
	}
	e.baseline = next
	if e.playing && e.mode == ModeTimeline {
		e.timeMs += durationMs(delta)
		if end := e.project.Timeline.Duration(); end > 0 && e.timeMs >= end {
			e.timeMs = end
			e.playing = false
			e.publish(true)
		}
	}
	e.publish(false)
	e.render(ctx)
}

func (e *Engine) view() view {
	return view{
		mode:      e.mode,
		project:   e.project,
		anim:      e.anim,
		width:     e.width,
		height:    e.height,
		timeMs:    e.timeMs,
		letterbox: true,
		padding:   e.cfg.Padding,
		void:      scene.ColorOr(e.cfg.Void, color.Black),
	}
}

func (e *Engine) render(ctx context.Context) {
	layers, err := buildLayers(ctx, e.view(), e.live)
	if err != nil {
		e.log.Warn("Frame skipped: %v", err)
		return
	}
	if err := e.comp.Render(layers); err != nil {
		e.log.Warn("Frame skipped: %v", err)
		return
	}
	e.frame++
	ev := FrameRendered{Frame: e.frame, TimeMs: e.timeMs, Layers: len(layers)}
	if e.cfg.ReadBack {
		img, err := e.comp.ReadPixels(ctx)
		if err != nil {
			e.log.Warn("Read back failed: %v", err)
		}
		ev.Image = img
	}
	e.emit(ev)
}

// publish stores the playhead and sends TimeChanged when forced, or when
// the time moved and TimeEventInterval has passed since the last event.
func (e *Engine) publish(force bool) {
	e.shared.store(e.timeMs, e.playing)
	now := e.clock.Now()
	if !force && (e.timeMs == e.lastTimeMs || now.Sub(e.lastTimeEvent) < e.cfg.TimeEventInterval) {
		return
	}
	e.lastTimeEvent = now
	e.lastTimeMs = e.timeMs
	e.emit(TimeChanged{TimeMs: e.timeMs, Playing: e.playing})
}

// emit sends ev to the host. High-rate events are dropped when the host
// falls behind; the others wait.
func (e *Engine) emit(ev Event) {
	switch ev.(type) {
	case TimeChanged, FrameRendered, TrackProgress:
		select {
		case e.events <- ev:
		default:
		}
		return
	}
	select {
	case e.events <- ev:
	case <-e.stop:
	}
}

// send queues fn for the loop goroutine.
func (e *Engine) send(fn func()) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.cmds <- fn:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

// call runs fn on the loop goroutine and waits for its result.
func (e *Engine) call(fn func() error) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	reply := make(chan error, 1)
	if err := e.send(func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrClosed
	}
}

// Play starts timeline playback, rewinding when at the end.
func (e *Engine) Play() error {
	return e.send(func() {
		if e.mode != ModeTimeline {
			return
		}
		if end := e.project.Timeline.Duration(); end > 0 && e.timeMs >= end {
			e.timeMs = 0
		}
		e.playing = true
		e.baseline = e.clock.Now()
		e.publish(true)
	})
}

// Pause stops playback.
func (e *Engine) Pause() error {
	return e.send(func() {
		e.playing = false
		e.manager.Invalidate()
		e.publish(true)
	})
}

// Seek moves the playhead to ms and pauses. Pending decode requests are
// abandoned and the next request for each source takes the random-access
// path.
func (e *Engine) Seek(ms float64) error {
	return e.send(func() { e.seek(ms) })
}

func (e *Engine) seek(ms float64) {
	e.timeMs = max(0, ms)
	e.playing = false
	e.manager.Invalidate()
	e.publish(true)
}

// SetFPS sets the target rate, clamped to [MinFPS, MaxFPS].
func (e *Engine) SetFPS(fps float64) error {
	return e.send(func() {
		e.fps = ClampFPS(fps)
		e.period = interval(e.fps)
		if e.ticker != nil {
			e.ticker.Reset(pollPeriod(e.period))
		}
	})
}

// SetMode switches between composition and timeline rendering.
func (e *Engine) SetMode(m Mode) error {
	return e.send(func() {
		if e.mode == m {
			return
		}
		e.mode = m
		e.seek(e.timeMs)
	})
}

// SetProject replaces the project with a copy of p. Undo history is cleared.
func (e *Engine) SetProject(p *scene.Project) error {
	c := p.Clone()
	return e.send(func() {
		e.project = c
		e.projectChanged()
	})
}

// SetScene replaces the scene with a copy of s.
func (e *Engine) SetScene(s *scene.Scene) error {
	c := s.Clone()
	return e.send(func() {
		e.project.Scene = *c
		e.projectChanged()
	})
}

// SetTimeline replaces the timeline with a copy of tl.
func (e *Engine) SetTimeline(tl *scene.Timeline) error {
	c := tl.Clone()
	return e.send(func() {
		e.project.Timeline = *c
		e.projectChanged()
	})
}

func (e *Engine) projectChanged() {
	e.anim = animationIndex(e.project)
	e.mixer.Sync(&e.project.Timeline)
	if e.live != nil {
		e.live.forget()
	}
	e.history.Clear()
}

// Project returns a copy of the current project.
func (e *Engine) Project() (*scene.Project, error) {
	var out *scene.Project
	err := e.call(func() error {
		out = e.project.Clone()
		return nil
	})
	return out, err
}

// Resize changes the output size.
func (e *Engine) Resize(width, height int) error {
	return e.call(func() error {
		if err := e.comp.Resize(width, height); err != nil {
			return err
		}
		e.width, e.height = width, height
		return nil
	})
}

// PushCameraFrame replaces the latest frame of a camera element. img must
// not be modified afterwards.
func (e *Engine) PushCameraFrame(elementID string, img *image.RGBA) error {
	return e.send(func() { e.live.pushCamera(elementID, img) })
}

// RefreshMask re-runs segmentation for an element on its next frame.
func (e *Engine) RefreshMask(elementID string) error {
	return e.send(func() { e.live.refreshMask(elementID) })
}

// Mixer returns the audio graph mirroring the timeline's audio tracks. The
// graph is safe for concurrent use.
func (e *Engine) Mixer() *audio.Graph {
	return e.mixer
}

// Undo reverts the last edit.
func (e *Engine) Undo() error {
	return e.call(e.history.Undo)
}

// Redo re-applies the last undone edit.
func (e *Engine) Redo() error {
	return e.call(e.history.Redo)
}

func (e *Engine) historyChanged(c history.Change) {
	e.anim = animationIndex(e.project)
	e.mixer.Sync(&e.project.Timeline)
	e.emit(HistoryChanged{
		Op:          c.Op,
		CommandID:   c.Entry.ID,
		Description: c.Entry.Description,
		CanUndo:     e.history.CanUndo(),
		CanRedo:     e.history.CanRedo(),
	})
}

// RenderFrame pauses playback and renders tMs with every resource awaited,
// in the current mode and at the current size.
func (e *Engine) RenderFrame(ctx context.Context, tMs float64) (*image.RGBA, error) {
	var out *image.RGBA
	err := e.call(func() error {
		e.playing = false
		v := e.view()
		v.timeMs = tMs
		layers, err := buildLayers(ctx, v, e.await)
		if err != nil {
			return err
		}
		if err := e.comp.Render(layers); err != nil {
			return err
		}
		out, err = e.comp.ReadPixels(ctx)
		return err
	})
	return out, err
}
