// Package export renders a project to an H.264 MP4, optionally with several
// isolated renderers working in parallel.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/user/frameflow/pkg/adapters/logger"
	"github.com/user/frameflow/pkg/pipeline"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/scheduler"
)

// Renderer produces the frame at a given time.
type Renderer interface {
	RenderFrame(ctx context.Context, tMs float64) (*image.RGBA, error)
	Close() error
}

// RendererFactory creates an isolated renderer over a static project copy.
type RendererFactory func(p *scene.Project, mode scheduler.Mode, width, height int) (Renderer, error)

// HeadlessFactory builds headless scheduler renderers.
func HeadlessFactory(deps scheduler.Deps) RendererFactory {
	return func(p *scene.Project, mode scheduler.Mode, width, height int) (Renderer, error) {
		return scheduler.NewHeadless(p, mode, width, height, deps)
	}
}

// Deps are the exporter collaborators.
type Deps struct {
	Renderers RendererFactory
	Encoders  func() ports.VideoEncoder
	Muxers    func(width, height int, fps float64) ports.Muxer
	Sink      ports.DebugSink // optional
	Log       ports.Logger
}

// Exporter runs export jobs.
type Exporter struct {
	cfg  Config
	deps Deps
	log  ports.Logger
}

// New creates an exporter.
func New(deps Deps, cfg Config) *Exporter {
	if deps.Log == nil {
		deps.Log = logger.NewNoop()
	}
	return &Exporter{
		cfg:  cfg.withDefaults(),
		deps: deps,
		log:  deps.Log.WithComponent("export"),
	}
}

// Workers returns the configured parallelism.
func (x *Exporter) Workers() int {
	return x.cfg.Workers
}

// Export renders job and returns the finished container. obs may be nil.
// On failure no output is returned.
func (x *Exporter) Export(ctx context.Context, job Job, obs Observer) (Result, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	res, err := x.export(ctx, job, obs)
	if err != nil {
		obs.Error(err)
		return Result{}, err
	}
	obs.Complete(res)
	return res, nil
}

func (x *Exporter) export(ctx context.Context, job Job, obs Observer) (Result, error) {
	started := time.Now()
	job, err := job.withDefaults()
	if err != nil {
		return Result{}, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	mux := x.deps.Muxers(job.Width, job.Height, job.FPS)
	enc := x.deps.Encoders()
	defer enc.Close()
	if err := enc.Configure(job.encoderConfig(), mux.WriteChunk); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEncoderConfigUnsupported, err)
	}

	total := job.TotalFrames()
	workers := min(x.cfg.Workers, total)
	snapshot := job.Project.Clone()
	log := x.log.WithField("job", job.ID)
	log.Info("Exporting %d frames at %dx%d %gfps with %d workers", total, job.Width, job.Height, job.FPS, workers)

	s := &session{x: x, job: job, enc: enc, total: total, obs: obs, log: log}
	if workers <= 1 {
		err = x.sequential(ctx, s, snapshot)
	} else {
		err = x.parallel(ctx, s, snapshot, workers)
	}
	if err != nil {
		return Result{}, err
	}

	if err := enc.Flush(ctx); err != nil {
		return Result{}, fmt.Errorf("flush encoder: %w", err)
	}
	data, err := mux.Finalize()
	if err != nil {
		return Result{}, fmt.Errorf("finalize container: %w", err)
	}
	elapsed := time.Since(started)
	log.Info("Exported %d frames in %s", total, elapsed.Round(time.Millisecond))
	return Result{
		JobID:   job.ID,
		Frames:  total,
		Data:    data,
		Workers: max(1, workers),
		Elapsed: elapsed,
	}, nil
}

// session is the encode side of one job. It is used by a single goroutine.
type session struct {
	x       *Exporter
	job     Job
	enc     ports.VideoEncoder
	total   int
	encoded int
	obs     Observer
	log     ports.Logger
}

func (s *session) encode(ctx context.Context, i int, img *image.RGBA) error {
	key := i%s.job.KeyframeInterval == 0
	if err := s.enc.Encode(img, s.job.pts(i), key); err != nil {
		return fmt.Errorf("encode frame %d: %w", i, err)
	}
	if s.enc.QueueDepth() > s.x.cfg.MaxQueueDepth {
		if err := s.enc.Drain(ctx); err != nil {
			return fmt.Errorf("drain encoder: %w", err)
		}
	}
	s.encoded++
	s.obs.Progress(s.encoded, s.total)

	if sink := s.x.deps.Sink; sink != nil && sink.Enabled() {
		if err := sink.SaveFrame(i, img); err != nil {
			s.log.Warn("Failed to save frame %d: %v", i, err)
		}
	}
	return nil
}

func (s *session) frameError(i int, err error) error {
	return &FrameError{Index: i, Encoded: s.encoded, Err: err}
}

// render wraps r with the configured retries.
func (s *session) render(r Renderer) pipeline.Stage[int, *image.RGBA] {
	stage := pipeline.StageFunc[int, *image.RGBA](func(ctx context.Context, i int) (*image.RGBA, error) {
		return r.RenderFrame(ctx, s.job.FrameTime(i))
	})
	return pipeline.Retry[int, *image.RGBA](stage, 1+s.x.cfg.Retries, func(attempt int, err error) {
		s.log.Warn("Frame render failed (attempt %d), retrying: %v", attempt, err)
	})
}

func (x *Exporter) sequential(ctx context.Context, s *session, p *scene.Project) error {
	r, err := x.deps.Renderers(p, s.job.Mode, s.job.Width, s.job.Height)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	defer r.Close()

	stage := s.render(r)
	for i := 0; i < s.total; i++ {
		img, err := stage.Execute(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.frameError(i, err)
		}
		if err := s.encode(ctx, i, img); err != nil {
			return err
		}
	}
	return nil
}

// rendered holds a frame with its original index for reordering.
type rendered struct {
	index int
	img   *image.RGBA
	err   error
}

func (x *Exporter) parallel(ctx context.Context, s *session, p *scene.Project, workers int) error {
	renderers := make([]Renderer, 0, workers)
	for w := 0; w < workers; w++ {
		r, err := x.deps.Renderers(p, s.job.Mode, s.job.Width, s.job.Height)
		if err != nil {
			for _, r := range renderers {
				r.Close()
			}
			return fmt.Errorf("create renderer %d: %w", w, err)
		}
		renderers = append(renderers, r)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// unbuffered: the lowest undispatched index goes to the next free worker
	jobs := make(chan int)
	results := make(chan rendered, workers)

	for _, r := range renderers {
		stage := s.render(r)
		g.Go(func() error {
			defer r.Close()
			for i := range jobs {
				img, err := stage.Execute(gctx, i)
				select {
				case results <- rendered{index: i, img: img, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	jobsOpen := true
	stop := func() {
		cancel()
		if jobsOpen {
			close(jobs)
			jobsOpen = false
		}
		g.Wait()
	}

	pending := make(map[int]*image.RGBA, 2*workers)
	next, cursor := 0, 0
	for cursor < s.total {
		var send chan<- int
		if next < s.total && next-cursor < 2*workers {
			send = jobs
		} else if next >= s.total && jobsOpen {
			close(jobs)
			jobsOpen = false
		}

		select {
		case send <- next:
			next++
		case r := <-results:
			if r.err != nil {
				cancelled := ctx.Err()
				stop()
				if cancelled != nil && errors.Is(r.err, context.Canceled) {
					return cancelled
				}
				return s.frameError(r.index, r.err)
			}
			pending[r.index] = r.img
			for {
				img, ok := pending[cursor]
				if !ok {
					break
				}
				delete(pending, cursor)
				if err := s.encode(ctx, cursor, img); err != nil {
					stop()
					return err
				}
				cursor++
			}
		case <-ctx.Done():
			stop()
			return ctx.Err()
		}
	}
	stop()
	return nil
}
