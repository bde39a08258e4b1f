package export

import (
	"context"
	"errors"
	"image"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameflow/pkg/mocks"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/scheduler"
)

// frames stamps the frame index into the first pixel and can fail or delay
// selected frames.
type frames struct {
	fps    float64
	jitter bool

	mu    sync.Mutex
	fails map[int]int // remaining failures per index

	created atomic.Int32
	closed  atomic.Int32
}

type stampRenderer struct{ f *frames }

func (r stampRenderer) RenderFrame(ctx context.Context, tMs float64) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := int(math.Round(tMs * r.f.fps / 1000))
	if r.f.jitter {
		time.Sleep(time.Duration(rand.Intn(3000)) * time.Microsecond)
	}
	r.f.mu.Lock()
	if r.f.fails[i] > 0 {
		r.f.fails[i]--
		r.f.mu.Unlock()
		return nil, errors.New("render glitch")
	}
	r.f.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[0] = byte(i)
	return img, nil
}

func (r stampRenderer) Close() error {
	r.f.closed.Add(1)
	return nil
}

func (f *frames) factory(p *scene.Project, mode scheduler.Mode, w, h int) (Renderer, error) {
	f.created.Add(1)
	return stampRenderer{f: f}, nil
}

type fixture struct {
	frames *frames
	enc    *mocks.VideoEncoder
	mux    *mocks.Muxer
	ex     *Exporter
}

func newFixture(workers int) *fixture {
	fx := &fixture{
		frames: &frames{fps: 30, fails: map[int]int{}},
		enc:    &mocks.VideoEncoder{},
		mux:    &mocks.Muxer{},
	}
	cfg := DefaultConfig()
	cfg.Workers = workers
	fx.ex = New(Deps{
		Renderers: fx.frames.factory,
		Encoders:  func() ports.VideoEncoder { return fx.enc },
		Muxers:    func(w, h int, fps float64) ports.Muxer { return fx.mux },
	}, cfg)
	return fx
}

func testJob(durationMs float64) Job {
	p := scene.DefaultProject()
	return Job{
		Project:    &p,
		Mode:       scheduler.ModeTimeline,
		Width:      64,
		Height:     36,
		FPS:        30,
		DurationMs: durationMs,
	}
}

func stamps(t *testing.T, enc *mocks.VideoEncoder) *[]int {
	t.Helper()
	var got []int
	enc.EncodeFunc = func(img image.Image, pts time.Duration, key bool) error {
		got = append(got, int(img.(*image.RGBA).Pix[0]))
		return nil
	}
	return &got
}

func TestJob_TotalFrames(t *testing.T) {
	tests := []struct {
		durationMs float64
		fps        float64
		want       int
	}{
		{1000, 30, 30},
		{1001, 30, 31},
		{2500, 24, 60},
		{100, 60, 6},
	}
	for _, tt := range tests {
		j := Job{DurationMs: tt.durationMs, FPS: tt.fps}
		assert.Equal(t, tt.want, j.TotalFrames(), "%gms at %gfps", tt.durationMs, tt.fps)
	}
}

func TestJob_Defaults(t *testing.T) {
	p := scene.DefaultProject()
	p.Timeline.DurationMs = 1500
	j, err := Job{Project: &p, Mode: scheduler.ModeTimeline}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 1920, j.Width)
	assert.Equal(t, 1080, j.Height)
	assert.Equal(t, 30.0, j.FPS)
	assert.Equal(t, 1500.0, j.DurationMs)
	assert.Equal(t, 60, j.KeyframeInterval)
	assert.Equal(t, DefaultBitrate, j.Bitrate)
	assert.Equal(t, DefaultCodec, j.Codec)

	_, err = Job{}.withDefaults()
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestAutoWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, AutoWorkers(), 2)
}

func TestExport_Sequential(t *testing.T) {
	fx := newFixture(1)
	var progress [][2]int
	obs := ObserverFuncs{OnProgress: func(done, total int) { progress = append(progress, [2]int{done, total}) }}

	res, err := fx.ex.Export(context.Background(), testJob(1000), obs)
	require.NoError(t, err)

	assert.Equal(t, 30, res.Frames)
	assert.Equal(t, 1, res.Workers)
	assert.NotEmpty(t, res.JobID)
	require.Len(t, res.Data, 30)
	for i, b := range res.Data {
		assert.Equal(t, byte(i), b)
	}

	calls := fx.enc.Calls()
	require.Len(t, calls, 30)
	for i, c := range calls {
		assert.Equal(t, time.Duration(math.Round(float64(i)*float64(time.Second)/30)), c.PTS)
		assert.Equal(t, i == 0, c.Key, "frame %d", i)
	}
	require.Len(t, progress, 30)
	assert.Equal(t, [2]int{30, 30}, progress[29])
	assert.True(t, fx.mux.Finalized)
	assert.True(t, fx.enc.Closed)
	assert.Equal(t, int32(1), fx.frames.closed.Load())
	assert.Equal(t, 64, fx.enc.Config.Width)
	assert.Equal(t, DefaultCodec, fx.enc.Config.Codec)
}

func TestExport_ParallelKeepsOrder(t *testing.T) {
	fx := newFixture(4)
	fx.frames.jitter = true
	got := stamps(t, fx.enc)

	res, err := fx.ex.Export(context.Background(), testJob(2000), nil)
	require.NoError(t, err)

	assert.Equal(t, 60, res.Frames)
	assert.Equal(t, 4, res.Workers)
	require.Len(t, *got, 60)
	for i, idx := range *got {
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, int32(4), fx.frames.created.Load())
	assert.Equal(t, int32(4), fx.frames.closed.Load())
}

func TestExport_WorkersCappedByFrames(t *testing.T) {
	fx := newFixture(8)
	res, err := fx.ex.Export(context.Background(), testJob(100), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, 3, res.Workers)
}

func TestExport_RetriesFrameOnce(t *testing.T) {
	for _, workers := range []int{1, 3} {
		fx := newFixture(workers)
		fx.frames.fails[5] = 1
		got := stamps(t, fx.enc)

		res, err := fx.ex.Export(context.Background(), testJob(1000), nil)
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, 30, res.Frames)
		assert.Len(t, *got, 30)
	}
}

func TestExport_FrameFailureAborts(t *testing.T) {
	for _, workers := range []int{1, 3} {
		fx := newFixture(workers)
		fx.frames.fails[5] = 2
		var observed error
		obs := ObserverFuncs{
			OnError:    func(err error) { observed = err },
			OnComplete: func(Result) { t.Error("unexpected completion") },
		}

		res, err := fx.ex.Export(context.Background(), testJob(1000), obs)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExportFrameFailure)
		assert.Equal(t, err, observed)

		var fe *FrameError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, 5, fe.Index)
		assert.LessOrEqual(t, fe.Encoded, 5)
		if workers == 1 {
			assert.Equal(t, 5, fe.Encoded)
		}
		assert.Nil(t, res.Data)
		assert.False(t, fx.mux.Finalized)
		assert.Equal(t, fx.frames.created.Load(), fx.frames.closed.Load())
	}
}

func TestExport_ConfigRejectedBeforeRender(t *testing.T) {
	fx := newFixture(2)
	fx.enc.ConfigureFunc = func(cfg ports.EncoderConfig) error { return errors.New("level too low") }

	_, err := fx.ex.Export(context.Background(), testJob(1000), nil)
	assert.ErrorIs(t, err, ErrEncoderConfigUnsupported)
	assert.Zero(t, fx.frames.created.Load())
	assert.Empty(t, fx.enc.Calls())
}

func TestExport_KeyframeInterval(t *testing.T) {
	fx := newFixture(1)
	job := testJob(1000)
	job.KeyframeInterval = 10

	_, err := fx.ex.Export(context.Background(), job, nil)
	require.NoError(t, err)

	var keys []int
	for i, c := range fx.enc.Calls() {
		if c.Key {
			keys = append(keys, i)
		}
	}
	assert.Equal(t, []int{0, 10, 20}, keys)
}

func TestExport_DrainsOnBackpressure(t *testing.T) {
	tests := []struct {
		depth      int
		wantDrains int
	}{
		{DefaultMaxQueueDepth, 0},
		{DefaultMaxQueueDepth + 1, 30},
	}
	for _, tt := range tests {
		fx := newFixture(1)
		fx.enc.QueueDepthFunc = func() int { return tt.depth }
		job := testJob(1000)
		job.KeyframeInterval = 10

		_, err := fx.ex.Export(context.Background(), job, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.wantDrains, fx.enc.DrainCalls, "depth %d", tt.depth)
		assert.Equal(t, 1, fx.enc.FlushCalls, "only the final flush ends a GOP")

		var keys []int
		for i, c := range fx.enc.Calls() {
			if c.Key {
				keys = append(keys, i)
			}
		}
		assert.Equal(t, []int{0, 10, 20}, keys, "depth %d", tt.depth)
	}
}

func TestExport_Cancelled(t *testing.T) {
	for _, workers := range []int{1, 4} {
		fx := newFixture(workers)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := fx.ex.Export(ctx, testJob(1000), nil)
		assert.ErrorIs(t, err, context.Canceled, "workers=%d", workers)
		assert.False(t, fx.mux.Finalized)
	}
}

func TestFrameError(t *testing.T) {
	cause := errors.New("gpu lost")
	err := error(&FrameError{Index: 7, Encoded: 3, Err: cause})
	assert.ErrorIs(t, err, ErrExportFrameFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "frame 7")
}
