package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/framecache"
	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

type loadKind int

const (
	loadImage loadKind = iota
	loadVideo
	loadLUT
	loadMask
)

// loadResult is posted back to the loop by a load goroutine.
type loadResult struct {
	key     string
	assetID string
	kind    loadKind
	img     *image.RGBA
	timeMs  float64
	table   *lut.Table
	mask    *image.Gray
	err     error
}

type failure struct {
	retryAt   time.Time
	permanent bool
}

// liveResolver never blocks. A miss starts a load and reports the resource
// as unavailable; the result is applied by the loop goroutine, which is the
// only writer of the cache and the resource maps.
type liveResolver struct {
	ctx     context.Context
	cfg     Config
	load    loader
	comp    compositor.Compositor
	cache   *framecache.Cache
	sem     *semaphore.Weighted
	results chan<- loadResult
	emit    func(Event)
	log     ports.Logger
	now     func() time.Time
	wg      sync.WaitGroup

	luts     map[string]compositor.LUTHandle
	masks    map[string]*image.Gray
	assets   map[string]string // cache key -> video asset id
	failures map[string]failure
}

func newLiveResolver(ctx context.Context, cfg Config, load loader, comp compositor.Compositor, results chan<- loadResult, emit func(Event), log ports.Logger, now func() time.Time) *liveResolver {
	return &liveResolver{
		ctx:      ctx,
		cfg:      cfg,
		load:     load,
		comp:     comp,
		cache:    framecache.New(framecache.WithIdleTimeout(cfg.IdleTimeout), framecache.WithClock(now)),
		sem:      semaphore.NewWeighted(int64(cfg.MaxLoads)),
		results:  results,
		emit:     emit,
		log:      log,
		now:      now,
		luts:     make(map[string]compositor.LUTHandle),
		masks:    make(map[string]*image.Gray),
		assets:   make(map[string]string),
		failures: make(map[string]failure),
	}
}

// start runs fn in a load goroutine unless a load for key is pending or a
// previous failure forbids another attempt yet.
func (r *liveResolver) start(key string, fn func(ctx context.Context) loadResult) {
	if f, ok := r.failures[key]; ok && (f.permanent || r.now().Before(f.retryAt)) {
		return
	}
	if !r.cache.MarkPending(key) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			return
		}
		res := fn(r.ctx)
		r.sem.Release(1)
		res.key = key
		select {
		case r.results <- res:
		case <-r.ctx.Done():
		}
	}()
}

// apply stores a finished load.
func (r *liveResolver) apply(res loadResult) {
	r.cache.ClearPending(res.key)
	if res.err == nil && res.kind == loadLUT {
		h, err := r.comp.CreateLUT(res.table)
		if err != nil {
			res.err = err
		} else {
			r.luts[res.assetID] = h
		}
	}
	if res.err != nil {
		r.fail(res)
		return
	}
	delete(r.failures, res.key)

	switch res.kind {
	case loadImage:
		r.cache.Put(res.key, framecache.KindImage, res.img)
	case loadVideo:
		r.cache.PutFrame(res.key, framecache.KindVideo, res.img, res.timeMs)
		r.assets[res.key] = res.assetID
	case loadMask:
		r.masks[res.assetID] = res.mask
	}
}

func (r *liveResolver) fail(res loadResult) {
	if errors.Is(res.err, decode.ErrStale) || errors.Is(res.err, context.Canceled) {
		return
	}
	_, seen := r.failures[res.key]
	p := permanent(res.err)
	r.failures[res.key] = failure{retryAt: r.now().Add(r.cfg.RetryInterval), permanent: p}
	if seen {
		return
	}
	r.log.Warn("Load of %s failed: %v", res.key, res.err)
	r.emit(LoadFailed{Key: res.key, AssetID: res.assetID, Err: res.err, Permanent: p})
}

func unavailable(key string) error {
	return fmt.Errorf("%w: %s", ErrResourceUnavailable, key)
}

func (r *liveResolver) image(_ context.Context, assetID string) (*image.RGBA, error) {
	key := "image:" + assetID
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}
	r.start(key, func(ctx context.Context) loadResult {
		img, err := r.load.image(ctx, assetID)
		return loadResult{assetID: assetID, kind: loadImage, img: img, err: err}
	})
	return nil, unavailable(key)
}

// video returns the cached frame of owner. A frame decoded for another time
// is still returned while the wanted one loads.
func (r *liveResolver) video(_ context.Context, owner, assetID string, ms float64) (*image.RGBA, error) {
	key := "video:" + owner
	img, fresh, ok := r.cache.Frame(key, ms, durationMs(r.cfg.FrameTolerance))
	if !fresh {
		r.start(key, func(ctx context.Context) loadResult {
			img, at, err := r.load.video(ctx, assetID, ms)
			return loadResult{assetID: assetID, kind: loadVideo, img: img, timeMs: at, err: err}
		})
	}
	if !ok {
		return nil, unavailable(key)
	}
	return img, nil
}

func (r *liveResolver) camera(owner string) (*image.RGBA, error) {
	key := "camera:" + owner
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}
	return nil, unavailable(key)
}

// pushCamera replaces the latest frame of a camera element.
func (r *liveResolver) pushCamera(owner string, img *image.RGBA) {
	r.cache.Put("camera:"+owner, framecache.KindCamera, img)
}

func (r *liveResolver) cameraFrame(owner string) (*image.RGBA, bool) {
	return r.cache.Get("camera:" + owner)
}

// text rasterizes on the loop goroutine; it is cheap next to decoding.
func (r *liveResolver) text(p scene.TextPayload) (*image.RGBA, error) {
	key := textKey(p)
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}
	if _, failed := r.failures[key]; failed {
		return nil, unavailable(key)
	}
	img, err := r.load.text(p)
	if err != nil {
		r.fail(loadResult{key: key, err: err})
		return nil, unavailable(key)
	}
	r.cache.Put(key, framecache.KindText, img)
	return img, nil
}

func (r *liveResolver) lut(_ context.Context, source string) (compositor.LUTHandle, error) {
	if h, ok := r.luts[source]; ok {
		return h, nil
	}
	key := "lut:" + source
	r.start(key, func(ctx context.Context) loadResult {
		t, err := r.load.table(ctx, source)
		return loadResult{assetID: source, kind: loadLUT, table: t, err: err}
	})
	return 0, unavailable(key)
}

// mask runs the segmenter once per owner. The result is reused until
// refreshMask drops it.
func (r *liveResolver) mask(_ context.Context, owner, model string, src *image.RGBA) (*image.Gray, error) {
	if m, ok := r.masks[owner]; ok {
		return m, nil
	}
	key := "mask:" + owner
	if r.load.segmenter == nil {
		return nil, unavailable(key)
	}
	r.start(key, func(ctx context.Context) loadResult {
		m, err := r.load.mask(ctx, src, model)
		return loadResult{assetID: owner, kind: loadMask, mask: m, err: err}
	})
	return nil, unavailable(key)
}

func (r *liveResolver) refreshMask(owner string) {
	delete(r.masks, owner)
	delete(r.failures, "mask:"+owner)
}

// sweep evicts idle cache entries and closes decode sources no longer
// referenced by any cached frame. It returns the evicted keys.
func (r *liveResolver) sweep() []string {
	evicted := r.cache.Sweep()
	if len(evicted) == 0 {
		return nil
	}
	gone := make(map[string]bool)
	for _, key := range evicted {
		if !strings.HasPrefix(key, "video:") {
			continue
		}
		if id, ok := r.assets[key]; ok {
			gone[id] = true
			delete(r.assets, key)
		}
	}
	for _, id := range r.assets {
		delete(gone, id)
	}
	for id := range gone {
		if r.load.manager != nil {
			r.load.manager.Evict(id)
		}
	}
	return evicted
}

// forget drops masks and failure records so that a changed project loads
// its resources afresh. Cached textures stay keyed by asset.
func (r *liveResolver) forget() {
	clear(r.masks)
	clear(r.failures)
}

func (r *liveResolver) wait() {
	r.wg.Wait()
}
