package decode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

// expiryTick is how often the source checks request deadlines.
const expiryTick = 20 * time.Millisecond

type request struct {
	at       time.Duration
	key      int64 // at in ms
	target   int   // sample index, -1 until the table is known
	deadline time.Time
	waiting  bool // joined a run already in flight
	reply    chan result
}

type result struct {
	frame ports.VideoFrame
	err   error
}

type run struct {
	gen   uint64
	first int
	last  int
	reset bool
}

type runResult struct {
	run    run
	frames []ports.VideoFrame
	err    error
}

type prepareResult struct {
	table *SampleTable
	err   error
}

// Source decodes frames of one asset. A dedicated goroutine owns all decoder
// state; fetch and decode work runs one job at a time off that goroutine.
type Source struct {
	id      string
	cfg     Config
	store   ports.AssetStore
	decoder ports.VideoDecoder
	log     ports.Logger
	sink    ports.DebugSink

	reqs       chan *request
	prepReqs   chan chan prepareResult
	invalidate chan struct{}
	results    chan interface{}
	quit       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	failed     atomic.Pointer[SourceError]

	ctx    context.Context
	cancel context.CancelFunc

	// owned by loop
	table       *SampleTable
	failure     error
	preparing   bool
	waiters     []chan prepareResult
	pending     map[int64][]*request
	order       []int64
	inflight    *run
	last        int
	configured  bool
	forceRandom bool
	gen         uint64
	recent      []ports.VideoFrame
}

// newSource starts a source. A non-nil failure carries a sticky error over
// from an evicted predecessor.
func newSource(id string, store ports.AssetStore, decoder ports.VideoDecoder, cfg Config, log ports.Logger, sink ports.DebugSink, failure *SourceError) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		id:         id,
		cfg:        cfg,
		store:      store,
		decoder:    decoder,
		log:        log.WithField("asset", id),
		sink:       sink,
		reqs:       make(chan *request),
		prepReqs:   make(chan chan prepareResult),
		invalidate: make(chan struct{}),
		results:    make(chan interface{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[int64][]*request),
		last:       -1,
	}
	if failure != nil {
		s.failure = failure
		s.failed.Store(failure)
	}
	go s.loop()
	return s
}

// Prepare parses the sample table if needed and returns it.
func (s *Source) Prepare(ctx context.Context) (*SampleTable, error) {
	reply := make(chan prepareResult, 1)
	select {
	case s.prepReqs <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.table, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Frame returns the frame presented at time at.
func (s *Source) Frame(ctx context.Context, at time.Duration) (ports.VideoFrame, error) {
	req := &request{
		at:     at,
		key:    at.Milliseconds(),
		target: -1,
		reply:  make(chan result, 1),
	}
	select {
	case s.reqs <- req:
	case <-ctx.Done():
		return ports.VideoFrame{}, ctx.Err()
	case <-s.done:
		return ports.VideoFrame{}, ErrClosed
	}
	select {
	case r := <-req.reply:
		return r.frame, r.err
	case <-ctx.Done():
		return ports.VideoFrame{}, ctx.Err()
	case <-s.done:
		return ports.VideoFrame{}, ErrClosed
	}
}

// Invalidate abandons pending requests with ErrStale and forces the next
// run onto the random-access path.
func (s *Source) Invalidate() {
	select {
	case s.invalidate <- struct{}{}:
	case <-s.done:
	}
}

// Close stops the source and releases its decoder.
func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

func (s *Source) loop() {
	defer close(s.done)
	ticker := time.NewTicker(expiryTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			s.shutdown()
			return
		case req := <-s.reqs:
			s.accept(req)
		case w := <-s.prepReqs:
			s.addWaiter(w)
		case <-s.invalidate:
			s.abandon()
		case r := <-s.results:
			switch r := r.(type) {
			case prepareResult:
				s.finishPrepare(r)
			case runResult:
				s.finishRun(r)
			}
		case now := <-ticker.C:
			s.expire(now)
		}
		s.schedule()
	}
}

func (s *Source) accept(req *request) {
	if s.failure != nil {
		req.reply <- result{err: s.failure}
		return
	}
	req.deadline = time.Now().Add(s.cfg.RequestTimeout)
	if s.table == nil {
		s.enqueue(req)
		s.startPrepare()
		return
	}

	if len(s.table.Samples) == 0 {
		req.reply <- result{err: &SourceError{AssetID: s.id, Err: ErrNoFrame}}
		return
	}
	req.target = s.table.IndexAt(req.at)
	if f, ok := s.recentFrame(req.target); ok {
		req.reply <- result{frame: f}
		return
	}
	if s.inflight != nil && req.target >= s.inflight.first && req.target <= s.inflight.last {
		req.waiting = true
		req.deadline = time.Now().Add(s.cfg.WaitTimeout)
	}
	s.enqueue(req)
}

func (s *Source) enqueue(req *request) {
	if _, ok := s.pending[req.key]; !ok {
		s.order = append(s.order, req.key)
	}
	s.pending[req.key] = append(s.pending[req.key], req)
}

func (s *Source) addWaiter(w chan prepareResult) {
	switch {
	case s.failure != nil:
		w <- prepareResult{err: s.failure}
	case s.table != nil:
		w <- prepareResult{table: s.table}
	default:
		s.waiters = append(s.waiters, w)
		s.startPrepare()
	}
}

func (s *Source) startPrepare() {
	if s.preparing || s.table != nil || s.failure != nil {
		return
	}
	s.preparing = true
	go func() {
		t, err := scanSampleTable(s.ctx, s.store, s.id, s.cfg)
		s.results <- prepareResult{table: t, err: err}
	}()
}

func (s *Source) finishPrepare(r prepareResult) {
	s.preparing = false
	if r.err != nil {
		failure := &SourceError{AssetID: s.id, Err: fmt.Errorf("%w: %w", ErrDecodeFailure, r.err)}
		s.failure = failure
		s.failed.Store(failure)
		s.log.Warn("Sample table for %s unavailable: %v", s.id, r.err)
		for _, w := range s.waiters {
			w <- prepareResult{err: s.failure}
		}
		s.waiters = nil
		s.failAll(s.failure)
		return
	}

	s.table = r.table
	s.log.Debug("Parsed sample table for %s: %d samples, %d sync, %dx%d %s",
		s.id, len(r.table.Samples), r.table.SyncCount(), r.table.Width, r.table.Height, r.table.Codec)
	if s.sink != nil && s.sink.Enabled() {
		if data, err := json.MarshalIndent(r.table, "", "  "); err == nil {
			if err := s.sink.SaveSampleTable(s.id, data); err != nil {
				s.log.Warn("Failed to save sample table: %v", err)
			}
		}
	}
	for _, w := range s.waiters {
		w <- prepareResult{table: s.table}
	}
	s.waiters = nil

	if len(s.table.Samples) == 0 {
		s.failAll(&SourceError{AssetID: s.id, Err: ErrNoFrame})
		return
	}
	for _, reqs := range s.pending {
		for _, req := range reqs {
			req.target = s.table.IndexAt(req.at)
		}
	}
}

// schedule starts a run for the oldest pending time when idle.
func (s *Source) schedule() {
	if s.inflight != nil || s.table == nil || s.failure != nil {
		return
	}
	for len(s.order) > 0 {
		key := s.order[0]
		reqs := s.pending[key]
		if len(reqs) == 0 {
			delete(s.pending, key)
			s.order = s.order[1:]
			continue
		}
		s.startRun(reqs[0].target)
		return
	}
}

func (s *Source) startRun(target int) {
	r := run{gen: s.gen, last: target}
	if !s.forceRandom && s.configured && s.last >= 0 &&
		target > s.last && target <= s.last+s.cfg.MaxSequentialGap {
		r.first = s.last + 1
	} else {
		r.first = s.table.SyncBefore(target)
		r.reset = true
	}
	s.forceRandom = false
	s.inflight = &r

	for _, reqs := range s.pending {
		for _, req := range reqs {
			if req.target >= r.first && req.target <= r.last {
				req.waiting = true
			}
		}
	}

	go func() {
		frames, err := s.execute(r)
		s.results <- runResult{run: r, frames: frames, err: err}
	}()
}

// execute fetches the run's byte range in one read and decodes it.
func (s *Source) execute(r run) ([]ports.VideoFrame, error) {
	t := s.table
	samples := t.Samples[r.first : r.last+1]

	if r.reset {
		if err := s.decoder.Reset(); err != nil {
			return nil, fmt.Errorf("reset decoder: %w", err)
		}
		cfg := ports.DecoderConfig{
			Codec:       t.Codec,
			Width:       t.Width,
			Height:      t.Height,
			Description: t.Description(),
		}
		if err := s.decoder.Configure(cfg); err != nil {
			return nil, fmt.Errorf("configure decoder: %w", err)
		}
	}

	start, end := samples[0].Offset, samples[0].Offset+samples[0].Size
	for _, smp := range samples[1:] {
		if smp.Offset < start {
			start = smp.Offset
		}
		if e := smp.Offset + smp.Size; e > end {
			end = e
		}
	}
	data, err := s.store.ReadRange(s.ctx, s.id, start, end-start)
	if err != nil {
		return nil, fmt.Errorf("fetch samples %d-%d: %w", r.first, r.last, err)
	}

	desc := t.Description()
	chunks := make([]ports.EncodedChunk, len(samples))
	for i, smp := range samples {
		lo, hi := smp.Offset-start, smp.Offset-start+smp.Size
		if hi > int64(len(data)) {
			return nil, fmt.Errorf("sample %d: short read", r.first+i)
		}
		au := h264.AVCCToAnnexB(data[lo:hi])
		if smp.Sync {
			au = append(append([]byte(nil), desc...), au...)
		}
		chunks[i] = ports.EncodedChunk{Data: au, PTS: smp.PTS, Duration: smp.Duration, Key: smp.Sync}
	}

	return s.decoder.Decode(s.ctx, chunks)
}

func (s *Source) finishRun(res runResult) {
	s.inflight = nil
	r := res.run

	if res.err != nil {
		s.last = -1
		s.configured = false
		s.log.Warn("Decode of %s samples %d-%d failed: %v", s.id, r.first, r.last, res.err)
		if r.gen != s.gen {
			return
		}
		err := &SourceError{AssetID: s.id, Err: fmt.Errorf("%w: %w", ErrDecodeFailure, res.err)}
		s.resolve(func(req *request) (result, bool) {
			if req.target >= r.first && req.target <= r.last {
				return result{err: err}, true
			}
			return result{}, false
		})
		return
	}

	s.configured = true
	s.last = r.last
	for _, f := range res.frames {
		s.remember(f)
	}
	if r.gen != s.gen {
		return
	}

	s.resolve(func(req *request) (result, bool) {
		if req.target < r.first || req.target > r.last {
			return result{}, false
		}
		if f, ok := matchFrame(res.frames, s.table.Samples[req.target].PTS, s.tolerance(req.target)); ok {
			return result{frame: f}, true
		}
		return result{err: ErrNoFrame}, true
	})
}

// resolve replies to every pending request for which fn reports a result.
func (s *Source) resolve(fn func(req *request) (result, bool)) {
	for key, reqs := range s.pending {
		kept := reqs[:0]
		for _, req := range reqs {
			if res, ok := fn(req); ok {
				req.reply <- res
				continue
			}
			req.waiting = false
			kept = append(kept, req)
		}
		if len(kept) == 0 {
			delete(s.pending, key)
		} else {
			s.pending[key] = kept
		}
	}
	s.compactOrder()
}

func (s *Source) expire(now time.Time) {
	s.resolve(func(req *request) (result, bool) {
		if now.After(req.deadline) {
			return result{err: ErrNoFrame}, true
		}
		return result{}, false
	})
}

func (s *Source) abandon() {
	s.gen++
	s.forceRandom = true
	s.failAll(ErrStale)
}

func (s *Source) failAll(err error) {
	for _, reqs := range s.pending {
		for _, req := range reqs {
			req.reply <- result{err: err}
		}
	}
	s.pending = make(map[int64][]*request)
	s.order = nil
}

func (s *Source) compactOrder() {
	kept := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.pending[key]; ok {
			kept = append(kept, key)
		}
	}
	s.order = kept
}

func (s *Source) shutdown() {
	s.cancel()
	if s.inflight != nil || s.preparing {
		<-s.results
	}
	s.failAll(ErrClosed)
	for _, w := range s.waiters {
		w <- prepareResult{err: ErrClosed}
	}
	s.waiters = nil
	if err := s.decoder.Close(); err != nil {
		s.log.Warn("Failed to close decoder for %s: %v", s.id, err)
	}
}

// tolerance bounds frame matching for sample i so that a neighbouring
// frame is never mistaken for it.
func (s *Source) tolerance(i int) time.Duration {
	tol := s.cfg.Tolerance
	if half := s.table.Samples[i].Duration / 2; half > 0 && half < tol {
		tol = half
	}
	return tol
}

func (s *Source) remember(f ports.VideoFrame) {
	s.recent = append(s.recent, f)
	if over := len(s.recent) - s.cfg.RecentFrames; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

func (s *Source) recentFrame(target int) (ports.VideoFrame, bool) {
	return matchFrame(s.recent, s.table.Samples[target].PTS, s.tolerance(target))
}

// matchFrame returns the frame closest to at within tolerance.
func matchFrame(frames []ports.VideoFrame, at, tolerance time.Duration) (ports.VideoFrame, bool) {
	best := -1
	bestDiff := time.Duration(math.MaxInt64)
	for i, f := range frames {
		diff := f.PTS - at
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance && diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 {
		return ports.VideoFrame{}, false
	}
	return frames[best], true
}
