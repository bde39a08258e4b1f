package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/tracker"
)

// TrackRequest asks for a region to be followed across frames. ROI is in
// scene pixels for elements and project pixels for clips; times are in
// the owner's time base (composition time or timeline time).
type TrackRequest struct {
	TargetID string
	ROI      image.Rectangle
	StartMs  float64
	EndMs    float64
	StepMs   float64
	Tracker  tracker.Config
}

// target describes what a tracking job writes to.
type target struct {
	mode          Mode
	startMs       float64
	width, height float64
}

func findTarget(p *scene.Project, id string) (target, error) {
	if e, ok := p.Scene.Element(id); ok {
		return target{mode: ModeComposition, width: e.Transform.Width, height: e.Transform.Height}, nil
	}
	if c, ok := p.Timeline.Clip(id); ok {
		w, h := c.Transform.Width, c.Transform.Height
		if w <= 0 || h <= 0 {
			w, h = float64(p.Width), float64(p.Height)
		}
		return target{mode: ModeTimeline, startMs: c.Start, width: w, height: h}, nil
	}
	return target{}, fmt.Errorf("%w: %q", ErrUnknownTarget, id)
}

// Track starts a tracking job on a copy of the project and returns its id.
// Progress arrives as TrackProgress events; on success the samples are
// written to the target as one undoable edit and TrackComplete is sent.
func (e *Engine) Track(req TrackRequest) (string, error) {
	var id string
	err := e.call(func() error {
		tg, err := findTarget(e.project, req.TargetID)
		if err != nil {
			return err
		}
		if req.ROI.Empty() {
			return tracker.ErrEmptyRegion
		}
		id = uuid.NewString()
		snapshot := e.project.Clone()
		e.jobs.Add(1)
		go e.runTrack(e.ctx, id, req, tg, snapshot)
		return nil
	})
	return id, err
}

func (e *Engine) runTrack(ctx context.Context, id string, req TrackRequest, tg target, snapshot *scene.Project) {
	defer e.jobs.Done()
	log := e.log.WithComponent("track").WithField("job", id)
	log.Info("Tracking %s from %.0fms to %.0fms", req.TargetID, req.StartMs, req.EndMs)

	samples, err := TrackProject(ctx, snapshot, tg.mode, req, e.deps, func(done, total int) {
		e.emit(TrackProgress{JobID: id, Done: done, Total: total})
	})
	if err != nil {
		log.Warn("Tracking %s failed: %v", req.TargetID, err)
		e.emit(TrackError{JobID: id, TargetID: req.TargetID, Err: err})
		return
	}
	if sink := e.deps.Sink; sink != nil && sink.Enabled() {
		if data, err := json.MarshalIndent(samples, "", "  "); err == nil {
			if err := sink.SaveTrack(id, data); err != nil {
				log.Warn("Saving track %s: %v", id, err)
			}
		}
	}

	e.send(func() { e.applyTrack(id, req, tg, samples) })
}

func (e *Engine) applyTrack(id string, req TrackRequest, tg target, samples []tracker.Sample) {
	batch := tracker.Commands(e.project, req.TargetID, samples, tg.width, tg.height, req.StartMs-tg.startMs)
	var cmdID string
	if batch.Len() > 0 {
		if err := e.history.Execute(batch); err != nil {
			e.emit(TrackError{JobID: id, TargetID: req.TargetID, Err: err})
			return
		}
		cmdID = batch.ID()
	}
	e.emit(TrackComplete{
		JobID:     id,
		TargetID:  req.TargetID,
		CommandID: cmdID,
		Samples:   samples,
		Lost:      tracker.LostCount(samples),
	})
}

// TrackProject follows req.ROI over frames rendered headlessly from p.
func TrackProject(ctx context.Context, p *scene.Project, mode Mode, req TrackRequest, deps Deps, progress tracker.ProgressFunc) ([]tracker.Sample, error) {
	h, err := NewHeadless(p, mode, 0, 0, deps)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return tracker.New(req.Tracker).Track(ctx, h, req.ROI, req.StartMs, req.EndMs, req.StepMs, progress)
}

// TrackTarget tracks req on p and writes the samples to the target as x/y
// keyframes, editing p in place.
func TrackTarget(ctx context.Context, p *scene.Project, req TrackRequest, deps Deps, progress tracker.ProgressFunc) ([]tracker.Sample, error) {
	tg, err := findTarget(p, req.TargetID)
	if err != nil {
		return nil, err
	}
	if req.ROI.Empty() {
		return nil, tracker.ErrEmptyRegion
	}
	samples, err := TrackProject(ctx, p, tg.mode, req, deps, progress)
	if err != nil {
		return nil, err
	}
	batch := tracker.Commands(p, req.TargetID, samples, tg.width, tg.height, req.StartMs-tg.startMs)
	if err := batch.Execute(); err != nil {
		return nil, fmt.Errorf("write track: %w", err)
	}
	return samples, nil
}
