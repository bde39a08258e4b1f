package scheduler

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/keyframe"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// Headless renders arbitrary times of a static project copy, awaiting every
// resource. Each instance owns its compositor and decoders, so instances can
// run in parallel.
type Headless struct {
	mu      sync.Mutex
	project *scene.Project
	anim    map[string]keyframe.Tracks
	mode    Mode
	width   int
	height  int
	comp    compositor.Compositor
	manager *decode.Manager
	res     *syncResolver
	log     ports.Logger
	closed  bool
}

// NewHeadless creates a renderer for a copy of p. A zero size renders at
// the scene size in composition mode and the project size in timeline mode.
func NewHeadless(p *scene.Project, mode Mode, width, height int, deps Deps) (*Headless, error) {
	deps = deps.withDefaults()
	if width <= 0 || height <= 0 {
		width, height = naturalSize(p, mode)
	}
	comp, err := deps.Compositor(width, height, deps.Log)
	if err != nil {
		return nil, fmt.Errorf("headless compositor: %w", err)
	}
	manager := deps.newManager(deps.Log)
	project := p.Clone()
	log := deps.Log.WithComponent("headless")
	load := loader{
		assets:    deps.Assets,
		renderer:  deps.Renderer,
		segmenter: deps.Segmenter,
		manager:   manager,
	}
	return &Headless{
		project: project,
		anim:    animationIndex(project),
		mode:    mode,
		width:   width,
		height:  height,
		comp:    comp,
		manager: manager,
		res:     newSyncResolver(load, comp, log),
		log:     log,
	}, nil
}

func naturalSize(p *scene.Project, mode Mode) (int, int) {
	if mode == ModeTimeline {
		return p.Width, p.Height
	}
	return p.Scene.Width, p.Scene.Height
}

// RenderFrame renders the frame at tMs and reads it back.
func (h *Headless) RenderFrame(ctx context.Context, tMs float64) (*image.RGBA, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	layers, err := buildLayers(ctx, h.view(tMs), h.res)
	if err != nil {
		return nil, fmt.Errorf("frame at %.0fms: %w", tMs, err)
	}
	if err := h.comp.Render(layers); err != nil {
		return nil, fmt.Errorf("frame at %.0fms: %w", tMs, err)
	}
	return h.comp.ReadPixels(ctx)
}

// FrameAt renders the frame at ms.
func (h *Headless) FrameAt(ctx context.Context, ms float64) (*image.RGBA, error) {
	return h.RenderFrame(ctx, ms)
}

// SetCameraFrame sets the still used for a camera element.
func (h *Headless) SetCameraFrame(owner string, img *image.RGBA) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.res.cameras
	h.res.cameras = func(id string) (*image.RGBA, bool) {
		if id == owner {
			return img, true
		}
		if prev != nil {
			return prev(id)
		}
		return nil, false
	}
}

// Size returns the output size.
func (h *Headless) Size() (int, int) {
	return h.width, h.height
}

// Capabilities reports the compositor in use.
func (h *Headless) Capabilities() compositor.Capabilities {
	return h.comp.Capabilities()
}

// Close releases the compositor and decoders.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.manager.Close()
	return h.comp.Close()
}

func (h *Headless) view(tMs float64) view {
	return view{
		mode:    h.mode,
		project: h.project,
		anim:    h.anim,
		width:   h.width,
		height:  h.height,
		timeMs:  tMs,
	}
}

// animationIndex groups the keyframes of every element and clip once, so
// that per-frame evaluation only searches segments.
func animationIndex(p *scene.Project) map[string]keyframe.Tracks {
	idx := make(map[string]keyframe.Tracks)
	for _, e := range p.Scene.Elements {
		if len(e.Keyframes) > 0 {
			idx[e.ID] = e.Animation()
		}
	}
	for _, tr := range p.Timeline.Tracks {
		for _, c := range tr.Clips {
			if len(c.Keyframes) > 0 {
				idx[c.ID] = c.Animation()
			}
		}
	}
	return idx
}
