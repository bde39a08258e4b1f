package scheduler

import (
	"errors"

	"github.com/user/frameflow/pkg/adapters/logger"
	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/ports"
)

// CompositorFactory creates the compositor for a target size.
type CompositorFactory func(width, height int, log ports.Logger) (compositor.Compositor, error)

// Deps are the collaborators of an engine or headless renderer.
type Deps struct {
	Assets    ports.AssetStore
	Renderer  ports.Renderer
	Segmenter ports.Segmenter // nil disables segmentation masks
	Decoders  decode.DecoderFactory
	Decode    decode.Config
	// Compositor defaults to DefaultCompositor(compositor.DefaultConfig(), Renderer).
	Compositor CompositorFactory
	Sink       ports.DebugSink
	Log        ports.Logger
	// Clock defaults to SystemClock.
	Clock Clock
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.NewNoop()
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Compositor == nil {
		d.Compositor = DefaultCompositor(compositor.DefaultConfig(), d.Renderer)
	}
	return d
}

// DefaultCompositor opens the shader device and falls back to 2D blits on
// renderer when it is unavailable.
func DefaultCompositor(cfg compositor.Config, renderer ports.Renderer) CompositorFactory {
	return func(width, height int, log ports.Logger) (compositor.Compositor, error) {
		cfg.Width, cfg.Height = width, height
		c, err := compositor.Open(cfg, log)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, compositor.ErrGPUUnavailable) || renderer == nil {
			return nil, err
		}
		return compositor.NewFallback(renderer, width, height, log), nil
	}
}

// isFallback reports whether c is the reduced-feature compositor.
func isFallback(c compositor.Compositor) bool {
	return c.Capabilities().Backend == compositor.BackendFallback
}

func (d Deps) newManager(log ports.Logger) *decode.Manager {
	var opts []decode.Option
	if d.Sink != nil {
		opts = append(opts, decode.WithDebugSink(d.Sink))
	}
	return decode.NewManager(d.Assets, d.Decoders, d.Decode, log, opts...)
}
