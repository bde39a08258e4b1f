package export

import (
	"fmt"
	"math"
	"time"

	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/scheduler"
)

const (
	// DefaultCodec is H.264 Baseline level 3.1.
	DefaultCodec = "avc1.42001f"

	// DefaultBitrate is used when neither Bitrate nor Quality is set.
	DefaultBitrate = 8_000_000

	// DefaultDurationMs applies to projects without a timeline.
	DefaultDurationMs = 5000
)

// Job describes one export.
type Job struct {
	ID      string
	Project *scene.Project
	Mode    scheduler.Mode

	// Width and Height default to the scene size in composition mode and
	// the project size in timeline mode.
	Width  int
	Height int
	FPS    float64

	// DurationMs defaults to the timeline duration.
	DurationMs float64

	// KeyframeInterval is in frames and defaults to two seconds.
	KeyframeInterval int

	Bitrate int
	Quality int
	Codec   string
}

func (j Job) withDefaults() (Job, error) {
	if j.Project == nil {
		return j, fmt.Errorf("%w: no project", ErrInvalidJob)
	}
	w, h := j.Project.Width, j.Project.Height
	if j.Mode == scheduler.ModeComposition {
		w, h = j.Project.Scene.Width, j.Project.Scene.Height
	}
	if j.Width <= 0 {
		j.Width = w
	}
	if j.Height <= 0 {
		j.Height = h
	}
	if j.FPS <= 0 {
		j.FPS = j.Project.FPS
	}
	if j.Width <= 0 || j.Height <= 0 || j.FPS <= 0 {
		return j, fmt.Errorf("%w: %dx%d at %g fps", ErrInvalidJob, j.Width, j.Height, j.FPS)
	}
	if j.DurationMs <= 0 {
		j.DurationMs = j.Project.Timeline.Duration()
	}
	if j.DurationMs <= 0 {
		j.DurationMs = DefaultDurationMs
	}
	if j.KeyframeInterval <= 0 {
		j.KeyframeInterval = max(1, int(math.Round(2*j.FPS)))
	}
	if j.Bitrate <= 0 && j.Quality <= 0 {
		j.Bitrate = DefaultBitrate
	}
	if j.Codec == "" {
		j.Codec = DefaultCodec
	}
	return j, nil
}

// TotalFrames returns ceil(duration * fps).
func (j Job) TotalFrames() int {
	// tolerance keeps 1000ms at 30fps from rounding up to 31
	return int(math.Ceil(j.DurationMs*j.FPS/1000 - 1e-9))
}

// FrameTime returns the presentation time of frame i in ms.
func (j Job) FrameTime(i int) float64 {
	return float64(i) * 1000 / j.FPS
}

func (j Job) pts(i int) time.Duration {
	return time.Duration(math.Round(float64(i) * float64(time.Second) / j.FPS))
}

func (j Job) encoderConfig() ports.EncoderConfig {
	return ports.EncoderConfig{
		Codec:   j.Codec,
		Width:   j.Width,
		Height:  j.Height,
		FPS:     j.FPS,
		Bitrate: j.Bitrate,
		Quality: j.Quality,
	}
}
