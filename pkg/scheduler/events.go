package scheduler

import (
	"image"

	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/history"
	"github.com/user/frameflow/pkg/tracker"
)

// Event is sent by the engine to its host. It is implemented only by the
// event types of this package.
type Event interface {
	event()
}

// TimeChanged reports the playhead.
type TimeChanged struct {
	TimeMs  float64
	Playing bool
}

// GPUCapability reports which compositor backend the engine uses.
type GPUCapability struct {
	Capabilities compositor.Capabilities
	// Fallback is true when no shader device was available.
	Fallback bool
}

// FrameRendered is sent after each submitted frame. Image is set only when
// Config.ReadBack is on.
type FrameRendered struct {
	Frame  uint64
	TimeMs float64
	Layers int
	Image  *image.RGBA
}

// TrackProgress reports a running tracking job.
type TrackProgress struct {
	JobID string
	Done  int
	Total int
}

// TrackComplete carries the samples of a finished tracking job. The samples
// have already been written to the target as x/y keyframes.
type TrackComplete struct {
	JobID     string
	TargetID  string
	CommandID string // undo entry holding the keyframes, empty when none were written
	Samples   []tracker.Sample
	Lost      int
}

// TrackError reports a failed tracking job.
type TrackError struct {
	JobID    string
	TargetID string
	Err      error
}

// LoadFailed reports a resource that could not be loaded. It is sent once
// per resource.
type LoadFailed struct {
	Key       string
	AssetID   string
	Err       error
	Permanent bool
}

// HistoryChanged reports an undo stack change and the resulting undo and
// redo availability. CommandID is empty when the stack was cleared.
type HistoryChanged struct {
	Op          history.Op
	CommandID   string
	Description string
	CanUndo     bool
	CanRedo     bool
}

func (TimeChanged) event()    {}
func (GPUCapability) event()  {}
func (FrameRendered) event()  {}
func (TrackProgress) event()  {}
func (TrackComplete) event()  {}
func (TrackError) event()     {}
func (LoadFailed) event()     {}
func (HistoryChanged) event() {}
