package history

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/user/frameflow/pkg/scene"
)

// ErrTargetNotFound is returned when no element or clip has the addressed id.
var ErrTargetNotFound = errors.New("history: target not found")

// SetKeyframe writes one keyframe value addressed by (id, property, time).
// The target is an element of the scene or a clip of the timeline. An
// existing keyframe at the same time is replaced and restored on undo.
type SetKeyframe struct {
	id       string
	project  *scene.Project
	target   string
	property string
	time     float64
	value    float64
	easing   string

	prev    scene.Keyframe
	hadPrev bool
}

// NewSetKeyframe creates a command that sets property of target at time
// (ms, owner relative) to value.
func NewSetKeyframe(p *scene.Project, target, property string, time, value float64) *SetKeyframe {
	return &SetKeyframe{
		id:       uuid.NewString(),
		project:  p,
		target:   target,
		property: property,
		time:     time,
		value:    value,
	}
}

// WithEasing sets the easing of the written keyframe.
func (c *SetKeyframe) WithEasing(name string) *SetKeyframe {
	c.easing = name
	return c
}

func (c *SetKeyframe) ID() string { return c.id }

func (c *SetKeyframe) Description() string {
	return fmt.Sprintf("Set %s of %s at %.0fms", c.property, c.target, c.time)
}

func (c *SetKeyframe) Execute() error {
	if !scene.IsAnimatable(c.property) {
		return fmt.Errorf("%w: %q", scene.ErrInvalidKeyframe, c.property)
	}
	frames, err := c.frames()
	if err != nil {
		return err
	}
	kf := scene.Keyframe{Time: c.time, Property: c.property, Value: c.value, Easing: c.easing}
	if i, ok := find(*frames, c.property, c.time); ok {
		c.prev, c.hadPrev = (*frames)[i], true
		(*frames)[i] = kf
		return nil
	}
	c.hadPrev = false
	*frames = append(*frames, kf)
	sort.SliceStable(*frames, func(i, j int) bool { return (*frames)[i].Time < (*frames)[j].Time })
	return nil
}

func (c *SetKeyframe) Undo() error {
	frames, err := c.frames()
	if err != nil {
		return err
	}
	i, ok := find(*frames, c.property, c.time)
	if !ok {
		return nil
	}
	if c.hadPrev {
		(*frames)[i] = c.prev
		return nil
	}
	*frames = append((*frames)[:i], (*frames)[i+1:]...)
	return nil
}

func (c *SetKeyframe) frames() (*[]scene.Keyframe, error) {
	if e, ok := c.project.Scene.Element(c.target); ok {
		return &e.Keyframes, nil
	}
	if clip, ok := c.project.Timeline.Clip(c.target); ok {
		return &clip.Keyframes, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, c.target)
}

func find(frames []scene.Keyframe, property string, time float64) (int, bool) {
	for i, kf := range frames {
		if kf.Property == property && kf.Time == time {
			return i, true
		}
	}
	return -1, false
}

// Batch groups commands into one undo step.
type Batch struct {
	id          string
	description string
	cmds        []Command
}

// NewBatch creates a batch executing cmds in order and undoing them in reverse.
func NewBatch(description string, cmds ...Command) *Batch {
	return &Batch{id: uuid.NewString(), description: description, cmds: cmds}
}

func (b *Batch) ID() string          { return b.id }
func (b *Batch) Description() string { return b.description }

// Len returns the number of grouped commands.
func (b *Batch) Len() int { return len(b.cmds) }

func (b *Batch) Execute() error {
	for i, c := range b.cmds {
		if err := c.Execute(); err != nil {
			for j := i - 1; j >= 0; j-- {
				b.cmds[j].Undo()
			}
			return err
		}
	}
	return nil
}

func (b *Batch) Undo() error {
	for i := len(b.cmds) - 1; i >= 0; i-- {
		if err := b.cmds[i].Undo(); err != nil {
			return err
		}
	}
	return nil
}
