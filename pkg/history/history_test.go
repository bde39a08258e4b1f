package history

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameflow/pkg/scene"
)

type counter struct {
	n    *int
	fail bool
}

func (c counter) ID() string          { return "counter" }
func (c counter) Description() string { return "increment" }
func (c counter) Execute() error {
	if c.fail {
		return errors.New("boom")
	}
	*c.n++
	return nil
}
func (c counter) Undo() error { *c.n--; return nil }

func TestStack_UndoRedo(t *testing.T) {
	var n int
	var changes []Change
	s := New(WithNotify(func(c Change) { changes = append(changes, c) }))

	require.NoError(t, s.Execute(counter{n: &n}))
	require.NoError(t, s.Execute(counter{n: &n}))
	assert.Equal(t, 2, n)
	assert.True(t, s.CanUndo())
	assert.False(t, s.CanRedo())

	require.NoError(t, s.Undo())
	assert.Equal(t, 1, n)
	assert.True(t, s.CanRedo())

	require.NoError(t, s.Redo())
	assert.Equal(t, 2, n)

	var ops []Op
	for _, c := range changes {
		ops = append(ops, c.Op)
		assert.Equal(t, Entry{ID: "counter", Description: "increment"}, c.Entry)
	}
	assert.Equal(t, []Op{OpExecute, OpExecute, OpUndo, OpRedo}, ops)
}

func TestStack_ExecuteClearsRedo(t *testing.T) {
	var n int
	s := New()
	require.NoError(t, s.Execute(counter{n: &n}))
	require.NoError(t, s.Undo())
	require.True(t, s.CanRedo())

	require.NoError(t, s.Execute(counter{n: &n}))
	assert.False(t, s.CanRedo())
	assert.ErrorIs(t, s.Redo(), ErrNothingToRedo)
}

func TestStack_CapsEntries(t *testing.T) {
	var n int
	s := New()
	for i := 0; i < DefaultMaxEntries+5; i++ {
		require.NoError(t, s.Execute(counter{n: &n}))
	}
	undo, _ := s.Entries()
	assert.Len(t, undo, DefaultMaxEntries)

	for s.CanUndo() {
		require.NoError(t, s.Undo())
	}
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)
}

func TestStack_FailedExecuteIsNotRecorded(t *testing.T) {
	var n int
	s := New()
	assert.Error(t, s.Execute(counter{n: &n, fail: true}))
	assert.False(t, s.CanUndo())
}

func testProject() *scene.Project {
	p := scene.DefaultProject()
	p.Scene.Elements = []*scene.Element{{
		ID:        "logo",
		Transform: scene.DefaultTransform(),
		Payload:   scene.ImagePayload{Source: "logo.png"},
		Keyframes: []scene.Keyframe{{Time: 500, Property: "x", Value: 10}},
	}}
	p.Timeline.Tracks = []*scene.Track{{
		ID: "v1", Kind: scene.TrackVideo, Volume: 1,
		Clips: []*scene.Clip{{ID: "c1", Kind: scene.ClipVideo, AssetID: "a", Duration: 1000}},
	}}
	return &p
}

func TestSetKeyframe_InsertsSortedAndUndoRemoves(t *testing.T) {
	p := testProject()
	s := New()

	require.NoError(t, s.Execute(NewSetKeyframe(p, "logo", "x", 100, 3)))
	e, _ := p.Scene.Element("logo")
	require.Len(t, e.Keyframes, 2)
	assert.Equal(t, 100.0, e.Keyframes[0].Time)
	assert.Equal(t, 3.0, e.Keyframes[0].Value)

	require.NoError(t, s.Undo())
	require.Len(t, e.Keyframes, 1)
	assert.Equal(t, 500.0, e.Keyframes[0].Time)
}

func TestSetKeyframe_ReplaceRestoresPrevious(t *testing.T) {
	p := testProject()
	s := New()

	require.NoError(t, s.Execute(NewSetKeyframe(p, "logo", "x", 500, 99).WithEasing("easeInQuad")))
	e, _ := p.Scene.Element("logo")
	require.Len(t, e.Keyframes, 1)
	assert.Equal(t, 99.0, e.Keyframes[0].Value)
	assert.Equal(t, "easeInQuad", e.Keyframes[0].Easing)

	require.NoError(t, s.Undo())
	assert.Equal(t, 10.0, e.Keyframes[0].Value)
	assert.Empty(t, e.Keyframes[0].Easing)
}

func TestSetKeyframe_ClipTarget(t *testing.T) {
	p := testProject()
	require.NoError(t, New().Execute(NewSetKeyframe(p, "c1", "opacity", 0, 0.5)))
	c, _ := p.Timeline.Clip("c1")
	assert.Len(t, c.Keyframes, 1)
}

func TestSetKeyframe_Errors(t *testing.T) {
	p := testProject()
	assert.ErrorIs(t, NewSetKeyframe(p, "ghost", "x", 0, 1).Execute(), ErrTargetNotFound)
	assert.ErrorIs(t, NewSetKeyframe(p, "logo", "hue", 0, 1).Execute(), scene.ErrInvalidKeyframe)
}

func TestBatch_SingleUndoStep(t *testing.T) {
	p := testProject()
	s := New()
	b := NewBatch("Track logo",
		NewSetKeyframe(p, "logo", "x", 0, 1),
		NewSetKeyframe(p, "logo", "y", 0, 2),
		NewSetKeyframe(p, "logo", "x", 33, 4),
	)
	require.NoError(t, s.Execute(b))
	e, _ := p.Scene.Element("logo")
	assert.Len(t, e.Keyframes, 4)

	undo, _ := s.Entries()
	require.Len(t, undo, 1)
	assert.Equal(t, "Track logo", undo[0].Description)

	require.NoError(t, s.Undo())
	assert.Len(t, e.Keyframes, 1)
}

func TestBatch_RollsBackOnFailure(t *testing.T) {
	p := testProject()
	b := NewBatch("bad",
		NewSetKeyframe(p, "logo", "x", 0, 1),
		NewSetKeyframe(p, "ghost", "x", 0, 1),
	)
	assert.ErrorIs(t, New().Execute(b), ErrTargetNotFound)
	e, _ := p.Scene.Element("logo")
	assert.Len(t, e.Keyframes, 1)
}
