package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/frameflow/pkg/scene"
)

func TestEffectiveGain_MuteAndSolo(t *testing.T) {
	g := NewGraph()
	g.SetVolume("a", 0.8)
	g.SetVolume("b", 0.5)
	g.SetVolume("c", 1)

	assert.Equal(t, 0.8, g.EffectiveGain("a"))

	g.SetMute("a", true)
	assert.Zero(t, g.EffectiveGain("a"))

	g.SetSolo("b", true)
	assert.Equal(t, 0.5, g.EffectiveGain("b"))
	assert.Zero(t, g.EffectiveGain("c"))

	g.SetSolo("a", true)
	assert.Zero(t, g.EffectiveGain("a"), "mute wins over solo")

	assert.Zero(t, g.EffectiveGain("missing"))
}

func TestSetPan_Clamps(t *testing.T) {
	g := NewGraph()
	g.SetPan("a", -3)
	g.SetPan("b", 2)
	out := make([]float32, 2)

	g.Mix(out, map[string][]float32{"a": {1, 1}})
	assert.InDelta(t, 2, out[0], 1e-6)
	assert.InDelta(t, 0, out[1], 1e-6)

	g.Mix(out, map[string][]float32{"b": {1, 1}})
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 2, out[1], 1e-6)
}

func TestMix_CenterPanIsTransparent(t *testing.T) {
	g := NewGraph()
	g.SetVolume("a", 0.5)
	g.SetMaster(2)
	out := make([]float32, 4)
	g.Mix(out, map[string][]float32{"a": {0.2, -0.4, 0.6, 0.1}})

	want := []float32{0.2, -0.4, 0.6, 0.1}
	for i := range want {
		assert.InDelta(t, want[i], out[i], 1e-6)
	}
}

func TestMix_SumsTracksAndIgnoresUnknown(t *testing.T) {
	g := NewGraph()
	g.SetVolume("a", 1)
	g.SetVolume("b", 1)
	out := []float32{9, 9, 9, 9}
	g.Mix(out, map[string][]float32{
		"a":     {0.1, 0.1, 0.1, 0.1},
		"b":     {0.2, 0.2},
		"ghost": {1, 1, 1, 1},
	})
	assert.InDelta(t, 0.3, out[0], 1e-6)
	assert.InDelta(t, 0.3, out[1], 1e-6)
	assert.InDelta(t, 0.1, out[2], 1e-6)
	assert.InDelta(t, 0.1, out[3], 1e-6)
}

func TestPan_EqualPowerMono(t *testing.T) {
	l, r := pan(1, 0, -0.5)
	assert.InDelta(t, 1, l, 1e-9)
	assert.InDelta(t, 0, r, 1e-9)

	l, r = pan(1, 1, 0.5)
	assert.InDelta(t, math.Cos(math.Pi/4), l, 1e-9)
	assert.InDelta(t, 1+math.Sin(math.Pi/4), r, 1e-9)
}

func TestSync_MirrorsTimeline(t *testing.T) {
	g := NewGraph()
	g.SetVolume("stale", 1)
	tl := &scene.Timeline{Tracks: []*scene.Track{
		{ID: "v1", Kind: scene.TrackVideo, Volume: 1},
		{ID: "music", Kind: scene.TrackAudio, Volume: 0.7, Pan: -2, Solo: true},
		{ID: "voice", Kind: scene.TrackAudio, Volume: 1, Muted: true},
	}}
	g.Sync(tl)

	assert.Equal(t, []string{"music", "voice"}, g.Tracks())
	assert.Equal(t, 0.7, g.EffectiveGain("music"))
	assert.Zero(t, g.EffectiveGain("voice"))

	out := make([]float32, 2)
	g.Mix(out, map[string][]float32{"music": {1, 1}})
	assert.InDelta(t, 1.4, out[0], 1e-6)
	assert.InDelta(t, 0, out[1], 1e-6)
}
