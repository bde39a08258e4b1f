// Package audio mixes interleaved stereo tracks with per-track volume, pan,
// mute and solo, mirroring the timeline's audio track state.
package audio

import (
	"math"
	"sort"
	"sync"

	"github.com/user/frameflow/pkg/scene"
)

// Channels is the number of interleaved channels per frame.
const Channels = 2

type track struct {
	volume float64
	pan    float64
	muted  bool
	solo   bool
}

// Graph is a set of tracks feeding one master gain.
type Graph struct {
	mu     sync.RWMutex
	tracks map[string]*track
	master float64
}

// NewGraph creates an empty graph with unity master gain.
func NewGraph() *Graph {
	return &Graph{tracks: make(map[string]*track), master: 1}
}

func (g *Graph) ensure(id string) *track {
	t, ok := g.tracks[id]
	if !ok {
		t = &track{volume: 1}
		g.tracks[id] = t
	}
	return t
}

// SetVolume sets the base volume of a track. Negative values are zero.
func (g *Graph) SetVolume(id string, v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensure(id).volume = math.Max(0, v)
}

// SetPan sets the stereo position of a track, clamped to [-1, 1].
func (g *Graph) SetPan(id string, p float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensure(id).pan = math.Max(-1, math.Min(1, p))
}

// SetMute mutes or unmutes a track.
func (g *Graph) SetMute(id string, muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensure(id).muted = muted
}

// SetSolo solos or unsolos a track. While any track is soloed, only soloed
// tracks are heard.
func (g *Graph) SetSolo(id string, solo bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensure(id).solo = solo
}

// SetMaster sets the master gain.
func (g *Graph) SetMaster(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.master = math.Max(0, v)
}

// Remove drops a track.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tracks, id)
}

// Tracks returns the track ids in sorted order.
func (g *Graph) Tracks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.tracks))
	for id := range g.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sync mirrors the audio tracks of tl. Tracks no longer present are removed.
func (g *Graph) Sync(tl *scene.Timeline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]bool)
	for _, tr := range tl.Tracks {
		if tr.Kind != scene.TrackAudio {
			continue
		}
		seen[tr.ID] = true
		t := g.ensure(tr.ID)
		t.volume = math.Max(0, tr.Volume)
		t.pan = math.Max(-1, math.Min(1, tr.Pan))
		t.muted = tr.Muted
		t.solo = tr.Solo
	}
	for id := range g.tracks {
		if !seen[id] {
			delete(g.tracks, id)
		}
	}
}

// EffectiveGain returns the gain applied to a track after mute and solo,
// excluding the master gain. Unknown tracks are silent.
func (g *Graph) EffectiveGain(id string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tracks[id]
	if !ok {
		return 0
	}
	return g.effective(t, g.anySolo())
}

func (g *Graph) anySolo() bool {
	for _, t := range g.tracks {
		if t.solo {
			return true
		}
	}
	return false
}

func (g *Graph) effective(t *track, anySolo bool) float64 {
	if t.muted || (anySolo && !t.solo) {
		return 0
	}
	return t.volume
}

// Mix sums interleaved stereo buffers keyed by track id into out, which is
// cleared first. Buffers shorter than out contribute silence past their end.
func (g *Graph) Mix(out []float32, inputs map[string][]float32) {
	clear(out)
	g.mu.RLock()
	defer g.mu.RUnlock()

	anySolo := g.anySolo()
	for id, in := range inputs {
		t, ok := g.tracks[id]
		if !ok {
			continue
		}
		gain := g.effective(t, anySolo) * g.master
		if gain == 0 {
			continue
		}
		n := min(len(in), len(out)) / Channels * Channels
		for i := 0; i < n; i += Channels {
			l, r := pan(float64(in[i]), float64(in[i+1]), t.pan)
			out[i] += float32(l * gain)
			out[i+1] += float32(r * gain)
		}
	}
}

// pan applies an equal-power stereo panner to one frame.
func pan(l, r, p float64) (float64, float64) {
	if p <= 0 {
		x := (p + 1) * math.Pi / 2
		return l + r*math.Cos(x), r * math.Sin(x)
	}
	x := p * math.Pi / 2
	return l * math.Cos(x), r + l*math.Sin(x)
}
