package scene

import (
	"sort"

	"github.com/user/frameflow/pkg/keyframe"
)

// TrackKind separates visual and audio tracks.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// ClipKind selects how a clip asset is decoded.
type ClipKind string

const (
	ClipVideo ClipKind = "video"
	ClipImage ClipKind = "image"
	ClipAudio ClipKind = "audio"
)

// Timeline is an ordered list of tracks. Track 0 is drawn first.
type Timeline struct {
	Tracks     []*Track `yaml:"tracks"`
	DurationMs float64  `yaml:"duration_ms,omitempty"`
}

// Track holds clips that may overlap.
type Track struct {
	ID     string    `yaml:"id"`
	Kind   TrackKind `yaml:"kind"`
	Clips  []*Clip   `yaml:"clips"`
	Muted  bool      `yaml:"muted,omitempty"`
	Solo   bool      `yaml:"solo,omitempty"`
	Locked bool      `yaml:"locked,omitempty"`
	Volume float64   `yaml:"volume"`
	Pan    float64   `yaml:"pan,omitempty"`
}

// Clip places a span of an asset on a track. Start, Duration and Offset are
// in milliseconds; Offset is the position inside the asset at clip start.
type Clip struct {
	ID        string     `yaml:"id"`
	Kind      ClipKind   `yaml:"kind"`
	AssetID   string     `yaml:"asset_id"`
	Name      string     `yaml:"name,omitempty"`
	Start     float64    `yaml:"start"`
	Duration  float64    `yaml:"duration"`
	Offset    float64    `yaml:"offset,omitempty"`
	Transform Transform  `yaml:"transform"`
	Effects   Effects    `yaml:"effects,omitempty"`
	Keyframes []Keyframe `yaml:"keyframes,omitempty"`
}

// End returns the clip end time in ms.
func (c *Clip) End() float64 {
	return c.Start + c.Duration
}

// Active reports whether t falls inside [Start, End).
func (c *Clip) Active(t float64) bool {
	return t >= c.Start && t < c.End()
}

// Animation groups the clip keyframes by property.
func (c *Clip) Animation() keyframe.Tracks {
	return keyframe.NewTracks(c.Keyframes)
}

// ActiveClip is a clip visible at some time together with its track.
type ActiveClip struct {
	Track      *Track
	TrackIndex int
	Clip       *Clip
}

// ActiveAt returns the visual clips covering t in draw order: by track index,
// then by start time. Muted video tracks are hidden.
func (tl *Timeline) ActiveAt(t float64) []ActiveClip {
	var out []ActiveClip
	for i, tr := range tl.Tracks {
		if tr.Kind == TrackAudio || tr.Muted {
			continue
		}
		for _, c := range tr.Clips {
			if c.Kind == ClipAudio || !c.Active(t) {
				continue
			}
			out = append(out, ActiveClip{Track: tr, TrackIndex: i, Clip: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TrackIndex != out[j].TrackIndex {
			return out[i].TrackIndex < out[j].TrackIndex
		}
		return out[i].Clip.Start < out[j].Clip.Start
	})
	return out
}

// Duration returns DurationMs, or the end of the last clip when unset.
func (tl *Timeline) Duration() float64 {
	if tl.DurationMs > 0 {
		return tl.DurationMs
	}
	var end float64
	for _, tr := range tl.Tracks {
		for _, c := range tr.Clips {
			if c.End() > end {
				end = c.End()
			}
		}
	}
	return end
}

// Clip returns the clip with the given id.
func (tl *Timeline) Clip(id string) (*Clip, bool) {
	for _, tr := range tl.Tracks {
		for _, c := range tr.Clips {
			if c.ID == id {
				return c, true
			}
		}
	}
	return nil, false
}

// Clone returns a deep copy of the timeline.
func (tl *Timeline) Clone() *Timeline {
	out := &Timeline{DurationMs: tl.DurationMs, Tracks: make([]*Track, len(tl.Tracks))}
	for i, tr := range tl.Tracks {
		t := *tr
		t.Clips = make([]*Clip, len(tr.Clips))
		for j, c := range tr.Clips {
			cc := *c
			cc.Keyframes = append([]Keyframe(nil), c.Keyframes...)
			cc.Effects = c.Effects.clone()
			t.Clips[j] = &cc
		}
		out.Tracks[i] = &t
	}
	return out
}
