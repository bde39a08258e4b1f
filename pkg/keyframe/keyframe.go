// Package keyframe evaluates animated numeric properties.
package keyframe

import "sort"

// Keyframe is a control point for one numeric property. Time is in
// milliseconds relative to the owning element or clip start.
type Keyframe struct {
	Time     float64 `yaml:"time"`
	Property string  `yaml:"property"`
	Value    float64 `yaml:"value"`
	Easing   string  `yaml:"easing,omitempty"`
}

// Evaluate returns the value of a sorted keyframe list at time t.
// The result is clamped to the first and last values outside the
// keyframed range. The boolean is false only for an empty list.
func Evaluate(frames []Keyframe, t float64) (float64, bool) {
	n := len(frames)
	if n == 0 {
		return 0, false
	}
	first, last := frames[0], frames[n-1]
	if t <= first.Time {
		return first.Value, true
	}
	if t >= last.Time {
		return last.Value, true
	}

	// first index with Time > t; 1 <= i <= n-1 here
	i := sort.Search(n, func(i int) bool { return frames[i].Time > t })
	k1, k2 := frames[i-1], frames[i]
	span := k2.Time - k1.Time
	if span <= 0 {
		return k2.Value, true
	}
	u := Ease(k1.Easing, (t-k1.Time)/span)
	return k1.Value + (k2.Value-k1.Value)*u, true
}

// Tracks holds keyframes grouped by property, each group sorted by time.
// Build it once per scene load; lookups are O(log segments).
type Tracks struct {
	byProperty map[string][]Keyframe
}

// NewTracks groups and sorts frames. When two keyframes share a property
// and time, the later one in the input wins.
func NewTracks(frames []Keyframe) Tracks {
	grouped := make(map[string][]Keyframe)
	for _, kf := range frames {
		grouped[kf.Property] = append(grouped[kf.Property], kf)
	}
	for prop, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Time < list[j].Time })
		out := list[:0]
		for _, kf := range list {
			if len(out) > 0 && out[len(out)-1].Time == kf.Time {
				out[len(out)-1] = kf
				continue
			}
			out = append(out, kf)
		}
		grouped[prop] = out
	}
	return Tracks{byProperty: grouped}
}

// Value evaluates prop at t, returning fallback when prop is not animated.
func (t Tracks) Value(prop string, at float64, fallback float64) float64 {
	frames, ok := t.byProperty[prop]
	if !ok {
		return fallback
	}
	v, ok := Evaluate(frames, at)
	if !ok {
		return fallback
	}
	return v
}

// Has reports whether prop has keyframes.
func (t Tracks) Has(prop string) bool {
	return len(t.byProperty[prop]) > 0
}

// Frames returns the sorted keyframes of prop.
func (t Tracks) Frames(prop string) []Keyframe {
	return t.byProperty[prop]
}

// Len returns the number of animated properties.
func (t Tracks) Len() int {
	return len(t.byProperty)
}
