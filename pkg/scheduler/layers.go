package scheduler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/keyframe"
	"github.com/user/frameflow/pkg/scene"
)

// Z slots below every element.
const (
	zVoid       = math.MinInt32
	zBackground = math.MinInt32 + 1
)

// view is everything needed to lay out one frame.
type view struct {
	mode    Mode
	project *scene.Project
	anim    map[string]keyframe.Tracks
	width   int
	height  int
	timeMs  float64

	// letterbox pads the scene frame and fills the rest with void.
	letterbox bool
	padding   float64
	void      color.Color
}

// placement maps scene pixels to target pixels.
type placement struct {
	scale, tx, ty float64
}

func (p placement) box(tf scene.Transform, w, h float64) (x, y, bw, bh float64) {
	return p.tx + tf.X*p.scale, p.ty + tf.Y*p.scale, w * p.scale, h * p.scale
}

// fit centers a sw x sh frame inside a w x h target with pad pixels on
// every side. A target too small for the padding keeps scale 1.
func fit(sw, sh float64, w, h int, pad float64) placement {
	availW := float64(w) - 2*pad
	availH := float64(h) - 2*pad
	if availW <= 0 || availH <= 0 || sw <= 0 || sh <= 0 {
		return placement{scale: 1}
	}
	s := min(availW/sw, availH/sh)
	return placement{
		scale: s,
		tx:    (float64(w) - sw*s) / 2,
		ty:    (float64(h) - sh*s) / 2,
	}
}

// buildLayers resolves the frame described by v. Unavailable resources skip
// their element; any other resolver error is returned.
func buildLayers(ctx context.Context, v view, r resolver) ([]compositor.Layer, error) {
	if v.mode == ModeTimeline {
		return timelineLayers(ctx, v, r)
	}
	return compositionLayers(ctx, v, r)
}

func compositionLayers(ctx context.Context, v view, r resolver) ([]compositor.Layer, error) {
	sc := &v.project.Scene
	var layers []compositor.Layer
	var pl placement

	if sc.Layout == scene.LayoutInfinite {
		pl = placement{scale: 1, tx: -sc.ViewportX, ty: -sc.ViewportY}
	} else {
		pad := 0.0
		if v.letterbox {
			pad = v.padding
			layers = append(layers, solidLayer(v.void, 0, 0, float64(v.width), float64(v.height), zVoid))
		}
		pl = fit(float64(sc.Width), float64(sc.Height), v.width, v.height, pad)
		bg := scene.ColorOr(sc.Background, color.Black)
		layers = append(layers, solidLayer(bg, pl.tx, pl.ty, float64(sc.Width)*pl.scale, float64(sc.Height)*pl.scale, zBackground))
	}

	for _, e := range sc.Elements {
		tracks := v.anim[e.ID]
		tf := e.Transform.At(tracks, v.timeMs)
		if tf.Opacity <= 0 {
			continue
		}

		var src *image.RGBA
		var err error
		natural := false
		switch p := e.Payload.(type) {
		case scene.ImagePayload:
			src, err = r.image(ctx, p.Source)
		case scene.VideoPayload:
			id := p.AssetID
			if id == "" {
				id = p.Source
			}
			src, err = r.video(ctx, e.ID, id, v.timeMs)
		case scene.CameraPayload:
			src, err = r.camera(e.ID)
		case scene.TextPayload:
			src, err = r.text(p)
			natural = true
		default:
			continue
		}
		if err != nil {
			if errors.Is(err, ErrResourceUnavailable) {
				continue
			}
			return nil, err
		}

		l, ok, err := elementLayer(ctx, r, e.ID, src, tf, e.Effects, tracks, v.timeMs, pl, natural)
		if err != nil {
			return nil, err
		}
		if ok {
			layers = append(layers, l)
		}
	}
	return layers, nil
}

func timelineLayers(ctx context.Context, v view, r resolver) ([]compositor.Layer, error) {
	p := v.project
	pw, ph := float64(p.Width), float64(p.Height)
	var layers []compositor.Layer

	pad := 0.0
	if v.letterbox {
		pad = v.padding
		layers = append(layers, solidLayer(v.void, 0, 0, float64(v.width), float64(v.height), zVoid))
	}
	pl := fit(pw, ph, v.width, v.height, pad)
	layers = append(layers, solidLayer(color.Black, pl.tx, pl.ty, pw*pl.scale, ph*pl.scale, zBackground))

	// A clip starting while an earlier clip of the same track is still
	// active dissolves into it instead of stacking on top.
	lastIdx, lastTrack := -1, -1
	var lastClip *scene.Clip
	for i, ac := range p.Timeline.ActiveAt(v.timeMs) {
		c := ac.Clip
		local := v.timeMs - c.Start
		tracks := v.anim[c.ID]
		tf := c.Transform.At(tracks, local)
		if tf.Width <= 0 || tf.Height <= 0 {
			tf.X, tf.Y, tf.Width, tf.Height = 0, 0, pw, ph
		}
		tf.Z = i
		if tf.Opacity <= 0 {
			continue
		}

		var src *image.RGBA
		var err error
		switch c.Kind {
		case scene.ClipVideo:
			src, err = r.video(ctx, c.ID, c.AssetID, c.Offset+local)
		case scene.ClipImage:
			src, err = r.image(ctx, c.AssetID)
		default:
			continue
		}
		if err != nil {
			if errors.Is(err, ErrResourceUnavailable) {
				continue
			}
			return nil, err
		}

		if lastIdx >= 0 && ac.TrackIndex == lastTrack && layers[lastIdx].Mix == nil && !src.Rect.Empty() {
			crossDissolve(&layers[lastIdx], src, dissolveProgress(lastClip, c, v.timeMs))
			continue
		}

		l, ok, err := elementLayer(ctx, r, c.ID, src, tf, c.Effects, tracks, local, pl, false)
		if err != nil {
			return nil, err
		}
		if ok {
			layers = append(layers, l)
			lastIdx, lastTrack, lastClip = len(layers)-1, ac.TrackIndex, c
		}
	}
	return layers, nil
}

// dissolveProgress is how far t lies into the overlap of out and in.
func dissolveProgress(out, in *scene.Clip, t float64) float64 {
	span := out.End() - in.Start
	if span <= 0 {
		return 1
	}
	return min(1, max(0, (t-in.Start)/span))
}

// crossDissolve makes l fade from its source into in, cover-cropped to the
// layer's box.
func crossDissolve(l *compositor.Layer, in *image.RGBA, progress float64) {
	crop := coverCrop(in.Rect.Dx(), in.Rect.Dy(), l.Width, l.Height).Add(in.Rect.Min)
	l.Mix = in.SubImage(crop).(*image.RGBA)
	l.Progress = progress
}

// elementLayer builds the layer of one element or clip. Sources are
// cover-fitted into the box; natural sources such as text keep their size.
func elementLayer(ctx context.Context, r resolver, owner string, src *image.RGBA, tf scene.Transform, fx scene.Effects, tracks keyframe.Tracks, t float64, pl placement, natural bool) (compositor.Layer, bool, error) {
	w, h := tf.Width, tf.Height
	if natural {
		w, h = float64(src.Rect.Dx()), float64(src.Rect.Dy())
	}
	if w <= 0 || h <= 0 || src.Rect.Empty() {
		return compositor.Layer{}, false, nil
	}

	crop := src.Rect
	if !natural && fx.Projection == nil {
		crop = coverCrop(src.Rect.Dx(), src.Rect.Dy(), w, h)
	}

	x, y, bw, bh := pl.box(tf, w, h)
	l := compositor.Layer{
		Source:   src.SubImage(crop).(*image.RGBA),
		X:        x,
		Y:        y,
		Width:    bw,
		Height:   bh,
		Rotation: tf.Rotation,
		Opacity:  tf.Opacity,
		Z:        tf.Z,
	}

	l.ChromaKey = fx.ChromaKey
	if ex := fx.Extrusion; ex != nil && ex.Depth > 0 {
		l.Extrusion = &compositor.Extrusion{Depth: ex.Depth}
		if ex.Color != "" {
			l.Extrusion.Color = scene.ColorOr(ex.Color, nil)
		}
	}
	if p := fx.Projection; p != nil {
		proj := p.At(tracks, t)
		l.Projection = &proj
	}
	if ref := fx.LUT; ref != nil && ref.Source != "" {
		h, err := r.lut(ctx, ref.Source)
		switch {
		case err == nil:
			l.LUT = h
		case !errors.Is(err, ErrResourceUnavailable):
			return compositor.Layer{}, false, err
		}
	}
	if seg := fx.Segmentation; seg != nil {
		m, err := r.mask(ctx, owner, seg.Model, src)
		switch {
		case err == nil:
			l.Mask = cropMask(m, src.Rect, crop)
		case !errors.Is(err, ErrResourceUnavailable):
			return compositor.Layer{}, false, err
		}
	}
	return l, true, nil
}

// coverCrop returns the centered source rectangle that fills a w x h box
// while keeping the source aspect ratio.
func coverCrop(iw, ih int, w, h float64) image.Rectangle {
	s := max(w/float64(iw), h/float64(ih))
	cw := min(float64(iw), w/s)
	ch := min(float64(ih), h/s)
	x0 := int(math.Round((float64(iw) - cw) / 2))
	y0 := int(math.Round((float64(ih) - ch) / 2))
	x1 := min(iw, x0+max(1, int(math.Round(cw))))
	y1 := min(ih, y0+max(1, int(math.Round(ch))))
	return image.Rect(x0, y0, x1, y1)
}

// cropMask applies the source crop to a mask that may differ in size from
// the source.
func cropMask(m *image.Gray, full, crop image.Rectangle) *image.Gray {
	if m == nil || crop == full {
		return m
	}
	mb := m.Rect
	sx := float64(mb.Dx()) / float64(full.Dx())
	sy := float64(mb.Dy()) / float64(full.Dy())
	r := image.Rect(
		mb.Min.X+int(math.Round(float64(crop.Min.X-full.Min.X)*sx)),
		mb.Min.Y+int(math.Round(float64(crop.Min.Y-full.Min.Y)*sy)),
		mb.Min.X+int(math.Round(float64(crop.Max.X-full.Min.X)*sx)),
		mb.Min.Y+int(math.Round(float64(crop.Max.Y-full.Min.Y)*sy)),
	).Intersect(mb)
	if r.Empty() {
		return m
	}
	return m.SubImage(r).(*image.Gray)
}

// solidLayer fills a box with c through a one-pixel texture.
func solidLayer(c color.Color, x, y, w, h float64, z int) compositor.Layer {
	px := image.NewRGBA(image.Rect(0, 0, 1, 1))
	px.Set(0, 0, c)
	return compositor.Layer{Source: px, X: x, Y: y, Width: w, Height: h, Opacity: 1, Z: z}
}
