package compositor

import (
	"image"
	"math"

	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/scene"
)

// dimFactor darkens inner extrusion instances.
const dimFactor = 0.6

// quad is a rotated box in target pixels.
type quad struct {
	cx, cy   float64
	w, h     float64
	cos, sin float64
}

func newQuad(l Layer) quad {
	rad := l.Rotation * math.Pi / 180
	return quad{
		cx:  l.X + l.Width/2,
		cy:  l.Y + l.Height/2,
		w:   l.Width,
		h:   l.Height,
		cos: math.Cos(rad),
		sin: math.Sin(rad),
	}
}

func (q quad) shift(offset float64) quad {
	q.cx += offset
	q.cy += offset
	return q
}

// bounds returns the integer bounding box of the rotated quad.
func (q quad) bounds() image.Rectangle {
	hw := math.Abs(q.w/2*q.cos) + math.Abs(q.h/2*q.sin)
	hh := math.Abs(q.w/2*q.sin) + math.Abs(q.h/2*q.cos)
	return image.Rect(
		int(math.Floor(q.cx-hw)), int(math.Floor(q.cy-hh)),
		int(math.Ceil(q.cx+hw)), int(math.Ceil(q.cy+hh)),
	)
}

// local maps a target point to normalised quad coordinates.
func (q quad) local(px, py float64) (u, v float64, ok bool) {
	dx, dy := px-q.cx, py-q.cy
	lx := dx*q.cos + dy*q.sin
	ly := -dx*q.sin + dy*q.cos
	u, v = lx/q.w+0.5, ly/q.h+0.5
	return u, v, u >= 0 && u < 1 && v >= 0 && v < 1
}

// program is a layer bound to its pipeline state for one frame.
type program struct {
	layer Layer
	quad  quad
	table *lut.Table

	keyed      bool
	key        [3]float64
	similarity float64
	smoothness float64

	tint    bool
	tintRGB [3]float64

	equirect *equirect
}

func newProgram(l Layer, table *lut.Table) *program {
	p := &program{layer: l, quad: newQuad(l), table: table}
	if ck := l.ChromaKey; ck != nil {
		p.keyed = true
		p.key = ck.Color
		p.similarity = ck.Similarity
		p.smoothness = ck.Smoothness
	}
	if ex := l.Extrusion; ex != nil && ex.Color != nil {
		r, g, b, a := ex.Color.RGBA()
		if a > 0 {
			p.tint = true
			p.tintRGB = [3]float64{float64(r) / float64(a), float64(g) / float64(a), float64(b) / float64(a)}
		}
	}
	if l.Projection != nil {
		p.equirect = newEquirect(*l.Projection, l.Width/l.Height)
	}
	return p
}

// fetch returns the premultiplied source color at (u, v) for the layer's
// pipeline: equirect reprojection, cross-dissolve mix or a plain quad.
func (p *program) fetch(u, v float64) (r, g, b, a float64) {
	l := p.layer
	if p.equirect != nil {
		u, v = p.equirect.lookup(u, v)
	}
	r, g, b, a = sampleRGBA(l.Source, u, v)
	if l.Mix != nil {
		t := clamp01(l.Progress)
		r2, g2, b2, a2 := sampleRGBA(l.Mix, u, v)
		r, g, b, a = lerp(r, r2, t), lerp(g, g2, t), lerp(b, b2, t), lerp(a, a2, t)
	}
	return r, g, b, a
}

// shade runs the fragment stage and returns a premultiplied color.
func (p *program) shade(u, v float64, dim bool) (r, g, b, a float64, ok bool) {
	r, g, b, a = p.fetch(u, v)
	if a <= 0 {
		return 0, 0, 0, 0, false
	}
	r, g, b = r/a, g/a, b/a

	a *= sampleGray(p.layer.Mask, u, v)
	if p.keyed {
		dist := math.Sqrt((r-p.key[0])*(r-p.key[0]) + (g-p.key[1])*(g-p.key[1]) + (b-p.key[2])*(b-p.key[2]))
		a *= smoothstep(0, p.smoothness, dist-p.similarity)
	}
	if dim {
		if p.tint {
			r, g, b = p.tintRGB[0], p.tintRGB[1], p.tintRGB[2]
		} else {
			r, g, b = r*dimFactor, g*dimFactor, b*dimFactor
		}
	}
	if p.table != nil {
		r, g, b = p.table.Apply(r, g, b)
	}
	a *= clamp01(p.layer.Opacity)
	if a <= 0 {
		return 0, 0, 0, 0, false
	}
	return r * a, g * a, b * a, a, true
}

// equirect maps view coordinates to equirectangular texture coordinates.
type equirect struct {
	aspect     float64
	screenDist float64
	sinP, cosP float64
	sinY, cosY float64
}

func newEquirect(proj scene.Projection, aspect float64) *equirect {
	fov := proj.FOV
	if fov <= 0 || fov >= 180 {
		fov = scene.DefaultProjection().FOV
	}
	pitch := proj.Pitch * math.Pi / 180
	yaw := proj.Yaw * math.Pi / 180
	return &equirect{
		aspect:     aspect,
		screenDist: 1 / math.Tan(fov*math.Pi/180/2),
		sinP:       math.Sin(pitch),
		cosP:       math.Cos(pitch),
		sinY:       math.Sin(yaw),
		cosY:       math.Cos(yaw),
	}
}

// lookup casts a ray through view point (u, v), rotates it by pitch about X
// then yaw about Y and returns its spherical texture coordinates.
func (e *equirect) lookup(u, v float64) (float64, float64) {
	x := (u*2 - 1) * e.aspect
	y := -(v*2 - 1)
	z := -e.screenDist
	n := math.Sqrt(x*x + y*y + z*z)
	x, y, z = x/n, y/n, z/n

	y, z = y*e.cosP-z*e.sinP, z*e.cosP+y*e.sinP
	x, z = x*e.cosY+z*e.sinY, z*e.cosY-x*e.sinY

	phi := math.Asin(math.Max(-1, math.Min(1, y)))
	theta := math.Atan2(z, x)
	return (theta + math.Pi) / (2 * math.Pi), 1 - (phi+math.Pi/2)/math.Pi
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
