package compositor

import (
	"image"
	"math"
)

// sampleRGBA samples a premultiplied image at normalised (u, v) with
// bilinear filtering and clamp-to-edge addressing.
func sampleRGBA(img *image.RGBA, u, v float64) (r, g, b, a float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0, 0, 0, 0
	}
	x0, x1, fx := texel(u, w)
	y0, y1, fy := texel(v, h)

	p00 := img.PixOffset(bounds.Min.X+x0, bounds.Min.Y+y0)
	p10 := img.PixOffset(bounds.Min.X+x1, bounds.Min.Y+y0)
	p01 := img.PixOffset(bounds.Min.X+x0, bounds.Min.Y+y1)
	p11 := img.PixOffset(bounds.Min.X+x1, bounds.Min.Y+y1)

	var out [4]float64
	for c := 0; c < 4; c++ {
		top := lerp(float64(img.Pix[p00+c]), float64(img.Pix[p10+c]), fx)
		bot := lerp(float64(img.Pix[p01+c]), float64(img.Pix[p11+c]), fx)
		out[c] = lerp(top, bot, fy) / 255
	}
	return out[0], out[1], out[2], out[3]
}

// sampleGray samples a mask at normalised (u, v). A nil mask is opaque.
func sampleGray(img *image.Gray, u, v float64) float64 {
	if img == nil {
		return 1
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 1
	}
	x0, x1, fx := texel(u, w)
	y0, y1, fy := texel(v, h)

	at := func(x, y int) float64 {
		return float64(img.Pix[img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)])
	}
	top := lerp(at(x0, y0), at(x1, y0), fx)
	bot := lerp(at(x0, y1), at(x1, y1), fx)
	return lerp(top, bot, fy) / 255
}

// texel maps a normalised coordinate to the two neighbouring texel indices
// and the weight of the second.
func texel(u float64, n int) (i0, i1 int, f float64) {
	x := u*float64(n) - 0.5
	fl := math.Floor(x)
	f = x - fl
	i0 = clampIndex(int(fl), n)
	i1 = clampIndex(int(fl)+1, n)
	return i0, i1, f
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func smoothstep(edge0, edge1, x float64) float64 {
	if edge1 <= edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}
