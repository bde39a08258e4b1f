package compositor

// WGSL compute passes for the GPU device. Each invocation shades one target
// pixel of a layer's bounding box and blends it over the packed RGBA target
// (one u32 per pixel, red in the low byte). The math mirrors pipelines.go so
// both devices produce the same bytes for untransformed layers.

// Pass flags in params.dims.w.
const (
	flagKeyed uint32 = 1 << iota
	flagMask
	flagLUT
	flagTint
	flagMix
)

const shaderPrelude = `
struct Params {
    dims: vec4<u32>,      // target width, height, row stride in words, flags
    src: vec4<u32>,       // source width, height, mix width, height
    aux: vec4<u32>,       // mask width, height, lut size, dim
    area: vec4<i32>,      // dispatch origin x, y, width, height
    quad: vec4<f32>,      // center x, y, width, height
    xform: vec4<f32>,     // cos, sin, opacity, progress
    key: vec4<f32>,       // key rgb, similarity
    extra: vec4<f32>,     // smoothness, aspect, screen distance, dim factor
    tint: vec4<f32>,
    domain_lo: vec4<f32>,
    domain_hi: vec4<f32>,
    view: vec4<f32>,      // sin pitch, cos pitch, sin yaw, cos yaw
}

@group(0) @binding(0) var<storage, read_write> target_px: array<u32>;
@group(0) @binding(1) var<storage, read> src_px: array<u32>;
@group(0) @binding(2) var<storage, read> mix_px: array<u32>;
@group(0) @binding(3) var<storage, read> mask_px: array<u32>;
@group(0) @binding(4) var<storage, read> lut_data: array<f32>;
@group(0) @binding(5) var<uniform> params: Params;

const FLAG_KEYED: u32 = 1u;
const FLAG_MASK: u32 = 2u;
const FLAG_LUT: u32 = 4u;
const FLAG_TINT: u32 = 8u;
const FLAG_MIX: u32 = 16u;
const PI: f32 = 3.141592653589793;

fn unpack_px(p: u32) -> vec4<f32> {
    return vec4<f32>(f32(p & 0xffu), f32((p >> 8u) & 0xffu), f32((p >> 16u) & 0xffu), f32(p >> 24u));
}

fn to_byte(v: f32) -> u32 {
    return u32(clamp(v, 0.0, 1.0) * 255.0 + 0.5);
}

// tex_coord returns the two neighbouring texel indices and the weight of the second.
fn tex_coord(u: f32, n: u32) -> vec3<f32> {
    let x = u * f32(n) - 0.5;
    let fl = floor(x);
    let hi = i32(n) - 1;
    let i0 = clamp(i32(fl), 0, hi);
    let i1 = clamp(i32(fl) + 1, 0, hi);
    return vec3<f32>(f32(i0), f32(i1), x - fl);
}

fn bilerp(c00: vec4<f32>, c10: vec4<f32>, c01: vec4<f32>, c11: vec4<f32>, fx: f32, fy: f32) -> vec4<f32> {
    let top = c00 + (c10 - c00) * fx;
    let bot = c01 + (c11 - c01) * fx;
    return top + (bot - top) * fy;
}

fn src_at(u: f32, v: f32) -> vec4<f32> {
    let w = params.src.x;
    let tx = tex_coord(u, w);
    let ty = tex_coord(v, params.src.y);
    let x0 = u32(tx.x);
    let x1 = u32(tx.y);
    let y0 = u32(ty.x);
    let y1 = u32(ty.y);
    return bilerp(unpack_px(src_px[y0 * w + x0]), unpack_px(src_px[y0 * w + x1]),
        unpack_px(src_px[y1 * w + x0]), unpack_px(src_px[y1 * w + x1]), tx.z, ty.z) / 255.0;
}

fn mix_at(u: f32, v: f32) -> vec4<f32> {
    let w = params.src.z;
    let tx = tex_coord(u, w);
    let ty = tex_coord(v, params.src.w);
    let x0 = u32(tx.x);
    let x1 = u32(tx.y);
    let y0 = u32(ty.x);
    let y1 = u32(ty.y);
    return bilerp(unpack_px(mix_px[y0 * w + x0]), unpack_px(mix_px[y0 * w + x1]),
        unpack_px(mix_px[y1 * w + x0]), unpack_px(mix_px[y1 * w + x1]), tx.z, ty.z) / 255.0;
}

fn dissolve(c: vec4<f32>, u: f32, v: f32) -> vec4<f32> {
    let t = clamp(params.xform.w, 0.0, 1.0);
    return c + (mix_at(u, v) - c) * t;
}

fn mask_at(u: f32, v: f32) -> f32 {
    let w = params.aux.x;
    let tx = tex_coord(u, w);
    let ty = tex_coord(v, params.aux.y);
    let x0 = u32(tx.x);
    let x1 = u32(tx.y);
    let y0 = u32(ty.x);
    let y1 = u32(ty.y);
    let top = f32(mask_px[y0 * w + x0]) + (f32(mask_px[y0 * w + x1]) - f32(mask_px[y0 * w + x0])) * tx.z;
    let bot = f32(mask_px[y1 * w + x0]) + (f32(mask_px[y1 * w + x1]) - f32(mask_px[y1 * w + x0])) * tx.z;
    return (top + (bot - top) * ty.z) / 255.0;
}

fn edge(e0: f32, e1: f32, x: f32) -> f32 {
    if (e1 <= e0) {
        return select(1.0, 0.0, x < e0);
    }
    let t = clamp((x - e0) / (e1 - e0), 0.0, 1.0);
    return t * t * (3.0 - 2.0 * t);
}

fn lut_at(r: u32, g: u32, b: u32) -> vec3<f32> {
    let n = params.aux.z;
    let i = ((b * n + g) * n + r) * 3u;
    return vec3<f32>(lut_data[i], lut_data[i + 1u], lut_data[i + 2u]);
}

fn apply_lut(rgb: vec3<f32>) -> vec3<f32> {
    let n = params.aux.z;
    let f = clamp((rgb - params.domain_lo.xyz) / (params.domain_hi.xyz - params.domain_lo.xyz),
        vec3<f32>(0.0), vec3<f32>(1.0)) * f32(n - 1u);
    let i0 = vec3<u32>(f);
    let i1 = min(i0 + vec3<u32>(1u), vec3<u32>(n - 1u));
    let d = f - vec3<f32>(i0);
    let c00 = lut_at(i0.x, i0.y, i0.z) + (lut_at(i1.x, i0.y, i0.z) - lut_at(i0.x, i0.y, i0.z)) * d.x;
    let c10 = lut_at(i0.x, i1.y, i0.z) + (lut_at(i1.x, i1.y, i0.z) - lut_at(i0.x, i1.y, i0.z)) * d.x;
    let c01 = lut_at(i0.x, i0.y, i1.z) + (lut_at(i1.x, i0.y, i1.z) - lut_at(i0.x, i0.y, i1.z)) * d.x;
    let c11 = lut_at(i0.x, i1.y, i1.z) + (lut_at(i1.x, i1.y, i1.z) - lut_at(i0.x, i1.y, i1.z)) * d.x;
    let c0 = c00 + (c10 - c00) * d.y;
    let c1 = c01 + (c11 - c01) * d.y;
    return c0 + (c1 - c0) * d.z;
}

// shade takes a premultiplied color and returns the premultiplied result.
fn shade(c: vec4<f32>, u: f32, v: f32) -> vec4<f32> {
    let flags = params.dims.w;
    var a = c.a;
    if (a <= 0.0) {
        return vec4<f32>(0.0);
    }
    var rgb = c.rgb / a;
    if ((flags & FLAG_MASK) != 0u) {
        a = a * mask_at(u, v);
    }
    if ((flags & FLAG_KEYED) != 0u) {
        a = a * edge(0.0, params.extra.x, distance(rgb, params.key.xyz) - params.key.w);
    }
    if (params.aux.w != 0u) {
        if ((flags & FLAG_TINT) != 0u) {
            rgb = params.tint.xyz;
        } else {
            rgb = rgb * params.extra.w;
        }
    }
    if ((flags & FLAG_LUT) != 0u) {
        rgb = apply_lut(rgb);
    }
    a = a * clamp(params.xform.z, 0.0, 1.0);
    if (a <= 0.0) {
        return vec4<f32>(0.0);
    }
    return vec4<f32>(rgb * a, a);
}

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= u32(params.area.z) || id.y >= u32(params.area.w)) {
        return;
    }
    let x = params.area.x + i32(id.x);
    let y = params.area.y + i32(id.y);
    let dx = f32(x) + 0.5 - params.quad.x;
    let dy = f32(y) + 0.5 - params.quad.y;
    let u = (dx * params.xform.x + dy * params.xform.y) / params.quad.z + 0.5;
    let v = (-dx * params.xform.y + dy * params.xform.x) / params.quad.w + 0.5;
    if (u < 0.0 || u >= 1.0 || v < 0.0 || v >= 1.0) {
        return;
    }
    let c = shade(fetch(u, v), u, v);
    if (c.a <= 0.0) {
        return;
    }
    let idx = u32(y) * params.dims.z + u32(x);
    let dst = unpack_px(target_px[idx]) / 255.0;
    let res = c + dst * (1.0 - c.a);
    target_px[idx] = to_byte(res.x) | (to_byte(res.y) << 8u) | (to_byte(res.z) << 16u) | (to_byte(res.w) << 24u);
}
`

const basicFetch = `
fn fetch(u: f32, v: f32) -> vec4<f32> {
    return src_at(u, v);
}
`

const mixFetch = `
fn fetch(u: f32, v: f32) -> vec4<f32> {
    return dissolve(src_at(u, v), u, v);
}
`

const equirectFetch = `
fn fetch(u: f32, v: f32) -> vec4<f32> {
    var x = (u * 2.0 - 1.0) * params.extra.y;
    var y = -(v * 2.0 - 1.0);
    var z = -params.extra.z;
    let n = sqrt(x * x + y * y + z * z);
    x = x / n;
    y = y / n;
    z = z / n;

    let y1 = y * params.view.y - z * params.view.x;
    let z1 = z * params.view.y + y * params.view.x;
    let x2 = x * params.view.w + z1 * params.view.z;
    let z2 = z1 * params.view.w - x * params.view.z;

    let phi = asin(clamp(y1, -1.0, 1.0));
    let theta = atan2(z2, x2);
    let su = (theta + PI) / (2.0 * PI);
    let sv = 1.0 - (phi + PI / 2.0) / PI;
    let c = src_at(su, sv);
    if ((params.dims.w & FLAG_MIX) != 0u) {
        return dissolve(c, su, sv);
    }
    return c;
}
`

// pass selects a compute pipeline.
type pass int

const (
	passBasic pass = iota
	passMix
	passEquirect
	passCount
)

func (p pass) String() string {
	switch p {
	case passBasic:
		return "basic"
	case passMix:
		return "mix"
	case passEquirect:
		return "equirect"
	default:
		return "unknown"
	}
}

func (p pass) source() string {
	switch p {
	case passMix:
		return shaderPrelude + mixFetch
	case passEquirect:
		return shaderPrelude + equirectFetch
	default:
		return shaderPrelude + basicFetch
	}
}

// passFor picks the pipeline for a layer.
func passFor(l Layer) pass {
	switch {
	case l.Projection != nil:
		return passEquirect
	case l.Mix != nil:
		return passMix
	default:
		return passBasic
	}
}
