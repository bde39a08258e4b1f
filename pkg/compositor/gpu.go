package compositor

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"

	// Register the platform GPU backends and the software rasterizer.
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
)

// paramsSize is the byte size of the Params uniform: twelve 16-byte vectors.
const paramsSize = 192

// minBufferSize keeps placeholder bindings non-empty.
const minBufferSize = 16

// gpuDevice runs the quad, mix and equirect pipelines as wgpu compute passes.
// The target is a storage buffer of packed RGBA words with a row pitch of
// alignPitch(width) bytes.
type gpuDevice struct {
	mu      sync.Mutex
	log     ports.Logger
	maxSize int
	name    string

	instance   *wgpu.Instance
	adapter    *wgpu.Adapter
	device     *wgpu.Device
	layout     *wgpu.BindGroupLayout
	pipeLayout *wgpu.PipelineLayout
	modules    []*wgpu.ShaderModule
	pipelines  [passCount]*wgpu.ComputePipeline
	empty      *wgpu.Buffer

	width   int
	height  int
	pitch   int
	target  *wgpu.Buffer
	staging *wgpu.Buffer
	zero    []byte

	luts    map[LUTHandle]*gpuLUT
	nextLUT LUTHandle
	closed  bool
}

type gpuLUT struct {
	table *lut.Table
	buf   *wgpu.Buffer
}

type releaser interface{ Release() }

// releaseList frees per-frame GPU objects in reverse creation order.
type releaseList []releaser

func (r *releaseList) add(x releaser) { *r = append(*r, x) }

func (r releaseList) release() {
	for i := len(r) - 1; i >= 0; i-- {
		r[i].Release()
	}
}

// openGPU requests an adapter and builds the pipelines. Software adapters
// are refused unless allowSoftware is set; the shader device is faster than
// a CPU rasterizer behind a GPU API.
func openGPU(cfg Config, log ports.Logger, allowSoftware bool) (*gpuDevice, error) {
	maxSize := cfg.MaxTextureSize
	if maxSize <= 0 {
		maxSize = DefaultMaxTextureSize
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxSize || cfg.Height > maxSize {
		return nil, fmt.Errorf("%w: %dx%d (max %d)", ErrInvalidSize, cfg.Width, cfg.Height, maxSize)
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	d := &gpuDevice{
		log:      log,
		maxSize:  maxSize,
		instance: instance,
		luts:     make(map[LUTHandle]*gpuLUT),
	}
	if err := d.init(allowSoftware); err != nil {
		d.releaseAll()
		return nil, err
	}
	if err := d.allocate(cfg.Width, cfg.Height); err != nil {
		d.releaseAll()
		return nil, err
	}
	return d, nil
}

func (d *gpuDevice) init(allowSoftware bool) error {
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = adapter
	info := adapter.Info()
	d.name = info.Name
	if info.DeviceType == gputypes.DeviceTypeCPU && !allowSoftware {
		return fmt.Errorf("adapter %q is a software rasterizer", info.Name)
	}
	if n := adapter.Limits().MaxStorageBuffersPerShaderStage; n < 5 {
		return fmt.Errorf("adapter %q allows %d storage buffers per stage, need 5", info.Name, n)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	d.device = device

	storage := func(binding uint32, kind gputypes.BufferBindingType) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: kind},
		}
	}
	d.layout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "layer",
		Entries: []wgpu.BindGroupLayoutEntry{
			storage(0, gputypes.BufferBindingTypeStorage),
			storage(1, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(2, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(3, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(4, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(5, gputypes.BufferBindingTypeUniform),
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	d.pipeLayout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "layer",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.layout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	vulkan := info.Backend == gputypes.BackendVulkan
	for p := passBasic; p < passCount; p++ {
		module, err := d.shaderModule(p, vulkan)
		if err != nil {
			return err
		}
		d.modules = append(d.modules, module)
		d.pipelines[p], err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:      p.String(),
			Layout:     d.pipeLayout,
			Module:     module,
			EntryPoint: "main",
		})
		if err != nil {
			return fmt.Errorf("create %s pipeline: %w", p, err)
		}
	}

	d.empty, err = d.upload("empty", make([]byte, minBufferSize), wgpu.BufferUsageStorage)
	if err != nil {
		return err
	}
	d.log.Debug("GPU adapter %q (%s, %s)", info.Name, info.Backend, info.DeviceType)
	return nil
}

// shaderModule compiles a pass. Vulkan takes the SPIR-V naga produced; the
// other backends translate the WGSL themselves.
func (d *gpuDevice) shaderModule(p pass, vulkan bool) (*wgpu.ShaderModule, error) {
	src := p.source()
	spirv, err := compileSPIRV(src)
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", p, err)
	}
	desc := &wgpu.ShaderModuleDescriptor{Label: p.String()}
	if vulkan {
		desc.SPIRV = spirv
	} else {
		desc.WGSL = src
	}
	module, err := d.device.CreateShaderModule(desc)
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", p, err)
	}
	return module, nil
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}

func (d *gpuDevice) allocate(width, height int) error {
	if width <= 0 || height <= 0 || width > d.maxSize || height > d.maxSize {
		return fmt.Errorf("%w: %dx%d (max %d)", ErrInvalidSize, width, height, d.maxSize)
	}
	pitch := alignPitch(width)
	size := uint64(pitch * height)
	target, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "target",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create target buffer: %w", err)
	}
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		target.Release()
		return fmt.Errorf("create staging buffer: %w", err)
	}
	if d.target != nil {
		d.target.Release()
		d.staging.Release()
	}
	d.width, d.height, d.pitch = width, height, pitch
	d.target, d.staging = target, staging
	d.zero = make([]byte, size)
	return nil
}

// upload creates a buffer holding data. Sizes are padded to a multiple of
// four bytes and never below minBufferSize.
func (d *gpuDevice) upload(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	size := uint64(max(len(data), minBufferSize)+3) &^ 3
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	if len(data) > 0 {
		if err := d.device.Queue().WriteBuffer(buf, 0, data); err != nil {
			buf.Release()
			return nil, fmt.Errorf("write %s buffer: %w", label, err)
		}
	}
	return buf, nil
}

func (d *gpuDevice) Render(layers []Layer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	var frame releaseList
	defer frame.release()

	queue := d.device.Queue()
	if err := queue.WriteBuffer(d.target, 0, d.zero); err != nil {
		return fmt.Errorf("clear target: %w", err)
	}
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	for _, l := range sortLayers(layers) {
		if err := d.draw(enc, l, &frame); err != nil {
			enc.DiscardEncoding()
			return err
		}
	}
	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	if _, err := queue.Submit(cmd); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return d.device.WaitIdle()
}

// inputs are the per-layer buffers shared by every extrusion instance.
type inputs struct {
	kind  pass
	flags uint32

	src, mix, mask, lut *wgpu.Buffer
	srcW, srcH          int
	mixW, mixH          int
	maskW, maskH        int
	lutSize             int
}

func (d *gpuDevice) draw(enc *wgpu.CommandEncoder, l Layer, frame *releaseList) error {
	if l.Source == nil || l.Width <= 0 || l.Height <= 0 || l.Opacity <= 0 || l.Source.Bounds().Empty() {
		return nil
	}
	gl := d.luts[l.LUT]
	var table *lut.Table
	if gl != nil {
		table = gl.table
	}
	p := newProgram(l, table)

	in, err := d.inputs(l, gl, frame)
	if err != nil {
		return err
	}
	if p.keyed {
		in.flags |= flagKeyed
	}
	if p.tint {
		in.flags |= flagTint
	}

	if l.Extrusion == nil || l.Extrusion.Depth <= 0 {
		return d.dispatch(enc, p, in, 0, false, frame)
	}
	depth := l.Extrusion.Depth
	for i := 0; i < depth; i++ {
		if err := d.dispatch(enc, p, in, float64(depth-i), i < depth-1, frame); err != nil {
			return err
		}
	}
	return nil
}

func (d *gpuDevice) inputs(l Layer, gl *gpuLUT, frame *releaseList) (*inputs, error) {
	in := &inputs{kind: passFor(l), mix: d.empty, mask: d.empty, lut: d.empty, mixW: 1, mixH: 1}

	data, w, h := packRGBA(l.Source)
	src, err := d.upload("source", data, wgpu.BufferUsageStorage)
	if err != nil {
		return nil, err
	}
	frame.add(src)
	in.src, in.srcW, in.srcH = src, w, h

	if l.Mix != nil {
		in.flags |= flagMix
		if !l.Mix.Bounds().Empty() {
			data, w, h := packRGBA(l.Mix)
			mix, err := d.upload("mix", data, wgpu.BufferUsageStorage)
			if err != nil {
				return nil, err
			}
			frame.add(mix)
			in.mix, in.mixW, in.mixH = mix, w, h
		}
	}
	if l.Mask != nil && !l.Mask.Bounds().Empty() {
		data, w, h := packGray(l.Mask)
		mask, err := d.upload("mask", data, wgpu.BufferUsageStorage)
		if err != nil {
			return nil, err
		}
		frame.add(mask)
		in.flags |= flagMask
		in.mask, in.maskW, in.maskH = mask, w, h
	}
	if gl != nil {
		in.flags |= flagLUT
		in.lut, in.lutSize = gl.buf, gl.table.Size
	}
	return in, nil
}

// dispatch encodes one instance of a layer shifted by offset pixels.
func (d *gpuDevice) dispatch(enc *wgpu.CommandEncoder, p *program, in *inputs, offset float64, dim bool, frame *releaseList) error {
	q := p.quad.shift(offset)
	area := q.bounds().Intersect(image.Rect(0, 0, d.width, d.height))
	if area.Empty() {
		return nil
	}
	uniform, err := d.upload("params", d.params(p, in, q, area, dim), wgpu.BufferUsageUniform)
	if err != nil {
		return err
	}
	frame.add(uniform)

	bind := func(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
		return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: buf.Size()}
	}
	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "layer",
		Layout: d.layout,
		Entries: []wgpu.BindGroupEntry{
			bind(0, d.target),
			bind(1, in.src),
			bind(2, in.mix),
			bind(3, in.mask),
			bind(4, in.lut),
			bind(5, uniform),
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	frame.add(group)

	cp, err := enc.BeginComputePass(nil)
	if err != nil {
		return fmt.Errorf("begin %s pass: %w", in.kind, err)
	}
	cp.SetPipeline(d.pipelines[in.kind])
	cp.SetBindGroup(0, group, nil)
	cp.Dispatch(uint32((area.Dx()+7)/8), uint32((area.Dy()+7)/8), 1)
	if err := cp.End(); err != nil {
		return fmt.Errorf("end %s pass: %w", in.kind, err)
	}
	return nil
}

// params encodes the Params uniform declared in shaderPrelude.
func (d *gpuDevice) params(p *program, in *inputs, q quad, area image.Rectangle, dim bool) []byte {
	b := make([]byte, 0, paramsSize)
	u32 := func(vs ...uint32) {
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint32(b, v)
		}
	}
	i32 := func(vs ...int) {
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint32(b, uint32(int32(v)))
		}
	}
	f32 := func(vs ...float64) {
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
		}
	}
	var dimFlag uint32
	if dim {
		dimFlag = 1
	}

	u32(uint32(d.width), uint32(d.height), uint32(d.pitch/4), in.flags)
	u32(uint32(in.srcW), uint32(in.srcH), uint32(in.mixW), uint32(in.mixH))
	u32(uint32(in.maskW), uint32(in.maskH), uint32(in.lutSize), dimFlag)
	i32(area.Min.X, area.Min.Y, area.Dx(), area.Dy())
	f32(q.cx, q.cy, q.w, q.h)
	f32(q.cos, q.sin, clamp01(p.layer.Opacity), clamp01(p.layer.Progress))
	f32(p.key[0], p.key[1], p.key[2], p.similarity)

	var aspect, screenDist float64
	view := [4]float64{0, 1, 0, 1}
	if e := p.equirect; e != nil {
		aspect, screenDist = e.aspect, e.screenDist
		view = [4]float64{e.sinP, e.cosP, e.sinY, e.cosY}
	}
	f32(p.smoothness, aspect, screenDist, dimFactor)
	f32(p.tintRGB[0], p.tintRGB[1], p.tintRGB[2], 0)

	lo, hi := [3]float32{}, [3]float32{1, 1, 1}
	if p.table != nil {
		lo, hi = p.table.Domain()
	}
	f32(float64(lo[0]), float64(lo[1]), float64(lo[2]), 0)
	f32(float64(hi[0]), float64(hi[1]), float64(hi[2]), 0)
	f32(view[0], view[1], view[2], view[3])
	return b
}

// packRGBA returns img's pixels as tightly packed rows.
func packRGBA(img *image.RGBA) ([]byte, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(out[y*w*4:(y+1)*w*4], img.Pix[off:off+w*4])
	}
	return out, w, h
}

// packGray widens each mask byte to a word.
func packGray(img *image.Gray) ([]byte, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < w; x++ {
			out[(y*w+x)*4] = img.Pix[off+x]
		}
	}
	return out, w, h
}

func (d *gpuDevice) ReadPixels(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	size := d.target.Size()
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	enc.CopyBufferToBuffer(d.target, 0, d.staging, 0, size)
	cmd, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish encoder: %w", err)
	}
	if _, err := d.device.Queue().Submit(cmd); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := d.staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	rng, err := d.staging.MappedRange(0, size)
	if err != nil {
		_ = d.staging.Unmap()
		return nil, fmt.Errorf("staging range: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	pix := rng.Bytes()
	rowBytes := d.width * 4
	for y := 0; y < d.height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+rowBytes], pix[y*d.pitch:y*d.pitch+rowBytes])
	}
	if err := d.staging.Unmap(); err != nil {
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}
	return img, nil
}

func (d *gpuDevice) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if width == d.width && height == d.height {
		return nil
	}
	return d.allocate(width, height)
}

func (d *gpuDevice) CreateLUT(t *lut.Table) (LUTHandle, error) {
	if t == nil || t.Size < 2 || len(t.Data) != t.Size*t.Size*t.Size*3 {
		return 0, ErrInvalidLUT
	}
	if t.IsIdentity() {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	data := make([]byte, 0, len(t.Data)*4)
	for _, v := range t.Data {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	buf, err := d.upload("lut", data, wgpu.BufferUsageStorage)
	if err != nil {
		return 0, err
	}
	d.nextLUT++
	d.luts[d.nextLUT] = &gpuLUT{table: t, buf: buf}
	return d.nextLUT, nil
}

func (d *gpuDevice) Capabilities() Capabilities {
	return Capabilities{
		Backend:    BackendGPU,
		Device:     d.name,
		ChromaKey:  true,
		LUT:        true,
		Extrusion:  true,
		Projection: true,
		Mask:       true,
		Mix:        true,
	}
}

func (d *gpuDevice) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *gpuDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.releaseAll()
	return nil
}

// releaseAll frees every object created so far, in reverse order.
func (d *gpuDevice) releaseAll() {
	for _, l := range d.luts {
		l.buf.Release()
	}
	d.luts = nil
	if d.staging != nil {
		d.staging.Release()
	}
	if d.target != nil {
		d.target.Release()
	}
	if d.empty != nil {
		d.empty.Release()
	}
	for _, p := range d.pipelines {
		if p != nil {
			p.Release()
		}
	}
	for _, m := range d.modules {
		m.Release()
	}
	if d.pipeLayout != nil {
		d.pipeLayout.Release()
	}
	if d.layout != nil {
		d.layout.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

var _ Compositor = (*gpuDevice)(nil)
