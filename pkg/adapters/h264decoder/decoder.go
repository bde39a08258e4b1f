// Package h264decoder decodes H.264 access units with an ffmpeg process.
//
// ffmpeg keeps no state between calls, so the decoder buffers the chunks of
// the current GOP and replays them on every Decode. Only frames for the
// chunks passed to that call are returned.
package h264decoder

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/user/frameflow/pkg/adapters/ffmpeg"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

var (
	// ErrNotConfigured is returned when Decode is called before Configure.
	ErrNotConfigured = errors.New("h264decoder: decoder not configured")

	// ErrUnsupportedCodec is returned for codec strings other than avc1.
	ErrUnsupportedCodec = errors.New("h264decoder: unsupported codec")

	// ErrNeedKeyframe is returned when a run does not start at a key chunk.
	ErrNeedKeyframe = errors.New("h264decoder: decoding must start at a key chunk")

	// ErrDecodeFailed is returned when ffmpeg fails or its output is malformed.
	ErrDecodeFailed = errors.New("h264decoder: decode failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("h264decoder: decoder closed")
)

// Decoder implements ports.VideoDecoder.
type Decoder struct {
	mu         sync.Mutex
	cfg        ports.DecoderConfig
	ffmpegPath string
	configured bool
	closed     bool
	gop        []ports.EncodedChunk
}

// New creates an unconfigured decoder.
func New() *Decoder {
	return &Decoder{}
}

// Configure validates cfg and locates ffmpeg.
func (d *Decoder) Configure(cfg ports.DecoderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, _, err := h264.ParseCodec(cfg.Codec); err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedCodec, cfg.Codec)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrUnsupportedCodec, cfg.Width, cfg.Height)
	}
	path, err := ffmpeg.Find()
	if err != nil {
		return err
	}

	d.cfg = cfg
	d.ffmpegPath = path
	d.configured = true
	d.gop = nil
	return nil
}

// Decode feeds chunks and returns their frames in presentation order.
func (d *Decoder) Decode(ctx context.Context, chunks []ports.EncodedChunk) ([]ports.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if !d.configured {
		return nil, ErrNotConfigured
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	var gop []ports.EncodedChunk
	if chunks[0].Key {
		gop = slices.Clone(chunks)
	} else if len(d.gop) == 0 {
		return nil, ErrNeedKeyframe
	} else {
		gop = slices.Concat(d.gop, chunks)
	}

	images, err := d.run(ctx, gop)
	if err != nil {
		d.gop = nil
		return nil, err
	}
	if len(images) != len(gop) {
		d.gop = nil
		return nil, fmt.Errorf("%w: %d frames for %d chunks", ErrDecodeFailed, len(images), len(gop))
	}

	// keep the chunks from the last key onward as references for the next call
	last := 0
	for i, c := range gop {
		if c.Key {
			last = i
		}
	}
	d.gop = gop[last:]

	// presentation order equals sorted timestamps
	type slot struct {
		pts, dur time.Duration
	}
	slots := make([]slot, len(gop))
	for i, c := range gop {
		slots[i] = slot{c.PTS, c.Duration}
	}
	slices.SortFunc(slots, func(a, b slot) int { return cmp.Compare(a.pts, b.pts) })

	wanted := make(map[time.Duration]bool, len(chunks))
	for _, c := range chunks {
		wanted[c.PTS] = true
	}
	frames := make([]ports.VideoFrame, 0, len(chunks))
	for i, s := range slots {
		if wanted[s.pts] {
			frames = append(frames, ports.VideoFrame{Image: images[i], PTS: s.pts, Duration: s.dur})
		}
	}
	return frames, nil
}

func (d *Decoder) run(ctx context.Context, chunks []ports.EncodedChunk) ([]*image.RGBA, error) {
	var in bytes.Buffer
	in.Write(d.cfg.Description)
	for _, c := range chunks {
		in.Write(c.Data)
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vsync", "0",
		"-s", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrDecodeFailed, err, bytes.TrimSpace(stderr.Bytes()))
	}

	size := d.cfg.Width * d.cfg.Height * 4
	data := out.Bytes()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: output size %d is not a multiple of %d", ErrDecodeFailed, len(data), size)
	}
	images := make([]*image.RGBA, len(data)/size)
	for i := range images {
		images[i] = &image.RGBA{
			Pix:    data[i*size : (i+1)*size : (i+1)*size],
			Stride: d.cfg.Width * 4,
			Rect:   image.Rect(0, 0, d.cfg.Width, d.cfg.Height),
		}
	}
	return images, nil
}

// Reset discards buffered reference chunks. Configure must be called again.
func (d *Decoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gop = nil
	d.configured = false
	return nil
}

// Close releases the decoder.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gop = nil
	d.closed = true
	return nil
}

var _ ports.VideoDecoder = (*Decoder)(nil)
