package h264decoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/user/frameflow/pkg/adapters/ffmpeg"
	"github.com/user/frameflow/pkg/adapters/h264encoder"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

const (
	width  = 64
	height = 48
	fps    = 30
)

var frameDur = time.Second / fps

func fill(i int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: uint8(i * 20), G: 128, B: 64, A: 255}), image.Point{}, draw.Src)
	return img
}

// encodeClip encodes n frames with a keyframe every gop frames.
func encodeClip(t *testing.T, n, gop int) []ports.EncodedChunk {
	t.Helper()
	var chunks []ports.EncodedChunk
	enc := h264encoder.New()
	defer enc.Close()
	err := enc.Configure(ports.EncoderConfig{
		Codec: "avc1.42001f", Width: width, Height: height, FPS: fps, Quality: 18,
	}, func(c ports.EncodedChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("encoder Configure: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := enc.Encode(fill(i), time.Duration(i)*frameDur, i%gop == 0); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(chunks) != n {
		t.Fatalf("encoded %d chunks, want %d", len(chunks), n)
	}
	return chunks
}

func configure(t *testing.T, d *Decoder, key ports.EncodedChunk) {
	t.Helper()
	sps, pps, err := h264.ParameterSets(key.Data)
	if err != nil {
		t.Fatalf("ParameterSets: %v", err)
	}
	err = d.Configure(ports.DecoderConfig{
		Codec:       h264.CodecString(sps),
		Width:       width,
		Height:      height,
		Description: h264.JoinAnnexB(sps, pps),
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func checkFrames(t *testing.T, frames []ports.VideoFrame, first, count int) {
	t.Helper()
	if len(frames) != count {
		t.Fatalf("got %d frames, want %d", len(frames), count)
	}
	for k, f := range frames {
		i := first + k
		if f.PTS != time.Duration(i)*frameDur {
			t.Errorf("frame %d: PTS %v, want %v", i, f.PTS, time.Duration(i)*frameDur)
		}
		if f.Image.Bounds().Dx() != width || f.Image.Bounds().Dy() != height {
			t.Errorf("frame %d: size %v", i, f.Image.Bounds())
		}
		got := int(f.Image.RGBAAt(width/2, height/2).R)
		if want := i * 20; got < want-12 || got > want+12 {
			t.Errorf("frame %d: red %d, want about %d", i, got, want)
		}
	}
}

func TestConfigure_RejectsNonAVC(t *testing.T) {
	d := New()
	err := d.Configure(ports.DecoderConfig{Codec: "av01.0.04M.08", Width: 64, Height: 64})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
	err = d.Configure(ports.DecoderConfig{Codec: "avc1.42001f", Width: 0, Height: 64})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec for zero width, got %v", err)
	}
}

func TestDecode_RequiresConfigure(t *testing.T) {
	d := New()
	_, err := d.Decode(context.Background(), []ports.EncodedChunk{{Key: true}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDecode_AfterClose(t *testing.T) {
	d := New()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Decode(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDecode_ContinuesAcrossCalls(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}
	chunks := encodeClip(t, 10, 5)

	d := New()
	defer d.Close()
	configure(t, d, chunks[0])
	ctx := context.Background()

	frames, err := d.Decode(ctx, chunks[0:3])
	if err != nil {
		t.Fatalf("Decode 0-2: %v", err)
	}
	checkFrames(t, frames, 0, 3)

	frames, err = d.Decode(ctx, chunks[3:4])
	if err != nil {
		t.Fatalf("Decode 3: %v", err)
	}
	checkFrames(t, frames, 3, 1)

	frames, err = d.Decode(ctx, chunks[4:8])
	if err != nil {
		t.Fatalf("Decode 4-7: %v", err)
	}
	checkFrames(t, frames, 4, 4)
}

func TestDecode_RandomAccessAfterReset(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}
	chunks := encodeClip(t, 10, 5)

	d := New()
	defer d.Close()
	configure(t, d, chunks[0])
	ctx := context.Background()

	if _, err := d.Decode(ctx, chunks[0:2]); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Decode(ctx, chunks[5:6]); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured after Reset, got %v", err)
	}
	configure(t, d, chunks[5])

	if _, err := d.Decode(ctx, chunks[6:7]); !errors.Is(err, ErrNeedKeyframe) {
		t.Fatalf("expected ErrNeedKeyframe, got %v", err)
	}
	frames, err := d.Decode(ctx, chunks[5:8])
	if err != nil {
		t.Fatalf("Decode 5-7: %v", err)
	}
	checkFrames(t, frames, 5, 3)
}
