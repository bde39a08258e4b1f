package h264encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/user/frameflow/pkg/adapters/ffmpeg"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

var aud = []byte{0x09, 0xf0}

func testStream() (stream []byte, aus [][]byte) {
	aus = [][]byte{
		h264.JoinAnnexB(aud, []byte{0x67, 0x42, 0xc0, 0x1e}, []byte{0x68, 0xce}, []byte{0x65, 0x88, 0x01}),
		h264.JoinAnnexB(aud, []byte{0x41, 0x9a, 0x02}),
		h264.JoinAnnexB(aud, []byte{0x41, 0x9a, 0x03}),
	}
	return bytes.Join(aus, nil), aus
}

func TestAUSplitter_ArbitraryChunking(t *testing.T) {
	stream, want := testStream()

	for size := 1; size <= len(stream); size++ {
		var s auSplitter
		var got [][]byte
		for i := 0; i < len(stream); i += size {
			end := min(i+size, len(stream))
			got = append(got, s.write(stream[i:end])...)
		}
		if len(got) != len(want)-1 {
			t.Fatalf("size %d: got %d complete units before flush, want %d", size, len(got), len(want)-1)
		}
		got = append(got, s.flush())

		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("size %d: unit %d = %x, want %x", size, i, got[i], want[i])
			}
		}
		if s.flush() != nil {
			t.Errorf("size %d: second flush returned data", size)
		}
	}
}

func TestAUSplitter_ThreeByteStartCodes(t *testing.T) {
	au1 := []byte{0, 0, 1, 0x09, 0xf0, 0, 0, 1, 0x65, 0x88}
	au2 := []byte{0, 0, 1, 0x09, 0xf0, 0, 0, 1, 0x41, 0x9a}

	var s auSplitter
	got := s.write(append(append([]byte(nil), au1...), au2...))
	if len(got) != 1 || !bytes.Equal(got[0], au1) {
		t.Fatalf("got %x, want [%x]", got, au1)
	}
	if rest := s.flush(); !bytes.Equal(rest, au2) {
		t.Errorf("flush = %x, want %x", rest, au2)
	}
}

func TestAUSplitter_IgnoresNonDelimiterNALs(t *testing.T) {
	stream := h264.JoinAnnexB(aud, []byte{0x06, 0x05}, []byte{0x65, 0x88})

	var s auSplitter
	if got := s.write(stream); len(got) != 0 {
		t.Fatalf("expected no complete units, got %d", len(got))
	}
	if rest := s.flush(); !bytes.Equal(rest, stream) {
		t.Errorf("flush = %x, want %x", rest, stream)
	}
}

func TestConfigure_Rejects(t *testing.T) {
	valid := ports.EncoderConfig{Codec: "avc1.42001f", Width: 64, Height: 64, FPS: 30, Bitrate: 1_000_000}

	tests := []struct {
		name   string
		mutate func(*ports.EncoderConfig)
	}{
		{"odd width", func(c *ports.EncoderConfig) { c.Width = 63 }},
		{"zero height", func(c *ports.EncoderConfig) { c.Height = 0 }},
		{"zero fps", func(c *ports.EncoderConfig) { c.FPS = 0 }},
		{"bad quality", func(c *ports.EncoderConfig) { c.Quality = 60 }},
		{"not avc", func(c *ports.EncoderConfig) { c.Codec = "vp09.00.10.08" }},
		{"unknown profile", func(c *ports.EncoderConfig) { c.Codec = "avc1.58001f" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := New().Configure(cfg, func(ports.EncodedChunk) error { return nil })
			if !errors.Is(err, ErrUnsupportedConfig) {
				t.Errorf("expected ErrUnsupportedConfig, got %v", err)
			}
		})
	}
}

func TestEncode_RequiresConfigure(t *testing.T) {
	enc := New()
	err := enc.Encode(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0, true)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if enc.QueueDepth() != 0 {
		t.Errorf("QueueDepth = %d, want 0", enc.QueueDepth())
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Errorf("Flush on idle encoder: %v", err)
	}
}

func TestEncode_AfterClose(t *testing.T) {
	enc := New()
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0, false); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := enc.Configure(ports.EncoderConfig{}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Configure, got %v", err)
	}
}

func TestEncode_FFmpegRoundtrip(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}

	var chunks []ports.EncodedChunk
	enc := New()
	defer enc.Close()
	err := enc.Configure(ports.EncoderConfig{
		Codec: "avc1.42001f", Width: 64, Height: 48, FPS: 30, Bitrate: 500_000,
	}, func(c ports.EncodedChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	frameDur := time.Second / 30
	for i := 0; i < 10; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{uint8(i * 20), 80, 160, 255}), image.Point{}, draw.Src)
		if err := enc.Encode(img, time.Duration(i)*frameDur, i%5 == 0); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(chunks) != 10 {
		t.Fatalf("got %d chunks, want 10", len(chunks))
	}
	if enc.QueueDepth() != 0 {
		t.Errorf("QueueDepth = %d after flush", enc.QueueDepth())
	}
	for i, c := range chunks {
		if c.PTS != time.Duration(i)*frameDur {
			t.Errorf("chunk %d: PTS %v", i, c.PTS)
		}
		if want := i%5 == 0; c.Key != want {
			t.Errorf("chunk %d: Key = %v, want %v", i, c.Key, want)
		}
		if len(c.Data) == 0 {
			t.Errorf("chunk %d: empty", i)
		}
	}
	if _, _, err := h264.ParameterSets(chunks[0].Data); err != nil {
		t.Errorf("first chunk lacks parameter sets: %v", err)
	}
}

func TestDrain_KeepsGOPRunning(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}

	var chunks []ports.EncodedChunk
	enc := New()
	defer enc.Close()
	err := enc.Configure(ports.EncoderConfig{Codec: "avc1.42001f", Width: 64, Height: 48, FPS: 30, Quality: 28},
		func(c ports.EncodedChunk) error {
			chunks = append(chunks, c)
			return nil
		})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	const frames, maxDepth = 40, 4
	drains := 0
	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{uint8(i * 6), 40, 200, 255}), image.Point{}, draw.Src)
		if err := enc.Encode(img, time.Duration(i)*time.Second/30, i == 0); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
		if enc.QueueDepth() > maxDepth {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := enc.Drain(ctx)
			cancel()
			if err != nil {
				t.Fatalf("Drain after frame %d: %v", i, err)
			}
			drains++
			if d := enc.QueueDepth(); d > 1 {
				t.Fatalf("QueueDepth = %d after Drain", d)
			}
		}
	}
	if drains == 0 {
		t.Fatal("backpressure never triggered a drain")
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(chunks) != frames {
		t.Fatalf("got %d chunks, want %d", len(chunks), frames)
	}
	for i, c := range chunks {
		if want := i == 0; c.Key != want {
			t.Errorf("chunk %d: Key = %v, want %v", i, c.Key, want)
		}
	}
}

func TestDrain_IdleEncoder(t *testing.T) {
	enc := New()
	if err := enc.Drain(context.Background()); err != nil {
		t.Errorf("Drain on idle encoder: %v", err)
	}
	enc.Close()
	if err := enc.Drain(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Drain, got %v", err)
	}
}

func TestEncode_ScalesMismatchedFrames(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}

	var count int
	enc := New()
	defer enc.Close()
	err := enc.Configure(ports.EncoderConfig{Codec: "avc1.42001f", Width: 32, Height: 32, FPS: 25, Quality: 23},
		func(ports.EncodedChunk) error { count++; return nil })
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := enc.Encode(image.NewRGBA(image.Rect(0, 0, 100, 50)), 0, true); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d chunks, want 1", count)
	}
}
