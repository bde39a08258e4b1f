// Package h264encoder encodes frames to H.264 with an ffmpeg process and
// delivers one chunk per access unit.
//
// Each GOP is encoded by its own ffmpeg session: a keyframe request ends the
// running session and starts a new one, whose first picture is an IDR. Drain
// waits for output inside the running session, so backpressure never cuts a
// GOP short. The
// stream carries access unit delimiters so chunks can be cut without parsing
// slices.
package h264encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/user/frameflow/pkg/adapters/ffmpeg"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

// Encoder implements ports.VideoEncoder.
type Encoder struct {
	mu         sync.Mutex
	cfg        ports.EncoderConfig
	out        ports.ChunkWriter
	ffmpegPath string
	profile    string
	level      string
	frameDur   time.Duration
	frame      *image.RGBA

	sess      *session
	written   int
	delivered int
	closed    bool
}

// New creates an unconfigured encoder.
func New() *Encoder {
	return &Encoder{}
}

var profiles = map[int]string{
	0x42: "baseline",
	0x4d: "main",
	0x64: "high",
}

// Configure validates cfg and locates ffmpeg. No process starts until the
// first frame arrives.
func (e *Encoder) Configure(cfg ports.EncoderConfig, out ports.ChunkWriter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return fmt.Errorf("%w: %dx%d must be positive and even", ErrUnsupportedConfig, cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return fmt.Errorf("%w: fps %.2f", ErrUnsupportedConfig, cfg.FPS)
	}
	if cfg.Quality < 0 || cfg.Quality > 51 {
		return fmt.Errorf("%w: quality %d outside 0-51", ErrUnsupportedConfig, cfg.Quality)
	}
	profile, level, err := h264.ParseCodec(cfg.Codec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}
	name, ok := profiles[profile]
	if !ok {
		return fmt.Errorf("%w: profile 0x%02x", ErrUnsupportedConfig, profile)
	}
	path, err := ffmpeg.Find()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}

	e.abort()
	e.cfg = cfg
	e.out = out
	e.ffmpegPath = path
	e.profile = name
	e.level = fmt.Sprintf("%d.%d", level/10, level%10)
	e.frameDur = time.Duration(float64(time.Second) / cfg.FPS)
	e.frame = image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	e.written, e.delivered = 0, 0
	return nil
}

func (e *Encoder) args() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", e.cfg.Width, e.cfg.Height),
		"-r", fmt.Sprintf("%.3f", e.cfg.FPS),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-profile:v", e.profile,
		"-level", e.level,
		"-pix_fmt", "yuv420p",
		"-bf", "0",
		"-x264-params", "keyint=infinite:scenecut=0:aud=1:repeat-headers=1",
	}
	if e.cfg.Quality > 0 {
		args = append(args, "-crf", fmt.Sprintf("%d", e.cfg.Quality))
	} else if e.cfg.Bitrate > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%d", e.cfg.Bitrate),
			"-maxrate", fmt.Sprintf("%d", e.cfg.Bitrate),
			"-bufsize", fmt.Sprintf("%d", e.cfg.Bitrate*2),
		)
	}
	return append(args, "-flush_packets", "1", "-f", "h264", "pipe:1")
}

// Encode submits one frame. A keyframe request closes the running GOP.
func (e *Encoder) Encode(img image.Image, pts time.Duration, key bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.out == nil {
		return ErrNotConfigured
	}

	if key && e.sess != nil && e.sess.frames > 0 {
		if err := e.finish(context.Background()); err != nil {
			return err
		}
	}
	if e.sess == nil {
		s, err := startSession(e.ffmpegPath, e.args())
		if err != nil {
			return err
		}
		e.sess = s
	}

	b := img.Bounds()
	if b.Dx() == e.cfg.Width && b.Dy() == e.cfg.Height {
		draw.Draw(e.frame, e.frame.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(e.frame, e.frame.Bounds(), img, b, draw.Src, nil)
	}

	e.sess.pts = append(e.sess.pts, pts)
	if _, err := e.sess.stdin.Write(e.frame.Pix); err != nil {
		e.abort()
		return fmt.Errorf("%w: write frame: %v", ErrEncodingFailed, err)
	}
	e.sess.frames++
	e.written++
	return e.deliver(e.sess.take())
}

// QueueDepth returns the number of frames submitted but not yet delivered.
func (e *Encoder) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written - e.delivered
}

// Drain delivers chunks as ffmpeg produces them until at most one frame is
// outstanding. The session keeps running, so no IDR is forced. The newest
// access unit is only known to be complete when the next one starts; it
// stays pending until then or until Flush.
func (e *Encoder) Drain(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	s := e.sess
	if s == nil {
		return nil
	}
	for {
		if err := e.deliverFrom(s, s.take()); err != nil {
			return err
		}
		if e.written-e.delivered <= 1 {
			return nil
		}
		select {
		case <-s.wake:
		case <-s.done:
			if err := e.deliverFrom(s, s.take()); err != nil {
				return err
			}
			e.abort()
			return fmt.Errorf("%w: ffmpeg exited with %d frames pending: %s",
				ErrEncodingFailed, e.written-e.delivered, bytes.TrimSpace(s.stderr.Bytes()))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush ends the running GOP and delivers every pending chunk. The next
// frame starts a new GOP.
func (e *Encoder) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.sess == nil {
		return nil
	}
	return e.finish(ctx)
}

// Close stops any running session and discards its output.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abort()
	e.closed = true
	return nil
}

func (e *Encoder) finish(ctx context.Context) error {
	s := e.sess
	e.sess = nil
	s.stdin.Close()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.kill()
		return ctx.Err()
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrEncodingFailed, err, bytes.TrimSpace(s.stderr.Bytes()))
	}
	if err := s.readErr(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}

	if err := e.deliverFrom(s, s.take()); err != nil {
		return err
	}
	if n := len(s.pts); n > 0 {
		return fmt.Errorf("%w: %d frames produced no output", ErrEncodingFailed, n)
	}
	return nil
}

func (e *Encoder) abort() {
	if e.sess != nil {
		e.sess.kill()
		e.sess = nil
	}
}

func (e *Encoder) deliver(aus [][]byte) error {
	return e.deliverFrom(e.sess, aus)
}

// deliverFrom pairs access units with submitted timestamps in order.
func (e *Encoder) deliverFrom(s *session, aus [][]byte) error {
	for _, au := range aus {
		if len(s.pts) == 0 {
			return fmt.Errorf("%w: unexpected access unit", ErrEncodingFailed)
		}
		pts := s.pts[0]
		s.pts = s.pts[1:]
		e.delivered++
		chunk := ports.EncodedChunk{
			Data:     au,
			PTS:      pts,
			Duration: e.frameDur,
			Key:      h264.IsKeyframe(au),
		}
		if err := e.out(chunk); err != nil {
			return err
		}
	}
	return nil
}

var _ ports.VideoEncoder = (*Encoder)(nil)

// session is one ffmpeg process encoding one GOP.
type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	done   chan struct{}

	pts    []time.Duration
	frames int

	mu    sync.Mutex
	ready [][]byte
	err   error
	wake  chan struct{} // signalled when ready grows
}

func startSession(path string, args []string) (*session, error) {
	cmd := exec.Command(path, args...)
	s := &session{cmd: cmd, stderr: &bytes.Buffer{}, done: make(chan struct{}), wake: make(chan struct{}, 1)}
	cmd.Stderr = s.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrEncodingFailed, err)
	}
	s.stdin = stdin
	go s.read(stdout)
	return s, nil
}

func (s *session) read(r io.Reader) {
	defer close(s.done)
	var sp auSplitter
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.push(sp.write(buf[:n])...)
		}
		if err != nil {
			if au := sp.flush(); au != nil {
				s.push(au)
			}
			if err != io.EOF {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *session) push(aus ...[]byte) {
	if len(aus) == 0 {
		return
	}
	s.mu.Lock()
	s.ready = append(s.ready, aus...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take returns the access units completed so far.
func (s *session) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	aus := s.ready
	s.ready = nil
	return aus
}

func (s *session) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) kill() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	<-s.done
	s.cmd.Wait()
}
