// Package mp4mux writes a single-track fragmented MP4 from H.264 chunks.
package mp4mux

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/ports"
)

var (
	// ErrNoChunks is returned when finalizing without any chunk.
	ErrNoChunks = errors.New("mp4mux: no chunks to mux")
	// ErrFirstNotKey is returned when the stream does not start with a keyframe.
	ErrFirstNotKey = errors.New("mp4mux: first chunk is not a keyframe")
	// ErrFinalized is returned when writing after Finalize.
	ErrFinalized = errors.New("mp4mux: already finalized")
)

type sample struct {
	data []byte // AVCC
	pts  time.Duration
	dur  time.Duration
	key  bool
}

// Muxer implements ports.Muxer. Each group of pictures becomes one
// moof/mdat fragment.
type Muxer struct {
	width     int
	height    int
	fps       float64
	timescale uint32

	sps, pps  []byte
	samples   []sample
	finalized bool
}

// New creates a muxer for the given video geometry.
func New(width, height int, fps float64) *Muxer {
	if fps <= 0 {
		fps = 30
	}
	return &Muxer{
		width:     width,
		height:    height,
		fps:       fps,
		timescale: uint32(fps * 1000),
	}
}

// WriteChunk appends an Annex B access unit.
func (m *Muxer) WriteChunk(chunk ports.EncodedChunk) error {
	if m.finalized {
		return ErrFinalized
	}
	if len(m.samples) == 0 && !chunk.Key {
		return ErrFirstNotKey
	}
	if chunk.Key && m.sps == nil {
		sps, pps, err := h264.ParameterSets(chunk.Data)
		if err != nil {
			return fmt.Errorf("mp4mux: %w", err)
		}
		m.sps, m.pps = sps, pps
	}

	m.samples = append(m.samples, sample{
		data: h264.ToAVCC(chunk.Data),
		pts:  chunk.PTS,
		dur:  chunk.Duration,
		key:  chunk.Key,
	})
	return nil
}

// Len returns the number of chunks written.
func (m *Muxer) Len() int {
	return len(m.samples)
}

// Finalize encodes ftyp, moov and one fragment per GOP.
func (m *Muxer) Finalize() ([]byte, error) {
	if m.finalized {
		return nil, ErrFinalized
	}
	if len(m.samples) == 0 {
		return nil, ErrNoChunks
	}
	m.finalized = true

	trackID := uint32(1)
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(m.timescale, "video", "en")
	trak := init.Moov.Trak

	avcC, err := mp4.CreateAvcC([][]byte{m.sps}, [][]byte{m.pps}, true)
	if err != nil {
		return nil, fmt.Errorf("create avcC: %w", err)
	}
	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(m.width), uint16(m.height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	trak.Tkhd.Width = mp4.Fixed32(m.width << 16)
	trak.Tkhd.Height = mp4.Fixed32(m.height << 16)

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}

	var frag *mp4.Fragment
	seq := uint32(0)
	flush := func() error {
		if frag == nil {
			return nil
		}
		if err := frag.Encode(&buf); err != nil {
			return fmt.Errorf("encode fragment %d: %w", seq, err)
		}
		frag = nil
		return nil
	}

	frameDur := uint32(float64(m.timescale) / m.fps)
	for _, s := range m.samples {
		if s.key || frag == nil {
			if err := flush(); err != nil {
				return nil, err
			}
			seq++
			frag, err = mp4.CreateFragment(seq, trackID)
			if err != nil {
				return nil, fmt.Errorf("create fragment: %w", err)
			}
		}

		dur := m.ticks(s.dur)
		if dur == 0 {
			dur = frameDur
		}
		flags := mp4.NonSyncSampleFlags
		if s.key {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(s.data)),
				Dur:   dur,
			},
			DecodeTime: uint64(m.ticks(s.pts)),
			Data:       s.data,
		})
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ticks converts d to timescale units, rounding to nearest.
func (m *Muxer) ticks(d time.Duration) uint32 {
	return uint32((int64(d)*int64(m.timescale) + int64(time.Second)/2) / int64(time.Second))
}

var _ ports.Muxer = (*Muxer)(nil)
