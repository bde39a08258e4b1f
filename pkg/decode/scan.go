package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/frameflow/pkg/ports"
)

var errOutsideWindow = errors.New("outside scan window")

// scanner serves byte ranges from the initial window and, when rescanning is
// enabled, from further bounded range reads.
type scanner struct {
	ctx    context.Context
	store  ports.AssetStore
	id     string
	size   int64
	window []byte
	rescan bool
	budget int64
}

func (s *scanner) bytes(off, n int64) ([]byte, error) {
	if off+n <= int64(len(s.window)) {
		return s.window[off : off+n], nil
	}
	if !s.rescan || n > s.budget {
		return nil, errOutsideWindow
	}
	s.budget -= n
	data, err := s.store.ReadRange(s.ctx, s.id, off, n)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) < n {
		return nil, fmt.Errorf("short read at %d: %d of %d bytes", off, len(data), n)
	}
	return data, nil
}

// scanResult is what a top-level box walk found.
type scanResult struct {
	moov        *mp4.MoovBox
	moofs       []*mp4.MoofBox
	moovOutside bool  // moov header seen but its body lies past the window
	stoppedAt   int64 // first byte not walked, -1 when the walk reached the end
}

// scanSampleTable fetches the initial window and walks top-level boxes.
func scanSampleTable(ctx context.Context, store ports.AssetStore, id string, cfg Config) (*SampleTable, error) {
	info, err := store.Stat(ctx, id)
	if err != nil {
		return nil, err
	}
	n := cfg.InitialWindow
	if info.Size > 0 && info.Size < n {
		n = info.Size
	}
	window, err := store.ReadRange(ctx, id, 0, n)
	if err != nil {
		return nil, err
	}

	size := info.Size
	if size <= 0 {
		size = int64(len(window))
	}
	sc := &scanner{ctx: ctx, store: store, id: id, size: size, window: window, rescan: cfg.Rescan, budget: cfg.MaxScanBytes}
	res, err := sc.walk()
	if err != nil {
		return nil, err
	}
	if res.moov == nil {
		if res.moovOutside {
			return nil, fmt.Errorf("%w: moov lies beyond the scan window", ErrSampleTableNotFound)
		}
		return nil, ErrSampleTableNotFound
	}

	vt, err := findVideoTrack(res.moov)
	if err != nil {
		return nil, err
	}
	if res.moov.Mvex != nil {
		if res.stoppedAt >= 0 {
			return nil, fmt.Errorf("%w: fragments continue past byte %d of %d", ErrSampleTableNotFound, res.stoppedAt, size)
		}
		return fragmentedTable(vt, res.moofs)
	}
	return progressiveTable(vt)
}

// walk decodes moov and moof boxes until the file ends or the next box cannot
// be read within the window and budget.
func (s *scanner) walk() (scanResult, error) {
	res := scanResult{stoppedAt: -1}
	pos := int64(0)
	for pos+8 <= s.size {
		hdrLen := int64(16)
		if s.size-pos < hdrLen {
			hdrLen = s.size - pos
		}
		raw, err := s.bytes(pos, hdrLen)
		if errors.Is(err, errOutsideWindow) {
			res.stoppedAt = pos
			return res, nil
		}
		if err != nil {
			return res, err
		}
		hdr, err := mp4.DecodeHeader(bytes.NewReader(raw))
		if err != nil {
			return res, fmt.Errorf("box header at %d: %w", pos, err)
		}
		boxSize := int64(hdr.Size)
		if boxSize == 0 {
			boxSize = s.size - pos
		}
		if boxSize < int64(hdr.Hdrlen) {
			return res, fmt.Errorf("box %q at %d: invalid size %d", hdr.Name, pos, boxSize)
		}

		switch hdr.Name {
		case "moov", "moof":
			body, err := s.bytes(pos, boxSize)
			if errors.Is(err, errOutsideWindow) {
				res.moovOutside = hdr.Name == "moov"
				res.stoppedAt = pos
				return res, nil
			}
			if err != nil {
				return res, err
			}
			box, err := mp4.DecodeBox(uint64(pos), bytes.NewReader(body))
			if err != nil {
				return res, fmt.Errorf("decode %s at %d: %w", hdr.Name, pos, err)
			}
			switch b := box.(type) {
			case *mp4.MoovBox:
				res.moov = b
			case *mp4.MoofBox:
				res.moofs = append(res.moofs, b)
			}
		}
		pos += boxSize
	}
	return res, nil
}
