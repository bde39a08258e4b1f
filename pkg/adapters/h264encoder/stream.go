package h264encoder

import (
	"bytes"

	"github.com/user/frameflow/pkg/h264"
)

var startCode3 = []byte{0, 0, 1}

// auSplitter cuts an Annex B byte stream into access units at access unit
// delimiters. An access unit is complete once the next delimiter arrives.
type auSplitter struct {
	buf  []byte
	scan int
}

// write appends p and returns the access units it completed.
func (s *auSplitter) write(p []byte) [][]byte {
	s.buf = append(s.buf, p...)
	var out [][]byte
	for {
		j := bytes.Index(s.buf[s.scan:], startCode3)
		if j < 0 {
			// a start code may straddle the next write
			if n := len(s.buf) - 3; n > s.scan {
				s.scan = n
			}
			return out
		}
		j += s.scan
		if j+3 >= len(s.buf) {
			s.scan = j
			return out
		}

		start := j
		if start > 0 && s.buf[start-1] == 0 {
			start--
		}
		if h264.NALType(s.buf[j+3:]) == h264.NALAUD && start > 0 {
			out = append(out, append([]byte(nil), s.buf[:start]...))
			s.buf = append(s.buf[:0], s.buf[start:]...)
			s.scan = j - start + 3
			continue
		}
		s.scan = j + 3
	}
}

// flush returns the trailing access unit, if any.
func (s *auSplitter) flush() []byte {
	if len(s.buf) == 0 {
		return nil
	}
	au := append([]byte(nil), s.buf...)
	s.buf = s.buf[:0]
	s.scan = 0
	return au
}
