// Package h264 handles H.264 NAL unit framing.
package h264

import (
	"errors"
	"fmt"
)

// NAL unit types used here.
const (
	NALSlice = 1
	NALIDR   = 5
	NALSEI   = 6
	NALSPS   = 7
	NALPPS   = 8
	NALAUD   = 9
)

var (
	// ErrSPSNotFound is returned when no sequence parameter set is present.
	ErrSPSNotFound = errors.New("h264: SPS not found")
	// ErrPPSNotFound is returned when no picture parameter set is present.
	ErrPPSNotFound = errors.New("h264: PPS not found")
)

var startCode = []byte{0, 0, 0, 1}

// NALType returns the type of a NAL unit without start code.
func NALType(nalu []byte) int {
	if len(nalu) == 0 {
		return 0
	}
	return int(nalu[0] & 0x1F)
}

// SplitAnnexB parses an Annex B byte stream into NAL units.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0

	for i < len(data) {
		// 00 00 01 or 00 00 00 01
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 {
			scLen := 0
			if data[i+2] == 1 {
				scLen = 3
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				scLen = 4
			}

			if scLen > 0 {
				if i > start {
					nalus = append(nalus, data[start:i])
				}
				i += scLen
				start = i
				continue
			}
		}
		i++
	}

	if start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

// JoinAnnexB writes NAL units with 4-byte start codes.
func JoinAnnexB(nalus ...[]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += len(startCode) + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

// ToAVCC converts Annex B to 4-byte length-prefixed NAL units.
// Parameter sets and access unit delimiters are dropped since the sample
// entry carries them.
func ToAVCC(data []byte) []byte {
	nalus := SplitAnnexB(data)
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}

	out := make([]byte, 0, size)
	for _, n := range nalus {
		switch NALType(n) {
		case NALSPS, NALPPS, NALAUD:
			continue
		}
		l := len(n)
		out = append(out, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		out = append(out, n...)
	}
	return out
}

// AVCCToAnnexB converts length-prefixed NAL units to Annex B.
func AVCCToAnnexB(data []byte) []byte {
	out := make([]byte, 0, len(data))
	off := 0
	for off+4 <= len(data) {
		n := int(data[off])<<24 | int(data[off+1])<<16 | int(data[off+2])<<8 | int(data[off+3])
		off += 4
		if n < 0 || off+n > len(data) {
			break
		}
		out = append(out, startCode...)
		out = append(out, data[off:off+n]...)
		off += n
	}
	return out
}

// ParameterSets returns the first SPS and PPS found in an Annex B stream.
func ParameterSets(data []byte) (sps, pps []byte, err error) {
	for _, n := range SplitAnnexB(data) {
		switch NALType(n) {
		case NALSPS:
			if sps == nil {
				sps = append([]byte(nil), n...)
			}
		case NALPPS:
			if pps == nil {
				pps = append([]byte(nil), n...)
			}
		}
		if sps != nil && pps != nil {
			return sps, pps, nil
		}
	}
	if sps == nil {
		return nil, nil, ErrSPSNotFound
	}
	return nil, nil, ErrPPSNotFound
}

// IsKeyframe reports whether an Annex B access unit contains an IDR slice.
func IsKeyframe(data []byte) bool {
	for _, n := range SplitAnnexB(data) {
		if NALType(n) == NALIDR {
			return true
		}
	}
	return false
}

// CodecString returns the RFC 6381 codec string for an SPS, e.g. "avc1.42001f".
func CodecString(sps []byte) string {
	if len(sps) < 4 {
		return "avc1"
	}
	return fmt.Sprintf("avc1.%02x%02x%02x", sps[1], sps[2], sps[3])
}

// ParseCodec returns the profile and level encoded in an avc1 codec string.
func ParseCodec(codec string) (profile, level int, err error) {
	var pc, constraints, lv int
	if _, err := fmt.Sscanf(codec, "avc1.%02x%02x%02x", &pc, &constraints, &lv); err != nil {
		return 0, 0, fmt.Errorf("h264: unsupported codec %q", codec)
	}
	return pc, lv, nil
}
