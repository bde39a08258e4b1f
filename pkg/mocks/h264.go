package mocks

import "github.com/user/frameflow/pkg/h264"

// TestSPS is a valid 64x64 constrained baseline sequence parameter set.
var TestSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x10, 0x99}

// TestPPS is a picture parameter set matching TestSPS.
var TestPPS = []byte{0x68, 0xce, 0x38, 0x80}

// AccessUnit returns an Annex B access unit. Keyframes carry SPS and PPS.
// The marker is the last byte of the slice, which the mock decoder turns into
// the frame's gray level.
func AccessUnit(key bool, marker byte) []byte {
	if key {
		return h264.JoinAnnexB(TestSPS, TestPPS, []byte{0x65, 0x88, 0x84, marker})
	}
	return h264.JoinAnnexB([]byte{0x41, 0x9a, 0x02, marker})
}
