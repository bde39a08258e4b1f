package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1f, 0xaa}
	testPPS = []byte{0x68, 0xce, 0x38}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00}
	testP   = []byte{0x41, 0x9a, 0x00}
)

func TestSplitAnnexB_MixedStartCodes(t *testing.T) {
	data := append([]byte{0, 0, 0, 1}, testSPS...)
	data = append(data, 0, 0, 1)
	data = append(data, testPPS...)
	data = append(data, 0, 0, 0, 1)
	data = append(data, testIDR...)

	nalus := SplitAnnexB(data)
	require.Len(t, nalus, 3)
	assert.Equal(t, testSPS, nalus[0])
	assert.Equal(t, testPPS, nalus[1])
	assert.Equal(t, testIDR, nalus[2])
}

func TestAVCCRoundTrip_DropsParameterSets(t *testing.T) {
	au := JoinAnnexB(testSPS, testPPS, testIDR)

	avcc := ToAVCC(au)
	assert.Equal(t, append([]byte{0, 0, 0, 4}, testIDR...), avcc)
	assert.Equal(t, JoinAnnexB(testIDR), AVCCToAnnexB(avcc))
}

func TestParameterSets(t *testing.T) {
	sps, pps, err := ParameterSets(JoinAnnexB(testSPS, testPPS, testIDR))
	require.NoError(t, err)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)

	_, _, err = ParameterSets(JoinAnnexB(testP))
	assert.ErrorIs(t, err, ErrSPSNotFound)

	_, _, err = ParameterSets(JoinAnnexB(testSPS))
	assert.ErrorIs(t, err, ErrPPSNotFound)
}

func TestIsKeyframe(t *testing.T) {
	assert.True(t, IsKeyframe(JoinAnnexB(testSPS, testPPS, testIDR)))
	assert.False(t, IsKeyframe(JoinAnnexB(testP)))
}

func TestCodecString(t *testing.T) {
	assert.Equal(t, "avc1.42001f", CodecString(testSPS))

	profile, level, err := ParseCodec("avc1.42001f")
	require.NoError(t, err)
	assert.Equal(t, 0x42, profile)
	assert.Equal(t, 0x1f, level)

	_, _, err = ParseCodec("vp09.00.10.08")
	assert.Error(t, err)
}
