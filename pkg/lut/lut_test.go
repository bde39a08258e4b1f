package lut

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cube(size int, fn func(r, g, b float64) (float64, float64, float64)) string {
	var sb strings.Builder
	sb.WriteString("# generated\nTITLE \"test\"\n")
	fmt.Fprintf(&sb, "LUT_3D_SIZE %d\nDOMAIN_MIN 0 0 0\nDOMAIN_MAX 1 1 1\n", size)
	s := float64(size - 1)
	for b := 0; b < size; b++ {
		for g := 0; g < size; g++ {
			for r := 0; r < size; r++ {
				or, og, ob := fn(float64(r)/s, float64(g)/s, float64(b)/s)
				fmt.Fprintf(&sb, "%f %f %f\n", or, og, ob)
			}
		}
	}
	return sb.String()
}

func TestParse_Valid(t *testing.T) {
	tbl, err := Parse(strings.NewReader(cube(3, func(r, g, b float64) (float64, float64, float64) {
		return 1 - r, 1 - g, 1 - b
	})))
	require.NoError(t, err)
	assert.Equal(t, "test", tbl.Title)
	assert.Equal(t, 3, tbl.Size)
	assert.Len(t, tbl.Data, 27*3)

	r, g, b := tbl.Apply(0, 0.5, 1)
	assert.InDelta(t, 1, r, 1e-6)
	assert.InDelta(t, 0.5, g, 1e-6)
	assert.InDelta(t, 0, b, 1e-6)
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("0 0 0\n1 1 1\n"))
	assert.ErrorIs(t, err, ErrMissingHeader)

	_, err = Parse(strings.NewReader("# only a comment\n"))
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestParse_ShortData(t *testing.T) {
	_, err := Parse(strings.NewReader("LUT_3D_SIZE 2\n0 0 0\n1 0 0\n0 1 0\n"))
	assert.ErrorIs(t, err, ErrShortData)
}

func TestParse_InvalidSize(t *testing.T) {
	_, err := Parse(strings.NewReader("LUT_3D_SIZE one\n"))
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestIdentity_MapsToSelf(t *testing.T) {
	tbl := Identity(DefaultIdentitySize)
	assert.True(t, tbl.IsIdentity())
	for _, c := range [][3]float64{{0, 0, 0}, {1, 1, 1}, {0.2, 0.7, 0.45}, {0.123, 0.999, 0.5}} {
		r, g, b := tbl.Apply(c[0], c[1], c[2])
		assert.InDelta(t, c[0], r, 1e-6)
		assert.InDelta(t, c[1], g, 1e-6)
		assert.InDelta(t, c[2], b, 1e-6)
	}
}

func TestApply_ClampsInput(t *testing.T) {
	tbl := Identity(4)
	r, g, b := tbl.Apply(-1, 2, 0.5)
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 1.0, g)
	assert.InDelta(t, 0.5, b, 1e-6)
}

func TestWriteTo_ParsesBack(t *testing.T) {
	var sb strings.Builder
	n, err := Identity(5).WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, int64(sb.Len()), n)
	assert.True(t, strings.HasPrefix(sb.String(), "TITLE \"identity\"\nLUT_3D_SIZE 5\n"))

	got, err := ParseBytes([]byte(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, "identity", got.Title)
	assert.Equal(t, 5, got.Size)
	assert.True(t, got.IsIdentity())
}

func TestParse_InputRange(t *testing.T) {
	src := "LUT_3D_SIZE 2\nLUT_3D_INPUT_RANGE 0 2\n" +
		"0 0 0\n1 0 0\n0 1 0\n1 1 0\n0 0 1\n1 0 1\n0 1 1\n1 1 1\n"
	tbl, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	lo, hi := tbl.Domain()
	assert.Equal(t, [3]float32{0, 0, 0}, lo)
	assert.Equal(t, [3]float32{2, 2, 2}, hi)

	r, g, b := tbl.Apply(1, 2, 0.5)
	assert.InDelta(t, 0.5, r, 1e-6)
	assert.InDelta(t, 1, g, 1e-6)
	assert.InDelta(t, 0.25, b, 1e-6)
}

func TestParse_DomainBounds(t *testing.T) {
	src := cube(2, func(r, g, b float64) (float64, float64, float64) { return r, g, b })
	src = strings.Replace(src, "DOMAIN_MIN 0 0 0", "DOMAIN_MIN -1 0 0", 1)
	tbl, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	r, _, _ := tbl.Apply(0, 0, 0)
	assert.InDelta(t, 0.5, r, 1e-6)

	var sb strings.Builder
	_, err = tbl.WriteTo(&sb)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "DOMAIN_MIN -1 0 0\nDOMAIN_MAX 1 1 1\n")
	back, err := ParseBytes([]byte(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, tbl.DomainMin, back.DomainMin)
}

func TestParse_RejectsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown keyword", "LUT_3D_SIZE 2\nLUT_3D_SHAPER on\n"},
		{"two values", "LUT_3D_SIZE 2\n0 0\n"},
		{"four values", "LUT_3D_SIZE 2\n0 0 0 0\n"},
		{"not a number", "LUT_3D_SIZE 2\n0 zero 0\n"},
		{"bad input range", "LUT_3D_SIZE 2\nLUT_3D_INPUT_RANGE 0\n"},
		{"empty domain", "LUT_3D_SIZE 2\nLUT_3D_INPUT_RANGE 1 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
