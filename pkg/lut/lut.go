// Package lut parses and applies 3D color lookup tables.
package lut

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DefaultIdentitySize is the edge length of the identity table.
const DefaultIdentitySize = 33

// Table is a cubic RGB lookup table. Entries are stored with red varying
// fastest, then green, then blue, as in the .cube format.
//
// DomainMin and DomainMax bound the input range per channel. A zero domain
// means 0..1.
type Table struct {
	Title     string
	Size      int
	Data      []float32 // len = Size³·3
	DomainMin [3]float32
	DomainMax [3]float32
}

// Identity returns a table that maps every color to itself.
func Identity(size int) *Table {
	if size < 2 {
		size = 2
	}
	t := &Table{Title: "identity", Size: size, Data: make([]float32, size*size*size*3)}
	scale := float32(size - 1)
	i := 0
	for b := 0; b < size; b++ {
		for g := 0; g < size; g++ {
			for r := 0; r < size; r++ {
				t.Data[i] = float32(r) / scale
				t.Data[i+1] = float32(g) / scale
				t.Data[i+2] = float32(b) / scale
				i += 3
			}
		}
	}
	return t
}

// Parse reads a .cube file. TITLE, DOMAIN_MIN, DOMAIN_MAX and
// LUT_3D_INPUT_RANGE are honoured; any other keyword or a data line without
// exactly three numbers is an error.
func Parse(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	t := &Table{DomainMax: [3]float32{1, 1, 1}}
	var data []float32
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "TITLE":
			t.Title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "TITLE")), `"`)
			continue
		case "LUT_1D_SIZE":
			return nil, fmt.Errorf("%w: 1D tables are not supported", ErrMissingHeader)
		case "LUT_3D_SIZE":
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "LUT_3D_SIZE")))
			if err != nil || n < 2 || n > 256 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSize, line)
			}
			t.Size = n
			data = make([]float32, 0, n*n*n*3)
			continue
		case "DOMAIN_MIN", "DOMAIN_MAX":
			v, err := floats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			if fields[0] == "DOMAIN_MIN" {
				t.DomainMin = [3]float32{v[0], v[1], v[2]}
			} else {
				t.DomainMax = [3]float32{v[0], v[1], v[2]}
			}
			continue
		case "LUT_3D_INPUT_RANGE":
			v, err := floats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			t.DomainMin = [3]float32{v[0], v[0], v[0]}
			t.DomainMax = [3]float32{v[1], v[1], v[1]}
			continue
		}

		v, err := floats(fields, 3)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, lineNo, line)
		}
		if t.Size == 0 {
			return nil, ErrMissingHeader
		}
		data = append(data, v...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if t.Size == 0 {
		return nil, ErrMissingHeader
	}
	for c := 0; c < 3; c++ {
		if t.DomainMax[c] <= t.DomainMin[c] {
			return nil, fmt.Errorf("%w: empty input domain on channel %d", ErrMalformed, c)
		}
	}
	want := t.Size * t.Size * t.Size * 3
	if len(data) < want {
		return nil, fmt.Errorf("%w: got %d of %d triplets", ErrShortData, len(data)/3, want/3)
	}
	t.Data = data[:want]
	return t, nil
}

func floats(fields []string, n int) ([]float32, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Domain returns the per-channel input bounds.
func (t *Table) Domain() (lo, hi [3]float32) {
	if t.DomainMin == t.DomainMax {
		return [3]float32{}, [3]float32{1, 1, 1}
	}
	return t.DomainMin, t.DomainMax
}

// ParseBytes parses .cube data held in memory.
func ParseBytes(b []byte) (*Table, error) {
	return Parse(bytes.NewReader(b))
}

// Apply maps an RGB color through the table with trilinear interpolation.
// Inputs are normalised to the table's domain first.
func (t *Table) Apply(r, g, b float64) (float64, float64, float64) {
	n := t.Size
	top := float64(n - 1)
	lo, hi := t.Domain()
	norm := func(v float64, c int) float64 {
		return clamp((v-float64(lo[c]))/float64(hi[c]-lo[c])) * top
	}
	fr, fg, fb := norm(r, 0), norm(g, 1), norm(b, 2)

	r0, g0, b0 := int(fr), int(fg), int(fb)
	r1, g1, b1 := minInt(r0+1, n-1), minInt(g0+1, n-1), minInt(b0+1, n-1)
	dr, dg, db := fr-float64(r0), fg-float64(g0), fb-float64(b0)

	var out [3]float64
	for c := 0; c < 3; c++ {
		c000 := t.at(r0, g0, b0, c)
		c100 := t.at(r1, g0, b0, c)
		c010 := t.at(r0, g1, b0, c)
		c110 := t.at(r1, g1, b0, c)
		c001 := t.at(r0, g0, b1, c)
		c101 := t.at(r1, g0, b1, c)
		c011 := t.at(r0, g1, b1, c)
		c111 := t.at(r1, g1, b1, c)

		c00 := c000 + (c100-c000)*dr
		c10 := c010 + (c110-c010)*dr
		c01 := c001 + (c101-c001)*dr
		c11 := c011 + (c111-c011)*dr
		c0 := c00 + (c10-c00)*dg
		c1 := c01 + (c11-c01)*dg
		out[c] = c0 + (c1-c0)*db
	}
	return out[0], out[1], out[2]
}

// IsIdentity reports whether every entry matches the identity mapping within 1e-4.
func (t *Table) IsIdentity() bool {
	scale := float64(t.Size - 1)
	for b := 0; b < t.Size; b++ {
		for g := 0; g < t.Size; g++ {
			for r := 0; r < t.Size; r++ {
				if math.Abs(t.at(r, g, b, 0)-float64(r)/scale) > 1e-4 ||
					math.Abs(t.at(r, g, b, 1)-float64(g)/scale) > 1e-4 ||
					math.Abs(t.at(r, g, b, 2)-float64(b)/scale) > 1e-4 {
					return false
				}
			}
		}
	}
	return true
}

func (t *Table) at(r, g, b, c int) float64 {
	return float64(t.Data[((b*t.Size+g)*t.Size+r)*3+c])
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
