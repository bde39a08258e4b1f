package lut

import (
	"bufio"
	"fmt"
	"io"
)

// WriteTo writes t in .cube format.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	put := func(format string, args ...any) error {
		k, err := fmt.Fprintf(bw, format, args...)
		n += int64(k)
		return err
	}
	if t.Title != "" {
		if err := put("TITLE %q\n", t.Title); err != nil {
			return n, err
		}
	}
	if err := put("LUT_3D_SIZE %d\n", t.Size); err != nil {
		return n, err
	}
	if lo, hi := t.Domain(); lo != [3]float32{} || hi != [3]float32{1, 1, 1} {
		if err := put("DOMAIN_MIN %g %g %g\nDOMAIN_MAX %g %g %g\n", lo[0], lo[1], lo[2], hi[0], hi[1], hi[2]); err != nil {
			return n, err
		}
	}
	for i := 0; i+2 < len(t.Data); i += 3 {
		if err := put("%.6f %.6f %.6f\n", t.Data[i], t.Data[i+1], t.Data[i+2]); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
