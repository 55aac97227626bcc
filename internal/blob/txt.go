package blob

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ToTxt writes a textual dump of the blob: a header line with the shape,
// then one line per innermost row of data values, then the same for diffs.
//
// The dump is a debugging aid and is not meant to be parsed back.
func (b *Blob) ToTxt(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "shape: %s\n", b.ShapeString())

	rowLen := 1
	if len(b.shape) > 0 {
		rowLen = b.shape[len(b.shape)-1]
	}
	writeRows := func(label string, values []float32) {
		fmt.Fprintf(bw, "%s:\n", label)
		if rowLen == 0 {
			return
		}
		for start := 0; start < len(values); start += rowLen {
			for j, v := range values[start : start+rowLen] {
				if j > 0 {
					bw.WriteByte(' ')
				}
				bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
			bw.WriteByte('\n')
		}
	}
	writeRows("data", b.data)
	writeRows("diff", b.diff)
	return bw.Flush()
}

// WriteTxt dumps the blob to the named file, replacing any existing file.
func (b *Blob) WriteTxt(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blob: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return b.ToTxt(f)
}
