package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Override forces a column to a constant value in merged output.
type Override struct {
	Column string
	Value  string
	// IfPresent applies the override only when some input has the column.
	IfPresent bool
}

// MergeOptions configures Merge.
type MergeOptions struct {
	// Comma separates output fields. Zero means ','.
	Comma rune
	// Overrides are applied to every row, appending the column when needed.
	Overrides []Override
}

// MergeStats summarises a Merge.
type MergeStats struct {
	Files   int
	Rows    int
	Columns []string
}

// Merge streams the delimited files into w one row at a time. The output
// header is the union of the input headers in first-seen order. Cell text is
// copied verbatim, so values are never reformatted.
func Merge(w io.Writer, files []string, opts MergeOptions) (MergeStats, error) {
	var header []string
	pos := make(map[string]int)
	add := func(name string) {
		if _, ok := pos[name]; !ok {
			pos[name] = len(header)
			header = append(header, name)
		}
	}
	for _, path := range files {
		h, err := readHeader(path)
		if err != nil {
			return MergeStats{}, err
		}
		for _, name := range h {
			add(name)
		}
	}
	var overrides []Override
	for _, o := range opts.Overrides {
		if _, ok := pos[o.Column]; !ok && o.IfPresent {
			continue
		}
		add(o.Column)
		overrides = append(overrides, o)
	}

	cw := csv.NewWriter(w)
	if opts.Comma != 0 {
		cw.Comma = opts.Comma
	}
	if err := cw.Write(header); err != nil {
		return MergeStats{}, err
	}

	stats := MergeStats{Files: len(files), Columns: header}
	out := make([]string, len(header))
	for _, path := range files {
		n, err := streamInto(path, func(h, rec []string) error {
			for i := range out {
				out[i] = ""
			}
			for j, v := range rec {
				if j < len(h) {
					out[pos[h[j]]] = v
				}
			}
			for _, o := range overrides {
				out[pos[o.Column]] = o.Value
			}
			return cw.Write(out)
		})
		stats.Rows += n
		if err != nil {
			return stats, err
		}
	}
	cw.Flush()
	return stats, cw.Error()
}

func openDelimited(path string) (*csv.Reader, func() error, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, nil, err
	}
	if f == JSON {
		return nil, nil, fmt.Errorf("%s: cannot stream JSON", path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = bufio.NewReader(fh)
	closer := fh.Close
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		r = gz
		closer = func() error {
			gz.Close()
			return fh.Close()
		}
	}
	cr := csv.NewReader(r)
	cr.Comma = f.Comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr, closer, nil
}

func readHeader(path string) ([]string, error) {
	cr, closer, err := openDelimited(path)
	if err != nil {
		return nil, err
	}
	defer closer()
	h, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	out := make([]string, len(h))
	copy(out, h)
	if len(out) > 0 {
		out[0] = strings.TrimPrefix(out[0], "\ufeff")
	}
	return mangle(out), nil
}

func streamInto(path string, fn func(header, rec []string) error) (int, error) {
	cr, closer, err := openDelimited(path)
	if err != nil {
		return 0, err
	}
	defer closer()
	h, err := cr.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	header := make([]string, len(h))
	copy(header, h)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = mangle(header)

	n := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read %s: %w", path, err)
		}
		if err := fn(header, rec); err != nil {
			return n, err
		}
		n++
	}
}
