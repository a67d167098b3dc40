package gct

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
)

// Format selects a matrix serialization.
type Format string

const (
	// Text is GCT 1.3.
	Text Format = "gct"
	// Binary is an Arrow IPC file.
	Binary Format = "arrow"
)

// ParseFormat accepts "gct"/"text" and "arrow"/"binary".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gct", "text":
		return Text, nil
	case "arrow", "binary":
		return Binary, nil
	}
	return "", fmt.Errorf("unknown matrix format %q (want gct or arrow)", s)
}

// Ext returns the file extension for f.
func (f Format) Ext() string { return "." + string(f) }

// Options controls how a matrix file is named and encoded.
type Options struct {
	Format     Format
	AppendDims bool
}

var dimsPattern = regexp.MustCompile(`n(\d+)x(\d+)`)

// DimsSuffix returns the _n{cols}x{rows} name suffix.
func DimsSuffix(cols, rows int) string {
	return fmt.Sprintf("_n%dx%d", cols, rows)
}

// ParseDims extracts the last n{cols}x{rows} token from a file name.
func ParseDims(path string) (cols, rows int, ok bool) {
	m := dimsPattern.FindAllStringSubmatch(filepath.Base(path), -1)
	if len(m) == 0 {
		return 0, 0, false
	}
	last := m[len(m)-1]
	c, err1 := strconv.Atoi(last[1])
	r, err2 := strconv.Atoi(last[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return c, r, true
}

// IsMatrixPath reports whether path has a matrix file extension.
func IsMatrixPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case Text.Ext(), Binary.Ext():
		return true
	}
	return false
}

// Name returns the file name for r under base.
func Name(base string, r *matrix.Result, opts Options) string {
	name := base
	if opts.AppendDims {
		cols, rows := r.Dims()
		name = strings.TrimRight(base, "_") + DimsSuffix(cols, rows)
	}
	return name + opts.Format.Ext()
}

// Write stores r under dir and returns the written path.
func Write(dir, base string, r *matrix.Result, opts Options) (path string, err error) {
	if opts.Format == "" {
		opts.Format = Binary
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path = filepath.Join(dir, Name(base, r, opts))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	switch opts.Format {
	case Text:
		err = WriteGCT(f, r)
	case Binary:
		w := bufio.NewWriter(f)
		if err = WriteArrow(w, r); err == nil {
			err = w.Flush()
		}
	default:
		err = fmt.Errorf("unknown matrix format %q", opts.Format)
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Read loads a matrix file, choosing the decoder from the extension.
func Read(path string) (*matrix.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r *matrix.Result
	switch strings.ToLower(filepath.Ext(path)) {
	case Text.Ext():
		r, err = ReadGCT(bufio.NewReader(f))
	case Binary.Ext():
		r, err = ReadArrow(f)
	default:
		return nil, fmt.Errorf("%s: not a matrix file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r, nil
}

// Melt flattens r into a long table with columns rid, cid and value. Absent
// cells are left out.
func Melt(r *matrix.Result) *table.Table {
	var rows [][]table.Value
	for j, cid := range r.ColIDs {
		for i, rid := range r.RowIDs {
			c := r.Data[i][j]
			if !c.Present {
				continue
			}
			rows = append(rows, []table.Value{table.Str(rid), table.Str(cid), table.Str(FormatValue(c.Value))})
		}
	}
	t, _ := table.New([]string{"rid", "cid", "value"}, rows)
	return t
}
