// Package gct reads and writes matrix artifacts: GCT text files and an
// Apache Arrow IPC binary variant carrying the same three blocks.
package gct

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
)

const (
	version13 = "#1.3"
	version12 = "#1.2"

	// DataNull is written for absent cells.
	DataNull = "NaN"
	// MetaNull is written for null annotations and the header filler.
	MetaNull = "-666"
)

// FormatValue renders a cell value without exponent notation for ordinary
// magnitudes.
func FormatValue(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e15) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteGCT writes r as GCT 1.3.
func WriteGCT(w io.Writer, r *matrix.Result) error {
	bw := bufio.NewWriter(w)
	nRowMeta, nColMeta := len(r.RowMeta.Fields), len(r.ColMeta.Fields)

	fmt.Fprintln(bw, version13)
	fmt.Fprintf(bw, "%d\t%d\t%d\t%d\n", len(r.RowIDs), len(r.ColIDs), nRowMeta, nColMeta)

	line := make([]string, 0, 1+nRowMeta+len(r.ColIDs))
	line = append(line, "id")
	line = append(line, r.RowMeta.Fields...)
	line = append(line, r.ColIDs...)
	writeLine(bw, line)

	for _, field := range r.ColMeta.Fields {
		line = line[:0]
		line = append(line, field)
		for k := 0; k < nRowMeta; k++ {
			line = append(line, MetaNull)
		}
		for _, id := range r.ColIDs {
			v, _ := r.ColMeta.Get(id, field)
			line = append(line, metaText(v))
		}
		writeLine(bw, line)
	}

	for i, id := range r.RowIDs {
		line = line[:0]
		line = append(line, id)
		for _, v := range r.RowMeta.Record(i) {
			line = append(line, metaText(v))
		}
		for _, c := range r.Data[i] {
			if c.Present {
				line = append(line, FormatValue(c.Value))
			} else {
				line = append(line, DataNull)
			}
		}
		writeLine(bw, line)
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, fields []string) {
	w.WriteString(strings.Join(fields, "\t"))
	w.WriteByte('\n')
}

func metaText(v table.Value) string {
	if !v.Valid {
		return MetaNull
	}
	return v.S
}

// ReadGCT parses GCT 1.3 or 1.2 text. In 1.2 files the Description column
// becomes the only row annotation.
func ReadGCT(rd io.Reader) (*matrix.Result, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<30)
	next := func() ([]string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		return strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t"), nil
	}

	ver, err := next()
	if err != nil {
		return nil, fmt.Errorf("gct: version line: %w", err)
	}
	var nRows, nCols, nRowMeta, nColMeta int
	dims, err := next()
	if err != nil {
		return nil, fmt.Errorf("gct: dimensions line: %w", err)
	}
	switch strings.TrimSpace(ver[0]) {
	case version13:
		if len(dims) < 4 {
			return nil, errors.New("gct: 1.3 dimensions line needs four values")
		}
		if nRows, nCols, nRowMeta, nColMeta, err = atoi4(dims); err != nil {
			return nil, err
		}
	case version12:
		if len(dims) < 2 {
			return nil, errors.New("gct: 1.2 dimensions line needs two values")
		}
		if nRows, err = strconv.Atoi(strings.TrimSpace(dims[0])); err != nil {
			return nil, fmt.Errorf("gct: row count: %w", err)
		}
		if nCols, err = strconv.Atoi(strings.TrimSpace(dims[1])); err != nil {
			return nil, fmt.Errorf("gct: column count: %w", err)
		}
		nRowMeta = 1
	default:
		return nil, fmt.Errorf("gct: unsupported version %q", ver[0])
	}

	header, err := next()
	if err != nil {
		return nil, fmt.Errorf("gct: header line: %w", err)
	}
	if len(header) != 1+nRowMeta+nCols {
		return nil, fmt.Errorf("gct: header has %d fields, want %d", len(header), 1+nRowMeta+nCols)
	}
	rowFields := append([]string(nil), header[1:1+nRowMeta]...)
	colIDs := append([]string(nil), header[1+nRowMeta:]...)

	colFields := make([]string, nColMeta)
	colVals := make([][]table.Value, nCols)
	for j := range colVals {
		colVals[j] = make([]table.Value, nColMeta)
	}
	for k := 0; k < nColMeta; k++ {
		line, err := next()
		if err != nil {
			return nil, fmt.Errorf("gct: column annotation %d: %w", k, err)
		}
		if len(line) != len(header) {
			return nil, fmt.Errorf("gct: column annotation %d has %d fields, want %d", k, len(line), len(header))
		}
		colFields[k] = line[0]
		for j := 0; j < nCols; j++ {
			colVals[j][k] = parseMeta(line[1+nRowMeta+j])
		}
	}

	rowIDs := make([]string, nRows)
	rowVals := make([][]table.Value, nRows)
	data := make([][]matrix.Cell, nRows)
	for i := 0; i < nRows; i++ {
		line, err := next()
		if err != nil {
			return nil, fmt.Errorf("gct: data row %d: %w", i, err)
		}
		if len(line) != len(header) {
			return nil, fmt.Errorf("gct: data row %d has %d fields, want %d", i, len(line), len(header))
		}
		rowIDs[i] = line[0]
		rec := make([]table.Value, nRowMeta)
		for k := 0; k < nRowMeta; k++ {
			rec[k] = parseMeta(line[1+k])
		}
		rowVals[i] = rec
		cells := make([]matrix.Cell, nCols)
		for j := 0; j < nCols; j++ {
			raw := strings.TrimSpace(line[1+nRowMeta+j])
			if table.IsNA(raw) {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("gct: row %q column %q: %w", rowIDs[i], colIDs[j], err)
			}
			cells[j] = matrix.Of(v)
		}
		data[i] = cells
	}

	rowMeta, err := matrix.NewAnnotations(rowIDs, rowFields, rowVals)
	if err != nil {
		return nil, fmt.Errorf("gct: %w", err)
	}
	colMeta, err := matrix.NewAnnotations(colIDs, colFields, colVals)
	if err != nil {
		return nil, fmt.Errorf("gct: %w", err)
	}
	return matrix.NewResult(rowIDs, colIDs, data, rowMeta, colMeta)
}

func parseMeta(raw string) table.Value {
	if raw == MetaNull {
		return table.Null
	}
	return table.Parse(raw)
}

func atoi4(f []string) (a, b, c, d int, err error) {
	out := make([]int, 4)
	for i := 0; i < 4; i++ {
		if out[i], err = strconv.Atoi(strings.TrimSpace(f[i])); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("gct: dimension %d: %w", i, err)
		}
	}
	return out[0], out[1], out[2], out[3], nil
}
