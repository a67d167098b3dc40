package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
)

// Format is an on-disk table encoding.
type Format int

const (
	CSV Format = iota
	TSV
	JSON
)

func (f Format) String() string {
	switch f {
	case TSV:
		return "tsv"
	case JSON:
		return "json"
	default:
		return "csv"
	}
}

// Comma returns the field separator for delimited formats.
func (f Format) Comma() rune {
	if f == TSV {
		return '\t'
	}
	return ','
}

// ErrUnknownFormat is returned for paths with an unsupported extension.
var ErrUnknownFormat = errors.New("unknown table format")

// FormatFor infers the format from a path, looking through a trailing .gz.
func FormatFor(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz")))
	switch ext {
	case ".csv":
		return CSV, nil
	case ".tsv", ".txt":
		return TSV, nil
	case ".json":
		return JSON, nil
	}
	return CSV, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// ReadFile reads a table, choosing the format from the extension.
func ReadFile(path string) (*Table, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return ReadFileAs(path, f)
}

// ReadFileAs reads a table in the given format. Paths ending in .gz are
// decompressed.
func ReadFileAs(path string, f Format) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var r io.Reader = bufio.NewReader(fh)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	t, err := Read(r, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Read decodes a table from r.
func Read(r io.Reader, f Format) (*Table, error) {
	if f == JSON {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return ParseJSON(data)
	}
	return readDelimited(r, f.Comma())
}

func readDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = mangle(header)

	var rows [][]Value
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) > len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(header), len(rec))
		}
		row := make([]Value, len(header))
		for j, raw := range rec {
			row[j] = Parse(raw)
		}
		rows = append(rows, row)
	}
	return derive(header, rows), nil
}

// mangle renames repeated header names to name.1, name.2 and so on.
func mangle(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		n := seen[h]
		seen[h] = n + 1
		if n == 0 {
			out[i] = h
			continue
		}
		name := fmt.Sprintf("%s.%d", h, n)
		for {
			if _, taken := seen[name]; !taken {
				break
			}
			n++
			name = fmt.Sprintf("%s.%d", h, n)
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}

// ParseJSON reads an array of flat JSON objects. Columns appear in the order
// keys are first seen; strings are kept verbatim and other scalars keep their
// JSON text.
func ParseJSON(data []byte) (*Table, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("expected a JSON array of records")
	}

	var header []string
	pos := make(map[string]int)
	var records []map[int]Value
	var err error
	root.ForEach(func(_, rec gjson.Result) bool {
		if !rec.IsObject() {
			err = fmt.Errorf("record %d is not an object", len(records))
			return false
		}
		cells := make(map[int]Value)
		rec.ForEach(func(k, v gjson.Result) bool {
			name := k.String()
			j, ok := pos[name]
			if !ok {
				j = len(header)
				pos[name] = j
				header = append(header, name)
			}
			cells[j] = jsonValue(v)
			return true
		})
		records = append(records, cells)
		return true
	})
	if err != nil {
		return nil, err
	}

	rows := make([][]Value, len(records))
	for i, cells := range records {
		row := make([]Value, len(header))
		for j, v := range cells {
			row[j] = v
		}
		rows[i] = row
	}
	return derive(header, rows), nil
}

func jsonValue(v gjson.Result) Value {
	switch v.Type {
	case gjson.Null:
		return Null
	case gjson.String:
		return Str(v.String())
	default:
		return Str(v.Raw)
	}
}

// WriteOptions controls table encoding.
type WriteOptions struct {
	// NullRep is written for null cells in delimited formats.
	NullRep string
}

// WriteFile writes t to path, creating parent directories. The format comes
// from the extension and a trailing .gz compresses the output.
func WriteFile(path string, t *Table, opts WriteOptions) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	return WriteFileAs(path, t, f, opts)
}

// WriteFileAs writes t to path in the given format.
func WriteFileAs(path string, t *Table, f Format, opts WriteOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(fh)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := Write(w, t, f, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write encodes t to w.
func Write(w io.Writer, t *Table, f Format, opts WriteOptions) error {
	if f == JSON {
		return writeJSON(w, t)
	}
	cw := csv.NewWriter(w)
	cw.Comma = f.Comma()
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records(opts.NullRep)); err != nil {
		return err
	}
	return cw.Error()
}

func writeJSON(w io.Writer, t *Table) error {
	var raw bytes.Buffer
	raw.WriteByte('[')
	for i, row := range t.rows {
		if i > 0 {
			raw.WriteByte(',')
		}
		raw.WriteByte('{')
		for j, v := range row {
			if j > 0 {
				raw.WriteByte(',')
			}
			key, _ := json.Marshal(t.header[j])
			raw.Write(key)
			raw.WriteByte(':')
			raw.Write(jsonScalar(v))
		}
		raw.WriteByte('}')
	}
	raw.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "    "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}

// jsonScalar renders a cell as JSON: null, a number when the text is a
// finite number, or a string.
func jsonScalar(v Value) []byte {
	if !v.Valid {
		return []byte("null")
	}
	if _, err := strconv.ParseFloat(v.S, 64); err == nil && !isNonFinite(v.S) {
		if json.Valid([]byte(v.S)) {
			return []byte(v.S)
		}
	}
	if v.S == "true" || v.S == "false" {
		return []byte(v.S)
	}
	b, _ := json.Marshal(v.S)
	return b
}

func isNonFinite(s string) bool {
	l := strings.ToLower(strings.TrimLeft(s, "+-"))
	return l == "inf" || l == "infinity" || l == "nan"
}
