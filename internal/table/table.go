// Package table provides an immutable, string-backed tabular value used by
// every assaykit transform. Operations never mutate their receiver; they
// return a new Table that may share row storage with the original.
package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a single cell. A Value with Valid false is null.
type Value struct {
	S     string
	Valid bool
}

// Null is the null cell.
var Null = Value{}

// Str returns a non-null Value holding s.
func Str(s string) Value {
	return Value{S: s, Valid: true}
}

// naTokens are read as null, following the usual dataframe conventions.
var naTokens = map[string]struct{}{
	"":         {},
	"NA":       {},
	"N/A":      {},
	"n/a":      {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"<NA>":     {},
	"NaN":      {},
	"nan":      {},
	"-NaN":     {},
	"-nan":     {},
	"NULL":     {},
	"null":     {},
	"None":     {},
}

// Parse converts raw text to a Value, mapping NA tokens to Null.
func Parse(raw string) Value {
	if _, ok := naTokens[raw]; ok {
		return Null
	}
	return Str(raw)
}

// IsNA reports whether raw text reads as null.
func IsNA(raw string) bool {
	_, ok := naTokens[raw]
	return ok
}

// String returns the text of v, or "" when null.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return v.S
}

// Float parses v as a float64. Null values and unparseable text report false.
func (v Value) Float() (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Table is an immutable header plus rows.
type Table struct {
	header []string
	index  map[string]int
	rows   [][]Value
}

// New builds a Table. Column names must be unique and every row must have
// exactly one value per column.
func New(header []string, rows [][]Value) (*Table, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(header))
		}
	}
	h := make([]string, len(header))
	copy(h, header)
	return &Table{header: h, index: index, rows: rows}, nil
}

// FromStrings builds a Table from raw text, reading NA tokens as null.
func FromStrings(header []string, records [][]string) (*Table, error) {
	rows := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(rec))
		for j, raw := range rec {
			row[j] = Parse(raw)
		}
		rows[i] = row
	}
	return New(header, rows)
}

// Empty returns a table with the given columns and no rows.
func Empty(header ...string) *Table {
	t, err := New(header, nil)
	if err != nil {
		// duplicate names: keep first occurrence
		return Empty(dedupe(header)...)
	}
	return t
}

// derive builds a table from trusted parts without re-validating rows.
func derive(header []string, rows [][]Value) *Table {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	return &Table{header: header, index: index, rows: rows}
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	out := make([]string, len(t.header))
	copy(out, t.header)
	return out
}

// Has reports whether the table has a column named col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.header) }

// Value returns the cell at row i in column col, or Null if the column does
// not exist.
func (t *Table) Value(i int, col string) Value {
	j, ok := t.index[col]
	if !ok {
		return Null
	}
	return t.rows[i][j]
}

// Row returns a view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Column returns a copy of every value in col. A missing column yields nulls.
func (t *Table) Column(col string) []Value {
	out := make([]Value, len(t.rows))
	j, ok := t.index[col]
	if !ok {
		return out
	}
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out
}

// Records returns every row as raw text, with nulls rendered as nullRep.
func (t *Table) Records(nullRep string) [][]string {
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rec := make([]string, len(row))
		for j, v := range row {
			if v.Valid {
				rec[j] = v.S
			} else {
				rec[j] = nullRep
			}
		}
		out[i] = rec
	}
	return out
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Index returns the row position in its table.
func (r Row) Index() int { return r.i }

// Get returns the value in col, or Null when the column does not exist.
func (r Row) Get(col string) Value { return r.t.Value(r.i, col) }

// String returns the text in col, or "" when null or missing.
func (r Row) String(col string) string { return r.Get(col).String() }

// Values returns a copy of the row's values in header order.
func (r Row) Values() []Value {
	out := make([]Value, len(r.t.rows[r.i]))
	copy(out, r.t.rows[r.i])
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
