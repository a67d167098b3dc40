// Package matrix pivots long-form assay tables into a dense row by column
// matrix with aggregated per-axis annotations.
package matrix

import (
	"fmt"

	"github.com/assaykit/assaykit/internal/table"
)

// Cell is one matrix entry. The zero Cell is Absent.
type Cell struct {
	Value   float64
	Present bool
}

// Absent marks a row/column pair with no observation. It is distinct from a
// present zero.
var Absent = Cell{}

// Of returns a present cell holding v.
func Of(v float64) Cell { return Cell{Value: v, Present: true} }

// IsAbsent reports whether c carries no value.
func (c Cell) IsAbsent() bool { return !c.Present }

// Annotations holds one aggregated record per axis id.
type Annotations struct {
	Fields []string
	IDs    []string
	values [][]table.Value
	index  map[string]int
	fields map[string]int
}

// NewAnnotations builds annotations with values[i][j] holding field j of id i.
func NewAnnotations(ids, fields []string, values [][]table.Value) (*Annotations, error) {
	if len(values) != len(ids) {
		return nil, fmt.Errorf("annotations: %d value rows for %d ids", len(values), len(ids))
	}
	a := &Annotations{
		Fields: fields,
		IDs:    ids,
		values: values,
		index:  make(map[string]int, len(ids)),
		fields: make(map[string]int, len(fields)),
	}
	for i, id := range ids {
		if _, dup := a.index[id]; dup {
			return nil, fmt.Errorf("annotations: duplicate id %q", id)
		}
		if len(values[i]) != len(fields) {
			return nil, fmt.Errorf("annotations: id %q has %d values for %d fields", id, len(values[i]), len(fields))
		}
		a.index[id] = i
	}
	for j, f := range fields {
		a.fields[f] = j
	}
	return a, nil
}

// Get returns the value of field for id. ok is false when either is unknown.
func (a *Annotations) Get(id, field string) (v table.Value, ok bool) {
	i, ok := a.index[id]
	if !ok {
		return table.Null, false
	}
	j, ok := a.fields[field]
	if !ok {
		return table.Null, false
	}
	return a.values[i][j], true
}

// Record returns a copy of the values for the id at position i.
func (a *Annotations) Record(i int) []table.Value {
	out := make([]table.Value, len(a.values[i]))
	copy(out, a.values[i])
	return out
}

// Table renders the annotations with the ids in a leading idCol column.
func (a *Annotations) Table(idCol string) (*table.Table, error) {
	header := append([]string{idCol}, a.Fields...)
	rows := make([][]table.Value, len(a.IDs))
	for i, id := range a.IDs {
		rows[i] = append([]table.Value{table.Str(id)}, a.values[i]...)
	}
	return table.New(header, rows)
}

// Result is a dense matrix plus its row and column annotations. All three
// share the same id sets.
type Result struct {
	RowIDs  []string
	ColIDs  []string
	Data    [][]Cell
	RowMeta *Annotations
	ColMeta *Annotations
	Report  Report

	rowIndex map[string]int
	colIndex map[string]int
}

// NewResult assembles a Result and checks the shape invariant. Nil
// annotations are replaced with empty ones.
func NewResult(rowIDs, colIDs []string, data [][]Cell, rowMeta, colMeta *Annotations) (*Result, error) {
	var err error
	if rowMeta == nil {
		if rowMeta, err = NewAnnotations(rowIDs, nil, make([][]table.Value, len(rowIDs))); err != nil {
			return nil, err
		}
	}
	if colMeta == nil {
		if colMeta, err = NewAnnotations(colIDs, nil, make([][]table.Value, len(colIDs))); err != nil {
			return nil, err
		}
	}
	if len(data) != len(rowIDs) {
		return nil, fmt.Errorf("matrix: %d data rows for %d row ids", len(data), len(rowIDs))
	}
	for i, row := range data {
		if len(row) != len(colIDs) {
			return nil, fmt.Errorf("matrix: row %q has %d cells for %d columns", rowIDs[i], len(row), len(colIDs))
		}
	}
	if !sameIDs(rowIDs, rowMeta.IDs) {
		return nil, fmt.Errorf("matrix: row annotations do not match row ids")
	}
	if !sameIDs(colIDs, colMeta.IDs) {
		return nil, fmt.Errorf("matrix: column annotations do not match column ids")
	}
	r := &Result{RowIDs: rowIDs, ColIDs: colIDs, Data: data, RowMeta: rowMeta, ColMeta: colMeta}
	r.rowIndex = indexIDs(rowIDs)
	r.colIndex = indexIDs(colIDs)
	if len(r.rowIndex) != len(rowIDs) || len(r.colIndex) != len(colIDs) {
		return nil, fmt.Errorf("matrix: duplicate ids")
	}
	return r, nil
}

// At returns the cell for the given ids. ok is false when either id is unknown.
func (r *Result) At(rowID, colID string) (c Cell, ok bool) {
	i, ok := r.rowIndex[rowID]
	if !ok {
		return Absent, false
	}
	j, ok := r.colIndex[colID]
	if !ok {
		return Absent, false
	}
	return r.Data[i][j], true
}

// Dims returns the column and row counts, in the order used by file names.
func (r *Result) Dims() (cols, rows int) { return len(r.ColIDs), len(r.RowIDs) }

// FilterRows keeps the rows for which keep reports true.
func (r *Result) FilterRows(keep func(i int, id string) bool) (*Result, error) {
	var ids []string
	var data [][]Cell
	var vals [][]table.Value
	for i, id := range r.RowIDs {
		if !keep(i, id) {
			continue
		}
		ids = append(ids, id)
		data = append(data, r.Data[i])
		vals = append(vals, r.RowMeta.values[i])
	}
	rowMeta, err := NewAnnotations(ids, r.RowMeta.Fields, vals)
	if err != nil {
		return nil, err
	}
	out, err := NewResult(ids, r.ColIDs, data, rowMeta, r.ColMeta)
	if err != nil {
		return nil, err
	}
	out.Report = r.Report
	return out, nil
}

// WithoutMeta returns the matrix with empty annotations on both axes.
func (r *Result) WithoutMeta() *Result {
	out, _ := NewResult(r.RowIDs, r.ColIDs, r.Data, nil, nil)
	return out
}

func indexIDs(ids []string) map[string]int {
	m := make(map[string]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
