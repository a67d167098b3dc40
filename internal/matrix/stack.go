package matrix

import (
	"errors"
	"fmt"

	"github.com/assaykit/assaykit/internal/table"
)

// HStack joins matrices column-wise. Rows are aligned by id in first-seen
// order across the inputs; a row missing from one input is Absent in that
// input's columns. Row annotations come from the first input holding the
// row. Column ids must be unique across inputs.
func HStack(parts ...*Result) (*Result, error) {
	if len(parts) == 0 {
		return nil, errors.New("hstack: no matrices")
	}

	var rowIDs, rowFields, colIDs, colFields []string
	rowIndex := make(map[string]int)
	rowFieldIndex := make(map[string]int)
	colFieldIndex := make(map[string]int)
	colSeen := make(map[string]struct{})
	for _, p := range parts {
		for _, id := range p.RowIDs {
			if _, ok := rowIndex[id]; !ok {
				rowIndex[id] = len(rowIDs)
				rowIDs = append(rowIDs, id)
			}
		}
		for _, f := range p.RowMeta.Fields {
			if _, ok := rowFieldIndex[f]; !ok {
				rowFieldIndex[f] = len(rowFields)
				rowFields = append(rowFields, f)
			}
		}
		for _, f := range p.ColMeta.Fields {
			if _, ok := colFieldIndex[f]; !ok {
				colFieldIndex[f] = len(colFields)
				colFields = append(colFields, f)
			}
		}
		for _, id := range p.ColIDs {
			if _, dup := colSeen[id]; dup {
				return nil, fmt.Errorf("hstack: column %q appears in more than one matrix", id)
			}
			colSeen[id] = struct{}{}
			colIDs = append(colIDs, id)
		}
	}

	data := make([][]Cell, len(rowIDs))
	for i := range data {
		data[i] = make([]Cell, len(colIDs))
	}
	rowVals := make([][]table.Value, len(rowIDs))
	colVals := make([][]table.Value, 0, len(colIDs))

	offset := 0
	for _, p := range parts {
		for i, id := range p.RowIDs {
			r := rowIndex[id]
			copy(data[r][offset:], p.Data[i])
			if rowVals[r] == nil {
				rec := make([]table.Value, len(rowFields))
				for j, f := range p.RowMeta.Fields {
					rec[rowFieldIndex[f]] = p.RowMeta.values[i][j]
				}
				rowVals[r] = rec
			}
		}
		for c := range p.ColIDs {
			rec := make([]table.Value, len(colFields))
			for j, f := range p.ColMeta.Fields {
				rec[colFieldIndex[f]] = p.ColMeta.values[c][j]
			}
			colVals = append(colVals, rec)
		}
		offset += len(p.ColIDs)
	}

	rowMeta, err := NewAnnotations(rowIDs, rowFields, rowVals)
	if err != nil {
		return nil, err
	}
	colMeta, err := NewAnnotations(colIDs, colFields, colVals)
	if err != nil {
		return nil, err
	}
	return NewResult(rowIDs, colIDs, data, rowMeta, colMeta)
}

// DropRowFields removes row annotation fields. Unknown names are ignored.
func (r *Result) DropRowFields(fields ...string) (*Result, error) {
	gone := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		gone[f] = struct{}{}
	}
	var keep []int
	var names []string
	for j, f := range r.RowMeta.Fields {
		if _, ok := gone[f]; !ok {
			keep = append(keep, j)
			names = append(names, f)
		}
	}
	vals := make([][]table.Value, len(r.RowIDs))
	for i := range r.RowIDs {
		rec := make([]table.Value, len(keep))
		for k, j := range keep {
			rec[k] = r.RowMeta.values[i][j]
		}
		vals[i] = rec
	}
	rowMeta, err := NewAnnotations(r.RowIDs, names, vals)
	if err != nil {
		return nil, err
	}
	return NewResult(r.RowIDs, r.ColIDs, r.Data, rowMeta, r.ColMeta)
}
