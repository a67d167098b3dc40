package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/assaykit/assaykit/internal/table"
)

// Delimiter joins disagreeing metadata values.
const Delimiter = "|"

// ErrEmptyInput is returned when there are no records to pivot.
var ErrEmptyInput = errors.New("no input records: cannot determine a matrix shape")

// SchemaError reports required pivot fields missing from the input.
type SchemaError struct {
	Missing   []string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Missing, ", "))
}

// ValueError reports a value field that does not parse as a number.
type ValueError = table.ValueError

// Spec names the fields a pivot reads.
type Spec struct {
	RowID   string
	ColID   string
	Value   string
	RowMeta []string
	ColMeta []string
}

// Schema returns the ingestion schema for the spec. Metadata fields are
// optional strings.
func (s Spec) Schema() table.Schema {
	fields := []table.Field{
		{Name: s.RowID, Kind: table.String},
		{Name: s.ColID, Kind: table.String},
		{Name: s.Value, Kind: table.Number},
	}
	seen := map[string]struct{}{s.RowID: {}, s.ColID: {}, s.Value: {}}
	for _, f := range append(append([]string{}, s.RowMeta...), s.ColMeta...) {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		fields = append(fields, table.Field{Name: f, Kind: table.String, Optional: true})
	}
	return table.Schema{Fields: fields}
}

type cellKey struct{ r, c int }

// Build pivots t into a Result. Rows and columns appear in first-seen order.
// When a (row, column) pair repeats, the later non-null value wins.
func Build(t *table.Table, spec Spec) (*Result, error) {
	schema := spec.Schema()
	if missing := schema.Missing(t); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Available: t.Columns()}
	}
	if t.Len() == 0 {
		return nil, ErrEmptyInput
	}
	if err := schema.CheckValues(t); err != nil {
		return nil, err
	}

	var report Report
	var rowFields, colFields []string
	rowFields, report.MissingRowMeta = metaFields(t, spec.RowMeta, spec.RowID)
	colFields, report.MissingColMeta = metaFields(t, spec.ColMeta, spec.ColID)

	rows := newAxis(rowFields)
	cols := newAxis(colFields)
	cells := make(map[cellKey]float64)

	for i := 0; i < t.Len(); i++ {
		rec := t.Row(i)
		rid, cid := rec.Get(spec.RowID), rec.Get(spec.ColID)
		if !rid.Valid || !cid.Valid {
			report.SkippedRecords++
			continue
		}
		r := rows.observe(rid.S, rec)
		c := cols.observe(cid.S, rec)
		if v, ok := rec.Get(spec.Value).Float(); ok {
			cells[cellKey{r, c}] = v
		}
	}
	if len(rows.ids) == 0 {
		return nil, ErrEmptyInput
	}

	data := make([][]Cell, len(rows.ids))
	for r := range data {
		line := make([]Cell, len(cols.ids))
		for c := range line {
			if v, ok := cells[cellKey{r, c}]; ok {
				line[c] = Of(v)
			}
		}
		data[r] = line
	}

	rowMeta, rowDis, err := rows.annotations(RowAxis)
	if err != nil {
		return nil, err
	}
	colMeta, colDis, err := cols.annotations(ColAxis)
	if err != nil {
		return nil, err
	}
	report.Disagreements = append(rowDis, colDis...)

	res, err := NewResult(rows.ids, cols.ids, data, rowMeta, colMeta)
	if err != nil {
		return nil, err
	}
	res.Report = report
	return res, nil
}

// metaFields splits declared metadata into fields present in t and fields
// missing from it. The axis id is never its own metadata field.
func metaFields(t *table.Table, declared []string, id string) (present, missing []string) {
	seen := make(map[string]struct{}, len(declared))
	for _, f := range declared {
		if f == id {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if t.Has(f) {
			present = append(present, f)
		} else {
			missing = append(missing, f)
		}
	}
	return present, missing
}

// axis tracks ids in first-seen order and the distinct metadata values seen
// for each of them.
type axis struct {
	fields   []string
	ids      []string
	index    map[string]int
	distinct [][][]string
}

func newAxis(fields []string) *axis {
	return &axis{fields: fields, index: make(map[string]int)}
}

func (a *axis) observe(id string, rec table.Row) int {
	i, ok := a.index[id]
	if !ok {
		i = len(a.ids)
		a.index[id] = i
		a.ids = append(a.ids, id)
		a.distinct = append(a.distinct, make([][]string, len(a.fields)))
	}
	for j, f := range a.fields {
		v := rec.Get(f)
		if !v.Valid {
			continue
		}
		if !contains(a.distinct[i][j], v.S) {
			a.distinct[i][j] = append(a.distinct[i][j], v.S)
		}
	}
	return i
}

func (a *axis) annotations(which Axis) (*Annotations, []Disagreement, error) {
	var dis []Disagreement
	values := make([][]table.Value, len(a.ids))
	for i, id := range a.ids {
		rec := make([]table.Value, len(a.fields))
		for j, f := range a.fields {
			seen := a.distinct[i][j]
			switch len(seen) {
			case 0:
				rec[j] = table.Null
			case 1:
				rec[j] = table.Str(seen[0])
			default:
				rec[j] = table.Str(strings.Join(seen, Delimiter))
				dis = append(dis, Disagreement{Axis: which, ID: id, Field: f, Values: seen})
			}
		}
		values[i] = rec
	}
	ann, err := NewAnnotations(a.ids, a.fields, values)
	return ann, dis, err
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
