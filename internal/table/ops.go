package table

import (
	"fmt"
	"sort"
	"strings"
)

// Filter returns the rows for which keep reports true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	rows := make([][]Value, 0, len(t.rows))
	for i, row := range t.rows {
		if keep(Row{t: t, i: i}) {
			rows = append(rows, row)
		}
	}
	return derive(t.header, rows)
}

// Select returns only the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	idx := make([]int, len(cols))
	for k, c := range cols {
		j, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("column %q not found", c)
		}
		idx[k] = j
	}
	rows := make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out := make([]Value, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return New(cols, rows)
}

// Drop removes the named columns. Names that do not exist are ignored.
func (t *Table) Drop(cols ...string) *Table {
	gone := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		gone[c] = struct{}{}
	}
	keep := make([]string, 0, len(t.header))
	for _, h := range t.header {
		if _, ok := gone[h]; !ok {
			keep = append(keep, h)
		}
	}
	if len(keep) == len(t.header) {
		return t
	}
	out, _ := t.Select(keep...)
	return out
}

// Rename renames columns. Missing source names are ignored; a rename onto an
// existing column name is an error.
func (t *Table) Rename(names map[string]string) (*Table, error) {
	header := make([]string, len(t.header))
	for i, h := range t.header {
		if to, ok := names[h]; ok {
			header[i] = to
		} else {
			header[i] = h
		}
	}
	return New(header, t.rows)
}

// WithColumn sets col to fn(row) for every row, replacing the column when it
// exists and appending it otherwise.
func (t *Table) WithColumn(col string, fn func(Row) Value) *Table {
	j, exists := t.index[col]
	header := t.header
	if !exists {
		header = append(t.Columns(), col)
		j = len(t.header)
	}
	rows := make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out := make([]Value, len(header))
		copy(out, row)
		out[j] = fn(Row{t: t, i: i})
		rows[i] = out
	}
	return derive(header, rows)
}

// Unique returns the distinct non-null values of col in first-seen order.
func (t *Table) Unique(col string) []string {
	j, ok := t.index[col]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, row := range t.rows {
		v := row[j]
		if !v.Valid {
			continue
		}
		if _, dup := seen[v.S]; dup {
			continue
		}
		seen[v.S] = struct{}{}
		out = append(out, v.S)
	}
	return out
}

// Distinct drops rows that repeat an earlier row exactly.
func (t *Table) Distinct() *Table {
	seen := make(map[string]struct{}, len(t.rows))
	rows := make([][]Value, 0, len(t.rows))
	for _, row := range t.rows {
		k := rowKey(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, row)
	}
	return derive(t.header, rows)
}

// Head returns at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n >= len(t.rows) {
		return t
	}
	if n < 0 {
		n = 0
	}
	return derive(t.header, t.rows[:n])
}

// SortStable orders rows with a stable sort on less.
func (t *Table) SortStable(less func(a, b Row) bool) *Table {
	order := make([]int, len(t.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(Row{t: t, i: order[a]}, Row{t: t, i: order[b]})
	})
	rows := make([][]Value, len(order))
	for k, i := range order {
		rows[k] = t.rows[i]
	}
	return derive(t.header, rows)
}

// Concat stacks tables vertically. The result header is the union of every
// input header in first-seen order; cells for columns a table lacks are null.
func Concat(tables ...*Table) *Table {
	var header []string
	seen := make(map[string]struct{})
	total := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		total += len(t.rows)
		for _, h := range t.header {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				header = append(header, h)
			}
		}
	}
	rows := make([][]Value, 0, total)
	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(t.header))
		for j, h := range t.header {
			pos[j] = indexOf(header, h)
		}
		for _, row := range t.rows {
			out := make([]Value, len(header))
			for j, v := range row {
				out[pos[j]] = v
			}
			rows = append(rows, out)
		}
	}
	return derive(header, rows)
}

// AntiJoin splits t into the rows with no match in other on the given key
// columns and the rows that do match. Null keys only match null keys.
func (t *Table) AntiJoin(other *Table, on []string) (kept, removed *Table, err error) {
	for _, c := range on {
		if !t.Has(c) {
			return nil, nil, fmt.Errorf("join column %q not found in left table", c)
		}
		if !other.Has(c) {
			return nil, nil, fmt.Errorf("join column %q not found in right table", c)
		}
	}
	keys := make(map[string]struct{}, other.Len())
	for i := 0; i < other.Len(); i++ {
		keys[joinKey(other.Row(i), on)] = struct{}{}
	}
	var keep, drop [][]Value
	for i, row := range t.rows {
		if _, hit := keys[joinKey(Row{t: t, i: i}, on)]; hit {
			drop = append(drop, row)
		} else {
			keep = append(keep, row)
		}
	}
	return derive(t.header, keep), derive(t.header, drop), nil
}

// GroupIndex returns row indexes grouped by the value of col, with groups in
// first-seen order. Null values group under the empty key.
func (t *Table) GroupIndex(col string) (keys []string, groups map[string][]int) {
	groups = make(map[string][]int)
	for i := range t.rows {
		k := t.Value(i, col).String()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	return keys, groups
}

func joinKey(r Row, on []string) string {
	var b strings.Builder
	for _, c := range on {
		v := r.Get(c)
		if v.Valid {
			b.WriteByte('v')
			b.WriteString(v.S)
		} else {
			b.WriteByte('n')
		}
		b.WriteByte(0)
	}
	return b.String()
}

func rowKey(row []Value) string {
	var b strings.Builder
	for _, v := range row {
		if v.Valid {
			b.WriteByte('v')
			b.WriteString(v.S)
		} else {
			b.WriteByte('n')
		}
		b.WriteByte(0)
	}
	return b.String()
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
