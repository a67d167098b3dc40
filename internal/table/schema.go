package table

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a schema field.
type Kind int

const (
	// String fields accept any text.
	String Kind = iota
	// Number fields must parse as float64 when non-null.
	Number
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	default:
		return "string"
	}
}

// Field declares one named column.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
}

// Schema maps field names to semantic types. It is checked once against a
// table before a transform reads it.
type Schema struct {
	Fields []Field
}

// Missing returns the required fields absent from t, in declaration order.
func (s Schema) Missing(t *Table) []string {
	var out []string
	for _, f := range s.Fields {
		if !f.Optional && !t.Has(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// Absent returns the optional fields absent from t, in declaration order.
func (s Schema) Absent(t *Table) []string {
	var out []string
	for _, f := range s.Fields {
		if f.Optional && !t.Has(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// CheckValues verifies that every non-null value of a present Number field
// parses. The first failure is returned as a *ValueError.
func (s Schema) CheckValues(t *Table) error {
	for _, f := range s.Fields {
		if f.Kind != Number || !t.Has(f.Name) {
			continue
		}
		j := t.index[f.Name]
		for i, row := range t.rows {
			v := row[j]
			if !v.Valid {
				continue
			}
			if _, ok := v.Float(); !ok {
				return &ValueError{Row: i, Field: f.Name, Raw: v.S}
			}
		}
	}
	return nil
}

// ValueError reports a value that does not match its declared kind.
type ValueError struct {
	Row   int
	Field string
	Raw   string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("row %d: field %q: %q is not a number", e.Row+1, e.Field, e.Raw)
}

// MissingColumnsError names required columns absent from a source table.
type MissingColumnsError struct {
	Source    string
	Missing   []string
	Available []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns %s", e.Source, strings.Join(e.Missing, ", "))
}

// Validate checks t against s. Missing required fields are reported as a
// *MissingColumnsError naming source; bad numbers as a *ValueError.
func (s Schema) Validate(t *Table, source string) error {
	if missing := s.Missing(t); len(missing) > 0 {
		return &MissingColumnsError{Source: source, Missing: missing, Available: t.Columns()}
	}
	return s.CheckValues(t)
}

// Require is shorthand for a Schema of required string fields.
func Require(t *Table, source string, cols ...string) error {
	s := Schema{Fields: make([]Field, len(cols))}
	for i, c := range cols {
		s.Fields[i] = Field{Name: c}
	}
	return s.Validate(t, source)
}
