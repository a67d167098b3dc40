package metadata

import (
	"bytes"
	"encoding/json"
)

// Filter is a query on a collection endpoint, encoded as the JSON "filter"
// query parameter. Clauses keep the order they were added in.
type Filter struct {
	where  []clause
	fields []string
}

type clause struct {
	field string
	value any
}

// NewFilter returns an empty filter.
func NewFilter() *Filter { return &Filter{} }

// Eq matches records whose field equals value.
func (f *Filter) Eq(field string, value any) *Filter {
	f.where = append(f.where, clause{field, value})
	return f
}

// In matches records whose field is one of values.
func (f *Filter) In(field string, values ...string) *Filter {
	if values == nil {
		values = []string{}
	}
	f.where = append(f.where, clause{field, map[string][]string{"inq": values}})
	return f
}

// Fields limits the returned properties.
func (f *Filter) Fields(names ...string) *Filter {
	f.fields = append(f.fields, names...)
	return f
}

// Empty reports whether the filter has no clauses.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.where) == 0 && len(f.fields) == 0)
}

// Encode renders the filter as JSON.
func (f *Filter) Encode() (string, error) {
	if f.Empty() {
		return "", nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	if len(f.where) > 0 {
		buf.WriteString(`"where":{`)
		for i, c := range f.where {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writePair(&buf, c.field, c.value); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	if len(f.fields) > 0 {
		if len(f.where) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"fields":{`)
		for i, name := range f.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writePair(&buf, name, true); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func writePair(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
