package matrix

import "strings"

// Axis names a matrix axis.
type Axis string

const (
	RowAxis Axis = "row"
	ColAxis Axis = "column"
)

// Disagreement records an id whose records carried more than one distinct
// value for a metadata field. The aggregated value joins them with Delimiter.
type Disagreement struct {
	Axis   Axis
	ID     string
	Field  string
	Values []string
}

func (d Disagreement) String() string {
	return string(d.Axis) + " " + d.ID + ": " + d.Field + " = " + strings.Join(d.Values, Delimiter)
}

// Report collects the non-fatal conditions met while building a Result.
type Report struct {
	// MissingRowMeta and MissingColMeta list declared metadata fields that
	// were not in the input and were left out of the annotations.
	MissingRowMeta []string
	MissingColMeta []string
	Disagreements  []Disagreement
	// SkippedRecords counts records with a null row or column id.
	SkippedRecords int
}

// Clean reports whether nothing was noted.
func (r Report) Clean() bool {
	return len(r.MissingRowMeta) == 0 && len(r.MissingColMeta) == 0 &&
		len(r.Disagreements) == 0 && r.SkippedRecords == 0
}

// DisagreementFields counts disagreements per axis and field.
func (r Report) DisagreementFields() map[string]int {
	out := make(map[string]int)
	for _, d := range r.Disagreements {
		out[string(d.Axis)+"."+d.Field]++
	}
	return out
}
