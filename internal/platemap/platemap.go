// Package platemap checks plate map files before they enter a build.
package platemap

import (
	"github.com/assaykit/assaykit/internal/table"
)

// RequiredFields must appear in every plate map.
var RequiredFields = []string{
	"pert_dose", "pert_id", "pert_plate", "pert_iname",
	"pert_type", "x_project_id", "pert_vehicle", "pert_well",
}

// Missing returns the required fields t lacks, in RequiredFields order.
func Missing(t *table.Table) []string {
	var out []string
	for _, f := range RequiredFields {
		if !t.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// ValidateFile reads the plate map at path. It returns a
// *table.MissingColumnsError when required fields are absent.
func ValidateFile(path string) error {
	t, err := table.ReadFileAs(path, table.TSV)
	if err != nil {
		return err
	}
	if missing := Missing(t); len(missing) > 0 {
		return &table.MissingColumnsError{Source: path, Missing: missing, Available: t.Columns()}
	}
	return nil
}
