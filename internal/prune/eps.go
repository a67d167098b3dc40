package prune

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/assaykit/assaykit/internal/table"
)

const ic50 = "log2.ic50"

// biomarkerPatterns select the association outputs that carry IC50 rows.
var biomarkerPatterns = []string{
	"*continuous_association*",
	"*discrete_associations*",
	"*RF_table*",
	"*model_table*",
}

// EPSPlan lists the files an EPS prep touches. Every file must exist exactly
// once under {project}/*/data/.
type EPSPlan struct {
	DRCTable   string
	IC50Matrix string
	Biomarkers []string
}

// Files returns every path the plan modifies or deletes.
func (p EPSPlan) Files() []string {
	return append([]string{p.DRCTable, p.IC50Matrix}, p.Biomarkers...)
}

// PlanEPS resolves the files under projectDir.
func PlanEPS(projectDir string) (EPSPlan, error) {
	one := func(pattern string) (string, error) {
		return table.GlobOne(projectDir, filepath.Join("*", "data", pattern))
	}
	var (
		p   EPSPlan
		err error
	)
	if p.DRCTable, err = one("*DRC_TABLE*"); err != nil {
		return p, err
	}
	if p.IC50Matrix, err = one("*IC50_MATRIX*"); err != nil {
		return p, err
	}
	for _, pattern := range biomarkerPatterns {
		f, err := one(pattern)
		if err != nil {
			return p, err
		}
		p.Biomarkers = append(p.Biomarkers, f)
	}
	return p, nil
}

// ApplyEPS drops the IC50 column from the DRC table, deletes the IC50 matrix
// and removes IC50 dose rows from the biomarker tables, all in place.
func ApplyEPS(p EPSPlan) error {
	drc, err := table.ReadFile(p.DRCTable)
	if err != nil {
		return err
	}
	if err := table.WriteFile(p.DRCTable, drc.Drop(ic50), table.WriteOptions{}); err != nil {
		return err
	}
	if err := os.Remove(p.IC50Matrix); err != nil {
		return fmt.Errorf("delete IC50 matrix: %w", err)
	}
	for _, f := range p.Biomarkers {
		t, err := table.ReadFile(f)
		if err != nil {
			return err
		}
		pruned, err := RemoveRows(t, []Condition{{Field: "pert_dose", Value: ic50}}, false, f)
		if err != nil {
			return err
		}
		if err := table.WriteFile(f, pruned, table.WriteOptions{}); err != nil {
			return err
		}
	}
	return nil
}
