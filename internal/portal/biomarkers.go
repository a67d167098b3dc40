package portal

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/assaykit/assaykit/internal/table"
)

// DefaultTop is the number of biomarkers kept per association table.
const DefaultTop = 10

// TopBiomarkers returns the n rows of t with the largest |coef|. Ties keep
// their input order and rows without a numeric coef sort last.
func TopBiomarkers(t *table.Table, n int, source string) (*table.Table, error) {
	if err := table.Require(t, source, "coef"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("top must be positive, got %d", n)
	}
	abs := func(r table.Row) float64 {
		v, ok := r.Get("coef").Float()
		if !ok || math.IsNaN(v) {
			return math.Inf(-1)
		}
		return math.Abs(v)
	}
	sorted := t.SortStable(func(a, b table.Row) bool { return abs(a) > abs(b) })
	return sorted.Head(n), nil
}

// BiomarkerFile names the output for the top n biomarkers.
func BiomarkerFile(n int) string {
	return fmt.Sprintf("top_%d_biomarkers.csv", n)
}

// ExtractBiomarkers writes the top n biomarkers of each file. Outputs go to
// outDir, or next to their input when outDir is empty; two inputs may not
// share an output.
func ExtractBiomarkers(files []string, outDir string, n int) ([]string, error) {
	seen := make(map[string]string, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(f)
		}
		dst := filepath.Join(dir, BiomarkerFile(n))
		if prev, ok := seen[dst]; ok {
			return out, fmt.Errorf("%s and %s both write %s", prev, f, dst)
		}
		seen[dst] = f

		t, err := table.ReadFile(f)
		if err != nil {
			return out, err
		}
		top, err := TopBiomarkers(t, n, f)
		if err != nil {
			return out, err
		}
		if err := table.WriteFileAs(dst, top, table.CSV, table.WriteOptions{}); err != nil {
			return out, err
		}
		out = append(out, dst)
	}
	return out, nil
}
