// Package prune removes rows and columns from build files in place.
package prune

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// Condition removes rows whose Field equals Value as text.
type Condition struct {
	Field string
	Value string
}

// MissingFieldError reports a condition field absent from a file.
type MissingFieldError struct {
	Path  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q not in %s (see --ignore-missing-fields)", e.Field, e.Path)
}

// Conditions pairs repeated --field and --value flags in order.
func Conditions(fields, values []string) ([]Condition, error) {
	if len(fields) != len(values) {
		return nil, fmt.Errorf("got %d fields and %d values; each --field needs a --value", len(fields), len(values))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one --field/--value pair is required")
	}
	out := make([]Condition, len(fields))
	for i := range fields {
		out[i] = Condition{Field: fields[i], Value: values[i]}
	}
	return out, nil
}

// RemoveRows drops rows matching any condition. Null cells never match.
// Conditions on absent fields fail unless ignoreMissing is set.
func RemoveRows(t *table.Table, conds []Condition, ignoreMissing bool, source string) (*table.Table, error) {
	var active []Condition
	for _, c := range conds {
		if !t.Has(c.Field) {
			if ignoreMissing {
				continue
			}
			return nil, &MissingFieldError{Path: source, Field: c.Field}
		}
		active = append(active, c)
	}
	if len(active) == 0 {
		return t, nil
	}
	return t.Filter(func(r table.Row) bool {
		for _, c := range active {
			if v := r.Get(c.Field); v.Valid && v.S == c.Value {
				return false
			}
		}
		return true
	}), nil
}

// Files resolves the inputs of remove-data: a single file (relative to
// dataDir when both are set) or every match of the patterns under dataDir.
func Files(file, dataDir string, patterns []string) ([]string, error) {
	if file != "" {
		if dataDir != "" && !filepath.IsAbs(file) {
			file = filepath.Join(dataDir, file)
		}
		return []string{file}, nil
	}
	if dataDir == "" || len(patterns) == 0 {
		return nil, fmt.Errorf("--file or --data-dir with --search-pattern is required")
	}
	var out []string
	for _, p := range patterns {
		m, err := table.Glob(dataDir, p)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

// Destination returns where a pruned file is written: under outDir at the
// same path relative to dataDir, or over src when outDir is empty.
func Destination(src, dataDir, outDir string) (string, error) {
	if outDir == "" {
		return src, nil
	}
	base := dataDir
	if base == "" {
		base = filepath.Dir(src)
	}
	rel, err := filepath.Rel(base, src)
	if err != nil {
		return "", err
	}
	return filepath.Join(outDir, rel), nil
}

// FileResult summarises one pruned file.
type FileResult struct {
	Source string
	Dest   string
	Before int
	After  int
}

// RemoveFromFile applies conds to src and writes the result to dst in the
// same format.
func RemoveFromFile(src, dst string, conds []Condition, ignoreMissing bool, logger *zap.Logger) (FileResult, error) {
	logger = telemetry.OrNop(logger)
	t, err := table.ReadFile(src)
	if err != nil {
		return FileResult{}, err
	}
	for _, c := range conds {
		if !t.Has(c.Field) && ignoreMissing {
			logger.Warn("field not in file", zap.String("field", c.Field), zap.String("file", src))
		}
	}
	out, err := RemoveRows(t, conds, ignoreMissing, src)
	if err != nil {
		return FileResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return FileResult{}, err
	}
	if err := table.WriteFile(dst, out, table.WriteOptions{}); err != nil {
		return FileResult{}, err
	}
	logger.Debug("rows removed", zap.String("file", src), zap.Int("before", t.Len()), zap.Int("after", out.Len()))
	return FileResult{Source: src, Dest: dst, Before: t.Len(), After: out.Len()}, nil
}
