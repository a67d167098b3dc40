// Package pivot turns a long-form table file into a matrix file.
package pivot

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// DefaultColMeta are the profile fields kept as column annotations.
var DefaultColMeta = []string{
	"profile_id", "prism_replicate", "pert_iname", "pert_id", "pert_dose",
	"pert_dose_unit", "pert_idose", "pert_itime", "pert_mfc_desc", "pert_plate",
	"pert_time", "pert_time_unit", "pert_type", "pert_vehicle", "pert_well",
	"x_group_by", "x_mixture_contents", "x_mixture_id", "x_project_id",
}

// DefaultRowMeta are the cell line fields kept as row annotations.
var DefaultRowMeta = []string{"rid", "ccle_name", "pool_id", "culture"}

// DefaultSpec returns the standard field layout for the value column.
func DefaultSpec(value string) matrix.Spec {
	return matrix.Spec{
		RowID:   "rid",
		ColID:   "profile_id",
		Value:   value,
		RowMeta: append([]string(nil), DefaultRowMeta...),
		ColMeta: append([]string(nil), DefaultColMeta...),
	}
}

// Options controls one pivot.
type Options struct {
	Spec   matrix.Spec
	OutDir string
	Name   string
	Output gct.Options
	Logger *zap.Logger
}

// Outcome describes a written matrix.
type Outcome struct {
	Source  string
	Path    string
	Records int
	Result  *matrix.Result
}

// File pivots the table at path and writes the matrix.
func File(path string, opts Options) (Outcome, error) {
	t, err := table.ReadFile(path)
	if err != nil {
		return Outcome{}, err
	}
	out, err := Table(t, opts)
	if err != nil {
		return Outcome{}, fmt.Errorf("pivot %s: %w", path, err)
	}
	out.Source = path
	return out, nil
}

// Table pivots t and writes the matrix.
func Table(t *table.Table, opts Options) (Outcome, error) {
	logger := telemetry.OrNop(opts.Logger)
	res, err := matrix.Build(t, opts.Spec)
	if err != nil {
		return Outcome{}, err
	}
	LogReport(logger, res.Report)

	path, err := gct.Write(opts.OutDir, opts.Name, res, opts.Output)
	if err != nil {
		return Outcome{}, err
	}
	cols, rows := res.Dims()
	logger.Info("matrix written",
		zap.String("path", path),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
	)
	return Outcome{Path: path, Records: t.Len(), Result: res}, nil
}

// LogReport writes the non-fatal build conditions: missing metadata at warn
// level and disagreements at debug level.
func LogReport(logger *zap.Logger, r matrix.Report) {
	if len(r.MissingRowMeta) > 0 {
		logger.Warn("row metadata fields not in input", zap.Strings("fields", r.MissingRowMeta))
	}
	if len(r.MissingColMeta) > 0 {
		logger.Warn("column metadata fields not in input", zap.Strings("fields", r.MissingColMeta))
	}
	if r.SkippedRecords > 0 {
		logger.Warn("records with a null id skipped", zap.Int("count", r.SkippedRecords))
	}
	for _, d := range r.Disagreements {
		logger.Debug("metadata values joined", zap.String("detail", d.String()))
	}
}
