package prune

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// WellMatchColumns identify a physical well across data and skip records.
var WellMatchColumns = []string{"screen", "pert_plate", "pert_well", "pool_id", "replicate"}

// DefaultSkipPatterns select the data files filtered for skipped wells.
var DefaultSkipPatterns = []string{"*LEVEL3_LMFI*.csv", "*LEVEL4_LFC*.csv"}

// RemovedWellsFile is written next to the data with the dropped rows.
const RemovedWellsFile = "removed_wells.csv"

// SkippedWellSource looks up skipped wells for pert plates.
type SkippedWellSource interface {
	SkippedWells(ctx context.Context, plates []string) (*table.Table, error)
}

// DropSkippedWells removes the rows of data matching a skipped well. The
// skip table's assay_well_position is read as pert_well; only match columns
// present in both tables are compared.
func DropSkippedWells(data, skipped *table.Table) (kept, removed *table.Table, err error) {
	if skipped.Len() == 0 {
		return data, table.Empty(data.Columns()...), nil
	}
	if skipped.Has("assay_well_position") && !skipped.Has("pert_well") {
		if skipped, err = skipped.Rename(map[string]string{"assay_well_position": "pert_well"}); err != nil {
			return nil, nil, err
		}
	}
	var on []string
	for _, c := range WellMatchColumns {
		if data.Has(c) && skipped.Has(c) {
			on = append(on, c)
		}
	}
	if len(on) == 0 {
		return nil, nil, fmt.Errorf("no well columns shared by data and skipped wells (want any of %v)", WellMatchColumns)
	}
	return data.AntiJoin(skipped, on)
}

// SkipResult summarises a skipped-well filter run.
type SkipResult struct {
	Files   []FileResult
	Removed string
	Plates  []string
}

// FilterSkippedWells rewrites every data file under dataDir without the
// skipped wells reported by src and writes the removed rows to
// removed_wells.csv.
func FilterSkippedWells(ctx context.Context, src SkippedWellSource, dataDir string, patterns []string, logger *zap.Logger) (SkipResult, error) {
	logger = telemetry.OrNop(logger)
	if len(patterns) == 0 {
		patterns = DefaultSkipPatterns
	}
	files, err := Files("", dataDir, patterns)
	if err != nil {
		return SkipResult{}, err
	}
	if len(files) == 0 {
		return SkipResult{}, &table.MatchError{Dir: dataDir, Pattern: fmt.Sprint(patterns)}
	}

	tables := make([]*table.Table, len(files))
	var all []*table.Table
	for i, f := range files {
		if tables[i], err = table.ReadFile(f); err != nil {
			return SkipResult{}, err
		}
		if err := table.Require(tables[i], f, "pert_plate"); err != nil {
			return SkipResult{}, err
		}
		all = append(all, tables[i])
	}
	plates := table.Concat(all...).Unique("pert_plate")
	logger.Info("looking up skipped wells", zap.Int("plates", len(plates)))

	skipped, err := src.SkippedWells(ctx, plates)
	if err != nil {
		return SkipResult{}, err
	}

	res := SkipResult{Plates: plates}
	var removed []*table.Table
	for i, f := range files {
		kept, gone, err := DropSkippedWells(tables[i], skipped)
		if err != nil {
			return res, fmt.Errorf("%s: %w", f, err)
		}
		if err := table.WriteFile(f, kept, table.WriteOptions{}); err != nil {
			return res, err
		}
		res.Files = append(res.Files, FileResult{Source: f, Dest: f, Before: tables[i].Len(), After: kept.Len()})
		removed = append(removed, gone)
		logger.Info("skipped wells removed", zap.String("file", f), zap.Int("rows", gone.Len()))
	}

	res.Removed = filepath.Join(dataDir, RemovedWellsFile)
	if err := table.WriteFile(res.Removed, table.Concat(removed...), table.WriteOptions{}); err != nil {
		return res, err
	}
	return res, nil
}
