// Package collate assembles per-plate and per-project outputs into build
// files.
package collate

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/doses"
	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/layout"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// plateFields are per-plate row annotations that do not survive stacking.
var plateFields = []string{"det_plate", "det_plate_scan_time", "assay_plate_barcode"}

type plateKind struct {
	Pattern string
	Level   string
}

var plateKinds = []plateKind{
	{Pattern: "*MEDIAN", Level: layout.Level2MFI},
	{Pattern: "*COUNT", Level: layout.Level2Count},
}

// PlateOptions configures Plates.
type PlateOptions struct {
	ProjDir string
	// Search selects plate directories under ProjDir. Default "*".
	Search     string
	CohortName string
	BuildDir   string
	// ExcludeBarcodes drops rows whose barcode_id is listed.
	ExcludeBarcodes []string
	Format          gct.Format
	RawDoses        bool
	Logger          *zap.Logger
}

// PlateResult lists what Plates wrote.
type PlateResult struct {
	Matrices []string
	InstInfo string
	CellInfo string
}

// Plates stacks the per-plate MEDIAN and COUNT matrices found under
// {ProjDir}/{Search}/assemble/{Search}/ and writes LEVEL2 matrices plus the
// inst_info and cell_info tables.
func Plates(opts PlateOptions) (PlateResult, error) {
	logger := telemetry.OrNop(opts.Logger)
	if opts.Search == "" {
		opts.Search = "*"
	}
	if opts.Format == "" {
		opts.Format = gct.Binary
	}
	if err := os.MkdirAll(opts.BuildDir, 0o755); err != nil {
		return PlateResult{}, err
	}

	var (
		res    PlateResult
		median *matrix.Result
	)
	for _, kind := range plateKinds {
		files, err := plateFiles(opts, kind.Pattern)
		if err != nil {
			return res, err
		}
		if len(files) == 0 {
			return res, fmt.Errorf("no %s matrices under %s", kind.Pattern, opts.ProjDir)
		}
		logger.Info("stacking plates", zap.String("level", kind.Level), zap.Int("files", len(files)))

		stacked, err := stackPlates(files)
		if err != nil {
			return res, fmt.Errorf("%s: %w", kind.Level, err)
		}
		if stacked, err = excludeBarcodes(stacked, opts.ExcludeBarcodes); err != nil {
			return res, err
		}
		path, err := gct.Write(opts.BuildDir, opts.CohortName+"_"+kind.Level, stacked.WithoutMeta(),
			gct.Options{Format: opts.Format, AppendDims: true})
		if err != nil {
			return res, err
		}
		res.Matrices = append(res.Matrices, path)
		if kind.Level == layout.Level2MFI {
			median = stacked
		}
	}

	var err error
	if res.InstInfo, err = writeInstInfo(opts, median); err != nil {
		return res, err
	}
	if res.CellInfo, err = writeCellInfo(opts, median); err != nil {
		return res, err
	}
	return res, nil
}

func plateFiles(opts PlateOptions, pattern string) ([]string, error) {
	var out []string
	for _, ext := range []string{gct.Text.Ext(), gct.Binary.Ext()} {
		m, err := table.Glob(opts.ProjDir, filepath.Join(opts.Search, "assemble", opts.Search, pattern+ext))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

func stackPlates(files []string) (*matrix.Result, error) {
	parts := make([]*matrix.Result, len(files))
	for i, f := range files {
		r, err := gct.Read(f)
		if err != nil {
			return nil, err
		}
		parts[i] = r
	}
	stacked, err := matrix.HStack(parts...)
	if err != nil {
		return nil, err
	}
	return stacked.DropRowFields(plateFields...)
}

func excludeBarcodes(r *matrix.Result, barcodes []string) (*matrix.Result, error) {
	if len(barcodes) == 0 {
		return r, nil
	}
	drop := make(map[string]bool, len(barcodes))
	for _, b := range barcodes {
		drop[b] = true
	}
	var missing bool
	out, err := r.FilterRows(func(_ int, id string) bool {
		v, ok := r.RowMeta.Get(id, "barcode_id")
		if !ok {
			missing = true
			return true
		}
		return !drop[v.S]
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, fmt.Errorf("cannot exclude barcodes: row annotations have no barcode_id")
	}
	return out, nil
}

func writeInstInfo(opts PlateOptions, median *matrix.Result) (string, error) {
	inst, err := median.ColMeta.Table("profile_id")
	if err != nil {
		return "", err
	}
	inst = inst.Drop("data_level", "provenance")
	if !opts.RawDoses {
		if inst, err = doses.Normalize(inst); err != nil {
			return "", err
		}
	}
	path := filepath.Join(opts.BuildDir, opts.CohortName+"_inst_info.txt")
	return path, table.WriteFile(path, inst, table.WriteOptions{})
}

func writeCellInfo(opts PlateOptions, median *matrix.Result) (string, error) {
	cell, err := median.RowMeta.Table("rid")
	if err != nil {
		return "", err
	}
	path := filepath.Join(opts.BuildDir, opts.CohortName+"_cell_info.txt")
	return path, table.WriteFile(path, cell, table.WriteOptions{})
}
