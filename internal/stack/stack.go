// Package stack combines the files of several builds into one build.
package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/doses"
	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/layout"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// Contents lists the build files stack knows about, in processing order.
var Contents = []layout.Entry{
	{Key: layout.InstInfo, Pattern: "*_inst_info.txt", Kind: layout.Metadata},
	{Key: layout.CellInfo, Pattern: "*_cell_info.txt", Kind: layout.Metadata},
	{Key: layout.QCTable, Pattern: "*QC_TABLE*.csv", Kind: layout.Report},
	{Key: layout.CompoundKey, Pattern: "*compound_key.csv", Kind: layout.Key},
	{Key: layout.Level2Count, Pattern: "*_LEVEL2_COUNT*", Kind: layout.Matrix},
	{Key: layout.Level2MFI, Pattern: "*_LEVEL2_MFI*", Kind: layout.Matrix},
	{Key: layout.Level3LMFI, Pattern: "*_LEVEL3_LMFI*", Kind: layout.Data},
	{Key: layout.Level4LFC, Pattern: "*_LEVEL4_LFC_n*", Kind: layout.Data},
	{Key: layout.Level4LFCCombat, Pattern: "*_LEVEL4_LFC_COMBAT*", Kind: layout.Data, Optional: true},
	{Key: layout.Level5LFC, Pattern: "*_LEVEL5_LFC_n*", Kind: layout.Data},
	{Key: layout.Level5LFCCombat, Pattern: "*_LEVEL5_LFC_COMBAT*", Kind: layout.Data, Optional: true},
}

// Options configures a stack.
type Options struct {
	Builds []string
	Name   string
	OutDir string
	// Keys restricts the stacked files. Empty means all of Contents.
	Keys      []string
	SigIDCols []string
	// RawDoses leaves inst_info doses as they were read.
	RawDoses bool
	Logger   *zap.Logger
}

// Written is one stacked output.
type Written struct {
	Key  string
	Kind layout.Kind
	Path string
	Rows int
	// Cols and MatrixRows are the matrix dims for data and matrix outputs.
	Cols       int
	MatrixRows int
}

// Run stacks every selected key across the builds.
func Run(opts Options) ([]Written, error) {
	logger := telemetry.OrNop(opts.Logger)
	if len(opts.Builds) == 0 {
		return nil, fmt.Errorf("no builds to stack")
	}
	if len(opts.SigIDCols) == 0 {
		opts.SigIDCols = layout.DefaultSigIDCols
	}
	entries, err := selectEntries(opts.Keys)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, err
	}

	var out []Written
	for _, e := range entries {
		files, err := findFiles(opts.Builds, e)
		if err != nil {
			return out, err
		}
		if files == nil {
			logger.Info("optional key not found in any build", zap.String("key", e.Key))
			continue
		}
		logger.Info("stacking", zap.String("key", e.Key), zap.Strings("files", files))

		w, err := stackKey(e, files, opts)
		if err != nil {
			return out, fmt.Errorf("%s: %w", e.Key, err)
		}
		logger.Info("stacked", zap.String("key", e.Key), zap.String("path", w.Path), zap.Int("rows", w.Rows))
		out = append(out, w)
	}
	return out, nil
}

func selectEntries(keys []string) ([]layout.Entry, error) {
	if len(keys) == 0 {
		return Contents, nil
	}
	var out []layout.Entry
	for _, k := range keys {
		found := false
		for _, e := range Contents {
			if e.Key == k {
				out = append(out, e)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown stack key %q", k)
		}
	}
	return out, nil
}

// findFiles returns one file per build. Nil means an optional key absent
// from every build.
func findFiles(builds []string, e layout.Entry) ([]string, error) {
	var files []string
	missing := 0
	for _, b := range builds {
		matches, err := table.Glob(b, e.Pattern)
		if err != nil {
			return nil, err
		}
		matches = usable(matches)
		switch len(matches) {
		case 0:
			missing++
		case 1:
			files = append(files, matches[0])
		default:
			return nil, fmt.Errorf("too many files for key %s: %w", e.Key,
				&table.MatchError{Dir: b, Pattern: e.Pattern, Matches: matches})
		}
	}
	if missing == len(builds) && e.Optional {
		return nil, nil
	}
	if missing > 0 {
		return nil, fmt.Errorf("files for key %s not found in %d of %d builds", e.Key, missing, len(builds))
	}
	return files, nil
}

// usable drops files that are neither tables nor matrices.
func usable(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if gct.IsMatrixPath(p) {
			out = append(out, p)
			continue
		}
		if _, err := table.FormatFor(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func allMatrices(files []string) (bool, error) {
	n := 0
	for _, f := range files {
		if gct.IsMatrixPath(f) {
			n++
		}
	}
	switch n {
	case 0:
		return false, nil
	case len(files):
		return true, nil
	}
	return false, fmt.Errorf("mix of matrix and table files: %s", strings.Join(files, ", "))
}

func stackKey(e layout.Entry, files []string, opts Options) (Written, error) {
	matrices, err := allMatrices(files)
	if err != nil {
		return Written{}, err
	}
	if e.Kind == layout.Matrix || (e.Kind == layout.Data && matrices) {
		if !matrices {
			return Written{}, fmt.Errorf("expected matrix files, got %s", strings.Join(files, ", "))
		}
		return stackMatrices(e, files, opts)
	}

	tables := make([]*table.Table, len(files))
	for i, f := range files {
		if tables[i], err = table.ReadFile(f); err != nil {
			return Written{}, err
		}
	}
	combined := table.Concat(tables...)

	switch e.Kind {
	case layout.Data:
		return stackData(e, combined, opts)
	case layout.Metadata:
		if e.Key == layout.InstInfo && !opts.RawDoses {
			if combined, err = doses.Normalize(combined); err != nil {
				return Written{}, err
			}
		}
		return write(e, combined, filepath.Join(opts.OutDir, fmt.Sprintf("%s_%s.txt", opts.Name, e.Key)))
	case layout.Key:
		combined = combined.Distinct()
	}
	return write(e, combined, filepath.Join(opts.OutDir, fmt.Sprintf("%s_%s.csv", opts.Name, e.Key)))
}

func stackMatrices(e layout.Entry, files []string, opts Options) (Written, error) {
	var (
		melted     []*table.Table
		cols, rows int
	)
	for _, f := range files {
		r, err := gct.Read(f)
		if err != nil {
			return Written{}, err
		}
		c, n, ok := gct.ParseDims(f)
		if !ok {
			c, n = r.Dims()
		}
		cols += c
		rows += n
		melted = append(melted, gct.Melt(r))
	}
	t := table.Concat(melted...)
	path := filepath.Join(opts.OutDir, layout.DimsName(opts.Name, e.Key, cols, rows, ".csv"))
	w, err := write(e, t, path)
	w.Cols, w.MatrixRows = cols, rows
	return w, err
}

func stackData(e layout.Entry, t *table.Table, opts Options) (Written, error) {
	if err := table.Require(t, e.Key, "culture", "ccle_name"); err != nil {
		return Written{}, err
	}
	t = t.WithColumn("feature_id", func(r table.Row) table.Value {
		return table.Str(r.String("culture") + ":" + r.String("ccle_name"))
	})
	profile := "profile_id"
	if strings.HasPrefix(e.Key, "LEVEL5") {
		var err error
		if t, err = layout.WithSigID(t, opts.SigIDCols); err != nil {
			return Written{}, err
		}
		profile = "sig_id"
	}
	cols := layout.CountDistinct(t, profile)
	rows := layout.CountDistinct(t, "feature_id")
	path := filepath.Join(opts.OutDir, layout.DimsName(opts.Name, e.Key, cols, rows, ".csv"))
	w, err := write(e, t, path)
	w.Cols, w.MatrixRows = cols, rows
	return w, err
}

func write(e layout.Entry, t *table.Table, path string) (Written, error) {
	if err := table.WriteFile(path, t, table.WriteOptions{}); err != nil {
		return Written{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Written{Key: e.Key, Kind: e.Kind, Path: path, Rows: t.Len()}, nil
}
