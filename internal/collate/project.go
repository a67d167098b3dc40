package collate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// ProjectPatterns are the per-compound outputs gathered into project files.
var ProjectPatterns = []string{
	"DRC_TABLE", "LEVEL3_LMFI", "LEVEL4_LFC_COMBAT", "LEVEL4_LFC",
	"LEVEL5_LFC_COMBAT", "LEVEL5_LFC", "model_table", "RF_table",
	"discrete_associations", "continuous_associations", "synergy_table",
	"bliss_mss_table",
}

// ProjectOptions configures Project.
type ProjectOptions struct {
	DataDir string
	OutDir  string
	Project string
	// Screen overrides the screen column when set.
	Screen string
	Comma  rune
	Logger *zap.Logger
}

// Merged is one merged output file.
type Merged struct {
	Pattern string
	Path    string
	Stats   table.MergeStats
}

// Project merges {DataDir}/*/*{pattern}* into {OutDir}/{Project}_{pattern}.csv
// for every pattern. x_project_id and screen are forced where the inputs
// carry them. Patterns without matches are skipped.
func Project(opts ProjectOptions) ([]Merged, error) {
	logger := telemetry.OrNop(opts.Logger)
	overrides := []table.Override{{Column: "x_project_id", Value: opts.Project, IfPresent: true}}
	if opts.Screen != "" {
		overrides = append(overrides, table.Override{Column: "screen", Value: opts.Screen, IfPresent: true})
	}

	var out []Merged
	for _, pattern := range ProjectPatterns {
		files, err := table.Glob(opts.DataDir, filepath.Join("*", "*", "*"+pattern+"*"))
		if err != nil {
			return out, err
		}
		files = projectFiles(pattern, files)
		if len(files) == 0 {
			logger.Debug("no files for pattern", zap.String("pattern", pattern))
			continue
		}
		path := filepath.Join(opts.OutDir, opts.Project+"_"+pattern+".csv")
		stats, err := mergeTo(path, files, table.MergeOptions{Comma: opts.Comma, Overrides: overrides})
		if err != nil {
			return out, fmt.Errorf("%s: %w", pattern, err)
		}
		logger.Info("project file merged",
			zap.String("pattern", pattern),
			zap.String("path", path),
			zap.Int("files", stats.Files),
			zap.Int("rows", stats.Rows),
		)
		out = append(out, Merged{Pattern: pattern, Path: path, Stats: stats})
	}
	return out, nil
}

// projectFiles drops matrix files and, for the plain LFC levels, their
// COMBAT variants.
func projectFiles(pattern string, files []string) []string {
	var out []string
	for _, f := range files {
		if gct.IsMatrixPath(f) {
			continue
		}
		if (pattern == "LEVEL4_LFC" || pattern == "LEVEL5_LFC") && strings.Contains(filepath.Base(f), "COMBAT") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MergeOptions configures MergeCSV.
type MergeOptions struct {
	DataDir string
	OutDir  string
	Pattern string
	// OutFile overrides the derived output name.
	OutFile    string
	FilePrefix string
	// AddProjectName searches {DataDir}/*/* and prefixes the output with the
	// base name of DataDir.
	AddProjectName bool
	Comma          rune
}

// MergeOutputName derives the merge-csv output file name.
func MergeOutputName(opts MergeOptions) string {
	stem := strings.NewReplacer("*", "", "?", "").Replace(opts.Pattern)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	stem = strings.Trim(stem, "_")
	switch {
	case opts.OutFile != "":
		return opts.OutFile
	case opts.AddProjectName:
		return filepath.Base(filepath.Clean(opts.DataDir)) + "_" + stem + ".csv"
	case opts.FilePrefix != "":
		return strings.TrimRight(opts.FilePrefix, "_") + "_" + stem + ".csv"
	}
	return stem + ".csv"
}

// MergeCSV merges every file matching the pattern into one file.
func MergeCSV(opts MergeOptions) (Merged, error) {
	dir := opts.DataDir
	pattern := opts.Pattern
	if opts.AddProjectName {
		pattern = filepath.Join("*", "*", pattern)
	}
	files, err := table.Glob(dir, pattern)
	if err != nil {
		return Merged{}, err
	}
	if len(files) == 0 {
		return Merged{}, &table.MatchError{Dir: dir, Pattern: pattern}
	}
	path := filepath.Join(opts.OutDir, MergeOutputName(opts))
	stats, err := mergeTo(path, files, table.MergeOptions{Comma: opts.Comma})
	if err != nil {
		return Merged{}, err
	}
	return Merged{Pattern: opts.Pattern, Path: path, Stats: stats}, nil
}

func mergeTo(path string, files []string, opts table.MergeOptions) (stats table.MergeStats, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return stats, err
	}
	f, err := os.Create(path)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if stats, err = table.Merge(w, files, opts); err != nil {
		return stats, err
	}
	return stats, w.Flush()
}

// Concat merges every file under dir matching pattern into the CSV at out.
// The pattern may span directories, e.g. */*/*LEVEL3*.csv.
func Concat(dir, pattern, out string) (Merged, error) {
	files, err := table.Glob(dir, pattern)
	if err != nil {
		return Merged{}, err
	}
	if len(files) == 0 {
		return Merged{}, &table.MatchError{Dir: dir, Pattern: pattern}
	}
	stats, err := mergeTo(out, files, table.MergeOptions{})
	if err != nil {
		return Merged{}, err
	}
	return Merged{Pattern: pattern, Path: out, Stats: stats}, nil
}
