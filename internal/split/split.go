// Package split slices LEVEL4 data into per-project and per-compound files
// and pivots those slices.
package split

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/layout"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

var (
	keySchema = table.Schema{Fields: []table.Field{{Name: "x_project_id"}, {Name: "pert_iname"}}}
	lfcSchema = table.Schema{Fields: []table.Field{
		{Name: "x_project_id"}, {Name: "pert_iname"}, {Name: "profile_id"}, {Name: "rid"},
	}}
)

// Slice is one written split file.
type Slice struct {
	Project string
	// Pert is empty for the whole-project file.
	Pert string
	Path string
	Rows int
}

// ByCompound writes the LEVEL4 rows of each compound key project, then one
// file per compound of that project.
func ByCompound(key, level4 *table.Table, outDir string, logger *zap.Logger) ([]Slice, error) {
	logger = telemetry.OrNop(logger)
	if err := keySchema.Validate(key, "compound key"); err != nil {
		return nil, err
	}
	if err := lfcSchema.Validate(level4, "LEVEL4_LFC"); err != nil {
		return nil, err
	}

	var out []Slice
	projects, groups := key.GroupIndex("x_project_id")
	for _, project := range projects {
		if project == "" {
			continue
		}
		perts := perts(key, groups[project])
		wanted := make(map[string]bool, len(perts))
		for _, p := range perts {
			wanted[p] = true
		}
		data := level4.Filter(func(r table.Row) bool {
			return r.String("x_project_id") == project && wanted[r.String("pert_iname")]
		})

		dir := filepath.Join(outDir, project)
		s, err := write(dir, project, data)
		if err != nil {
			return out, err
		}
		s.Project = project
		out = append(out, s)
		logger.Info("project split", zap.String("project", project), zap.Strings("perts", perts))

		for _, pert := range perts {
			clean := layout.CleanName(pert)
			pertData := data.Filter(func(r table.Row) bool { return r.String("pert_iname") == pert })
			s, err := write(filepath.Join(dir, clean), clean, pertData)
			if err != nil {
				return out, err
			}
			s.Project, s.Pert = project, pert
			out = append(out, s)
			logger.Debug("compound split", zap.String("pert", pert), zap.String("path", s.Path))
		}
	}
	return out, nil
}

func perts(key *table.Table, rows []int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, i := range rows {
		v := key.Value(i, "pert_iname")
		if !v.Valid || seen[v.S] {
			continue
		}
		seen[v.S] = true
		out = append(out, v.S)
	}
	return out
}

func write(dir, prefix string, t *table.Table) (Slice, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Slice{}, err
	}
	name := layout.DimsName(prefix, layout.Level4LFC,
		layout.CountDistinct(t, "profile_id"), layout.CountDistinct(t, "rid"), ".csv")
	path := filepath.Join(dir, name)
	if err := table.WriteFile(path, t, table.WriteOptions{}); err != nil {
		return Slice{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Slice{Path: path, Rows: t.Len()}, nil
}

// CompoundDir returns the directory holding one compound's split, with an
// optional pert plate level.
func CompoundDir(splitsDir, project, pertPlate, pert string) string {
	parts := []string{splitsDir, project}
	if pertPlate != "" {
		parts = append(parts, pertPlate)
	}
	return filepath.Join(append(parts, layout.CleanName(pert))...)
}

// CompoundDirs lists every directory below the project directory that holds
// a file matching pattern, sorted.
func CompoundDirs(splitsDir, project, pattern string) ([]string, error) {
	root := filepath.Join(splitsDir, project)
	files, err := table.Glob(root, "**/"+pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		d := filepath.Dir(f)
		if d == root || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// OutputName is the pivoted matrix base name for a compound directory.
func OutputName(valueField, compoundDir string) string {
	return "LEVEL4_" + valueField + "_" + filepath.Base(compoundDir)
}
