// Package deal splits a build into per-project folders.
package deal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/batch"
	"github.com/assaykit/assaykit/internal/layout"
	"github.com/assaykit/assaykit/internal/table"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// Options configures a deal.
type Options struct {
	BuildPath string
	OutDir    string
	// Projects restricts the projects dealt. Empty means every project in
	// inst_info.
	Projects []string
	// Keys restricts the build files dealt. Empty means all of them.
	Keys []string
	// SigIDCols build LEVEL5 sig_ids when the column is missing.
	SigIDCols []string
	// IgnoreMissing skips build files that are not found.
	IgnoreMissing bool
	Pool          *batch.Pool
	Logger        *zap.Logger
}

// Written is one file produced for a project.
type Written struct {
	Project string
	Key     string
	Path    string
	Rows    int
}

type source struct {
	entry layout.Entry
	path  string
	data  *table.Table
}

type build struct {
	opts    Options
	inst    *table.Table
	qc      *table.Table
	cell    string
	levels  []source
	written []Written
	mu      sync.Mutex
}

// Run deals the build. Projects are processed in parallel on opts.Pool.
func Run(ctx context.Context, opts Options) ([]Written, error) {
	if len(opts.SigIDCols) == 0 {
		opts.SigIDCols = layout.DefaultSigIDCols
	}
	if opts.Pool == nil {
		opts.Pool = batch.NewPool(1, opts.Logger)
	}
	logger := telemetry.OrNop(opts.Logger)

	b := &build{opts: opts}
	if err := b.load(logger); err != nil {
		return nil, err
	}

	projects := opts.Projects
	if len(projects) == 0 {
		projects = b.inst.Unique("x_project_id")
	}
	tasks := make([]batch.Task[string], len(projects))
	for i, p := range projects {
		tasks[i] = batch.Task[string]{Name: p, Input: p}
	}
	outcomes := batch.Run(ctx, opts.Pool, tasks, b.project)

	sort.SliceStable(b.written, func(i, j int) bool {
		return b.written[i].Project < b.written[j].Project
	})
	return b.written, batch.Errors(outcomes)
}

func (b *build) wants(key string) bool {
	if len(b.opts.Keys) == 0 {
		return true
	}
	for _, k := range b.opts.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// find resolves the single file for e. A missing file returns "" when it may
// be skipped.
func (b *build) find(e layout.Entry, logger *zap.Logger) (string, error) {
	path, err := table.GlobOne(b.opts.BuildPath, e.Pattern)
	if err == nil {
		return path, nil
	}
	if table.IsNoMatch(err) && (b.opts.IgnoreMissing || e.Optional) {
		logger.Info("build file not found, skipping", zap.String("key", e.Key), zap.String("pattern", e.Pattern))
		return "", nil
	}
	return "", fmt.Errorf("%s: %w", e.Key, err)
}

func (b *build) load(logger *zap.Logger) error {
	instEntry, _ := layout.Lookup(layout.InstInfo)
	path, err := table.GlobOne(b.opts.BuildPath, instEntry.Pattern)
	if err != nil {
		return fmt.Errorf("%s: %w", layout.InstInfo, err)
	}
	if b.inst, err = table.ReadFile(path); err != nil {
		return err
	}
	if err := table.Require(b.inst, path, "x_project_id", "profile_id", "prism_replicate"); err != nil {
		return err
	}

	if b.wants(layout.CellInfo) {
		e, _ := layout.Lookup(layout.CellInfo)
		if b.cell, err = b.find(e, logger); err != nil {
			return err
		}
	}
	if b.wants(layout.QCTable) {
		e, _ := layout.Lookup(layout.QCTable)
		path, err := b.find(e, logger)
		if err != nil {
			return err
		}
		if path != "" {
			if b.qc, err = table.ReadFile(path); err != nil {
				return err
			}
			if err := table.Require(b.qc, path, "prism_replicate"); err != nil {
				return err
			}
		}
	}

	for _, e := range layout.DataLevels {
		if !b.wants(e.Key) {
			continue
		}
		path, err := b.find(e, logger)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}
		data, err := table.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.HasPrefix(e.Key, "LEVEL5") {
			if data, err = layout.WithSigID(data, b.opts.SigIDCols); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		b.levels = append(b.levels, source{entry: e, path: path, data: data})
		logger.Debug("data level loaded", zap.String("key", e.Key), zap.Int("rows", data.Len()))
	}
	return nil
}

func (b *build) record(w Written) {
	b.mu.Lock()
	b.written = append(b.written, w)
	b.mu.Unlock()
}

func (b *build) project(ctx context.Context, project string) error {
	dir := filepath.Join(b.opts.OutDir, project, "data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	projInst := b.inst.Filter(func(r table.Row) bool { return r.String("x_project_id") == project })

	if b.wants(layout.InstInfo) {
		path := filepath.Join(dir, project+"_inst_info.txt")
		if err := table.WriteFile(path, projInst, table.WriteOptions{}); err != nil {
			return err
		}
		b.record(Written{Project: project, Key: layout.InstInfo, Path: path, Rows: projInst.Len()})
	}
	if b.cell != "" {
		path := filepath.Join(dir, project+"_cell_info.txt")
		if err := copyFile(b.cell, path); err != nil {
			return err
		}
		b.record(Written{Project: project, Key: layout.CellInfo, Path: path})
	}
	if b.qc != nil {
		reps := stringSet(projInst.Unique("prism_replicate"))
		projQC := b.qc.Filter(func(r table.Row) bool { return reps[r.String("prism_replicate")] })
		path := filepath.Join(dir, project+"_QC_TABLE.csv")
		if err := table.WriteFile(path, projQC, table.WriteOptions{}); err != nil {
			return err
		}
		b.record(Written{Project: project, Key: layout.QCTable, Path: path, Rows: projQC.Len()})
	}

	for _, src := range b.levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		sliced, cols, rows, err := b.slice(src, project)
		if err != nil {
			return fmt.Errorf("%s: %w", src.entry.Key, err)
		}
		path := filepath.Join(dir, layout.DimsName(project, src.entry.Key, cols, rows, ".csv"))
		if err := table.WriteFile(path, sliced, table.WriteOptions{}); err != nil {
			return err
		}
		b.record(Written{Project: project, Key: src.entry.Key, Path: path, Rows: sliced.Len()})
	}
	return nil
}

// slice returns the project's rows of one data level and its matrix dims.
func (b *build) slice(src source, project string) (t *table.Table, cols, rows int, err error) {
	data := src.data
	if !src.entry.Annotated {
		if err := table.Require(data, src.path, "cid", "rid"); err != nil {
			return nil, 0, 0, err
		}
		withCtl, err := PlusControls(b.inst, project)
		if err != nil {
			return nil, 0, 0, err
		}
		profiles := stringSet(withCtl.Unique("profile_id"))
		t = data.Filter(func(r table.Row) bool { return profiles[r.String("cid")] })
		return t, layout.CountDistinct(t, "cid"), layout.CountDistinct(t, "rid"), nil
	}

	if err := table.Require(data, src.path, "x_project_id", "ccle_name"); err != nil {
		return nil, 0, 0, err
	}
	if data.Has("pert_type") {
		if t, err = PlusControls(data, project); err != nil {
			return nil, 0, 0, err
		}
	} else {
		t = data.Filter(func(r table.Row) bool { return r.String("x_project_id") == project })
	}
	colID := "profile_id"
	if !t.Has(colID) {
		colID = "sig_id"
	}
	return t, layout.CountDistinct(t, colID), layout.CountDistinct(t, "ccle_name"), nil
}

// PlusControls returns the rows of project followed by the control rows of
// other projects on the same pert plates.
func PlusControls(t *table.Table, project string) (*table.Table, error) {
	if err := table.Require(t, "project rows", "x_project_id", "pert_plate", "pert_type"); err != nil {
		return nil, err
	}
	own := t.Filter(func(r table.Row) bool { return r.String("x_project_id") == project })
	plates := stringSet(own.Unique("pert_plate"))
	controls := t.Filter(func(r table.Row) bool {
		return r.String("x_project_id") != project &&
			plates[r.String("pert_plate")] &&
			layout.IsControl(r.String("pert_type"))
	})
	return table.Concat(own, controls), nil
}

func stringSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
