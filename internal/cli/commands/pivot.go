package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/batch"
	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/collate"
	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/pivot"
	"github.com/assaykit/assaykit/internal/split"
	"github.com/assaykit/assaykit/internal/table"
)

// layoutFlags holds the matrix layout flags of one command.
type layoutFlags struct {
	rowID        string
	colID        string
	rowMeta      []string
	colMeta      []string
	format       string
	noAppendDims bool
	// configFormat lets pivot.format in the config replace an unset --format.
	configFormat bool
}

var (
	pivotCSV   string
	pivotValue string
	pivotOut   string
	pivotName  string
)

var pivotLayout = layoutFlags{configFormat: true}

// NewPivotCommand creates the pivot command
func NewPivotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "Pivot a long-form table into a matrix file",
		Long: `Pivot a long-form table into a dense matrix with aggregated row and
column metadata.

Each record places its value at (row id, column id); the last record wins for
a repeated cell. Metadata values that disagree within one id are joined with
"|" in first-seen order.`,
		Example: `  assaykit pivot -d LEVEL4_LFC.csv --data-header LFC -o out -f PRJ_LEVEL4_LFC
  assaykit pivot -d long.csv --data-header LMFI --format gct --no-append-dims`,
		RunE: runPivot,
	}

	cmd.Flags().StringVarP(&pivotCSV, "csv", "d", "", "Long-form source table (required)")
	cmd.Flags().StringVar(&pivotValue, "data-header", "", "Value column (required)")
	addPivotFlags(cmd, &pivotLayout, gct.Binary)
	cmd.Flags().StringVarP(&pivotOut, "out", "o", ".", "Output directory")
	cmd.Flags().StringVarP(&pivotName, "outname", "f", "result", "Output base name")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("data-header")

	return cmd
}

// addPivotFlags registers the matrix layout flags of pivot and pivot-splits
// into f.
func addPivotFlags(cmd *cobra.Command, f *layoutFlags, format gct.Format) {
	cmd.Flags().StringVar(&f.rowID, "rid-header", "rid", "Row id column")
	cmd.Flags().StringVar(&f.colID, "cid-header", "profile_id", "Column id column")
	cmd.Flags().StringSliceVar(&f.rowMeta, "row-metadata-headers", pivot.DefaultRowMeta, "Row metadata columns")
	cmd.Flags().StringSliceVar(&f.colMeta, "col-metadata-headers", pivot.DefaultColMeta, "Column metadata columns")
	cmd.Flags().StringVar(&f.format, "format", string(format), "Matrix format: arrow or gct")
	cmd.Flags().BoolVar(&f.noAppendDims, "no-append-dims", false, "Do not append _n{cols}x{rows} to the file name")
}

// pivotSpec resolves the layout flags; unset flags fall back to the pivot
// section of the config.
func pivotSpec(cmd *cobra.Command, a *app, f *layoutFlags, value string) (matrix.Spec, gct.Options, error) {
	spec := matrix.Spec{RowID: f.rowID, ColID: f.colID, Value: value, RowMeta: f.rowMeta, ColMeta: f.colMeta}
	p := a.cfg.Pivot
	if !cmd.Flags().Changed("rid-header") && p.RowID != "" {
		spec.RowID = p.RowID
	}
	if !cmd.Flags().Changed("cid-header") && p.ColID != "" {
		spec.ColID = p.ColID
	}
	if !cmd.Flags().Changed("row-metadata-headers") && len(p.RowMeta) > 0 {
		spec.RowMeta = p.RowMeta
	}
	if !cmd.Flags().Changed("col-metadata-headers") && len(p.ColMeta) > 0 {
		spec.ColMeta = p.ColMeta
	}

	format := f.format
	if f.configFormat && !cmd.Flags().Changed("format") && p.Format != "" {
		format = p.Format
	}
	parsed, err := gct.ParseFormat(format)
	if err != nil {
		return spec, gct.Options{}, err
	}
	return spec, gct.Options{Format: parsed, AppendDims: !f.noAppendDims}, nil
}

func runPivot(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	spec, output, err := pivotSpec(cmd, a, &pivotLayout, pivotValue)
	if err != nil {
		return err
	}

	out, err := pivot.File(pivotCSV, pivot.Options{
		Spec:   spec,
		OutDir: pivotOut,
		Name:   pivotName,
		Output: output,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), out.Records)
	cols, rows := out.Result.Dims()
	a.artifact(cmd.Context(), out.Path, "matrix", rows, cols)

	success(cmd.OutOrStdout(), "Wrote %s (%d x %d)", out.Path, cols, rows)
	return nil
}

var (
	splitsDir       string
	splitsProject   string
	splitsPertPlate string
	splitsPert      string
	splitsPattern   string
	splitsAll       bool
	splitsWorkers   int
	splitsValue     string
	splitsLayout    layoutFlags
)

// NewPivotSplitsCommand creates the pivot-splits command
func NewPivotSplitsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pivot-splits",
		Short: "Pivot per-compound LEVEL4 splits",
		Long: `Pivot the LEVEL4 split of one compound, or of every compound of a project
with --all, into LEVEL4_{data-header}_{compound} next to its input.

Compound directories live at {splits-dir}/{project}/[{pert-plate}/]{compound},
where the compound name has "|" replaced by "_" and other characters outside
[0-9A-Za-z_-] removed.`,
		Example: `  assaykit pivot-splits --splits-dir splits --project PRJ --pert "AZ-628|x"
  assaykit pivot-splits --splits-dir splits --project PRJ --all`,
		RunE: runPivotSplits,
	}

	cmd.Flags().StringVar(&splitsDir, "splits-dir", "", "Root of the split tree (required)")
	cmd.Flags().StringVar(&splitsProject, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&splitsPertPlate, "pert-plate", "", "Pert plate level below the project")
	cmd.Flags().StringVar(&splitsPert, "pert", "", "Compound name")
	cmd.Flags().StringVarP(&splitsPattern, "search-pattern", "s", "*LEVEL4*.csv", "Split file pattern")
	cmd.Flags().StringVar(&splitsValue, "data-header", "LFC", "Value column")
	cmd.Flags().BoolVar(&splitsAll, "all", false, "Pivot every compound of the project")
	cmd.Flags().IntVar(&splitsWorkers, "workers", 0, "Parallel pivots (default from config)")
	addPivotFlags(cmd, &splitsLayout, gct.Text)
	_ = cmd.MarkFlagRequired("splits-dir")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runPivotSplits(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	spec, output, err := pivotSpec(cmd, a, &splitsLayout, splitsValue)
	if err != nil {
		return err
	}

	var dirs []string
	switch {
	case splitsAll:
		if dirs, err = split.CompoundDirs(splitsDir, splitsProject, splitsPattern); err != nil {
			return err
		}
		if len(dirs) == 0 {
			return &table.MatchError{Dir: filepath.Join(splitsDir, splitsProject), Pattern: "**/" + splitsPattern}
		}
	case splitsPert != "":
		dirs = []string{split.CompoundDir(splitsDir, splitsProject, splitsPertPlate, splitsPert)}
	default:
		return fmt.Errorf("--pert or --all is required")
	}

	one := func(_ context.Context, dir string) error {
		src, err := table.GlobOne(dir, splitsPattern)
		if err != nil {
			return err
		}
		out, err := pivot.File(src, pivot.Options{
			Spec:   spec,
			OutDir: dir,
			Name:   split.OutputName(spec.Value, dir),
			Output: output,
			Logger: a.logger.With(zap.String("compound", filepath.Base(dir))),
		})
		if err != nil {
			return err
		}
		a.metrics.RecordsRead(cmd.Name(), out.Records)
		cols, rows := out.Result.Dims()
		a.artifact(cmd.Context(), out.Path, "matrix", rows, cols)
		return nil
	}

	if len(dirs) == 1 {
		if err := one(cmd.Context(), dirs[0]); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Pivoted %s", dirs[0])
		return nil
	}

	bar := ui.NewProgressBar(cmd.ErrOrStderr(), ui.ProgressBarOptions{Total: len(dirs), Message: "compounds", NoColor: noColor})
	tasks := make([]batch.Task[string], len(dirs))
	for i, d := range dirs {
		tasks[i] = batch.Task[string]{Name: filepath.Base(d), Input: d}
	}
	outcomes := batch.Run(cmd.Context(), a.pool(splitsWorkers, bar), tasks, one)
	bar.Finish(fmt.Sprintf("Pivoted %d compounds", len(dirs)))
	return batch.Errors(outcomes)
}

var (
	collateProjDir  string
	collateSearch   string
	collateCohort   string
	collateBuildDir string
	collateBarcodes string
	collateFormat   string
	collateRawDoses bool
)

// NewCollateCommand creates the collate command
func NewCollateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collate",
		Short: "Stack per-plate matrices into LEVEL2 build files",
		Long: `Horizontally stack the per-plate COUNT and MEDIAN matrices found under
{proj-dir}/{search}/assemble/{search}/, drop excluded barcodes, and write the
LEVEL2 matrices plus inst_info.txt and cell_info.txt to the build directory.`,
		Example: `  assaykit collate --proj-dir assemble --cohort-name PMTS050 --build-dir build
  assaykit collate --proj-dir assemble --search "PMTS050*" --barcode-ids BC1,BC2 --cohort-name PMTS050 --build-dir build`,
		RunE: runCollate,
	}

	cmd.Flags().StringVar(&collateProjDir, "proj-dir", "", "Directory of per-plate assemblies (required)")
	cmd.Flags().StringVar(&collateSearch, "search", "*", "Plate directory pattern")
	cmd.Flags().StringVar(&collateCohort, "cohort-name", "", "Build name prefix (required)")
	cmd.Flags().StringVar(&collateBuildDir, "build-dir", "", "Output directory (required)")
	cmd.Flags().StringVar(&collateBarcodes, "barcode-ids", "", "Comma separated barcode ids to exclude")
	cmd.Flags().StringVar(&collateFormat, "format", string(gct.Binary), "Matrix format: arrow or gct")
	cmd.Flags().BoolVar(&collateRawDoses, "raw-doses", false, "Keep dose text as read")
	_ = cmd.MarkFlagRequired("proj-dir")
	_ = cmd.MarkFlagRequired("cohort-name")
	_ = cmd.MarkFlagRequired("build-dir")

	return cmd
}

func runCollate(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	format, err := gct.ParseFormat(collateFormat)
	if err != nil {
		return err
	}
	res, err := collate.Plates(collate.PlateOptions{
		ProjDir:         collateProjDir,
		Search:          collateSearch,
		CohortName:      collateCohort,
		BuildDir:        collateBuildDir,
		ExcludeBarcodes: splitList(collateBarcodes),
		Format:          format,
		RawDoses:        collateRawDoses,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	for _, m := range res.Matrices {
		cols, rows, _ := gct.ParseDims(m)
		a.artifact(ctx, m, "matrix", rows, cols)
	}
	a.artifact(ctx, res.InstInfo, "metadata", 0, 0)
	a.artifact(ctx, res.CellInfo, "metadata", 0, 0)

	w := cmd.OutOrStdout()
	for _, p := range append(res.Matrices, res.InstInfo, res.CellInfo) {
		success(w, "Wrote %s", p)
	}
	return nil
}
