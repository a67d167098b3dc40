package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/prune"
)

var (
	skipDataDir  string
	skipPatterns []string
)

// NewFilterSkippedWellsCommand creates the filter-skipped-wells command
func NewFilterSkippedWellsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter-skipped-wells",
		Short: "Drop wells the liquid handler skipped",
		Long: `Look up skipped wells for the pert plates found in the data files under
--data-dir, remove matching rows from those files in place and write the
removed rows to removed_wells.csv.

Rows match on screen, pert_plate, pert_well, pool_id and replicate, using
the columns present in both tables. Needs API_KEY and API_URL.`,
		Example: `  assaykit filter-skipped-wells --data-dir build
  assaykit filter-skipped-wells --data-dir build -s "*LEVEL4_LFC*.csv"`,
		RunE: runFilterSkippedWells,
	}

	cmd.Flags().StringVarP(&skipDataDir, "data-dir", "d", "", "Directory holding the data files (required)")
	cmd.Flags().StringSliceVarP(&skipPatterns, "search-pattern", "s", prune.DefaultSkipPatterns, "Data file patterns")
	_ = cmd.MarkFlagRequired("data-dir")

	return cmd
}

func runFilterSkippedWells(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	client, err := a.metadataClient()
	if err != nil {
		return err
	}

	var res prune.SkipResult
	err = ui.WithSpinner(cmd.ErrOrStderr(), "Filtering skipped wells", noColor, func() error {
		var err error
		res, err = prune.FilterSkippedWells(cmd.Context(), client, skipDataDir, skipPatterns, a.logger)
		return err
	})
	if err != nil {
		return err
	}

	removed := 0
	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"file", "before", "after"}, noColor)
	for _, f := range res.Files {
		removed += f.Before - f.After
		a.metrics.RecordsRead(cmd.Name(), f.Before)
		a.artifact(cmd.Context(), f.Dest, "table", f.After, 0)
		tbl.AddRow(filepath.Base(f.Source), fmt.Sprint(f.Before), fmt.Sprint(f.After))
	}
	a.artifact(cmd.Context(), res.Removed, "report", removed, 0)
	tbl.Render()
	success(cmd.OutOrStdout(), "Removed %d rows across %d plates; see %s", removed, len(res.Plates), res.Removed)
	return nil
}

var (
	removeFile          string
	removeDataDir       string
	removePatterns      []string
	removeFields        []string
	removeValues        []string
	removeOutDir        string
	removeIgnoreMissing bool
)

// NewRemoveDataCommand creates the remove-data command
func NewRemoveDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-data",
		Short: "Remove rows matching field/value pairs",
		Long: `Remove every row where any --field equals its paired --value. Values are
compared as strings and empty cells never match.

Inputs are --file, or every match of --search-pattern under --data-dir
(csv, tsv, txt or json). Without --out the files are overwritten in place
after a confirmation.`,
		Example: `  assaykit remove-data --file build/LEVEL3.csv --field ccle_name --value A549_LUNG --out cleaned
  assaykit remove-data --data-dir build -s "*LEVEL*.csv" --field pert_plate --value PMTS001 --yes`,
		RunE: runRemoveData,
	}

	cmd.Flags().StringVarP(&removeFile, "file", "f", "", "Single input file")
	cmd.Flags().StringVarP(&removeDataDir, "data-dir", "d", "", "Directory to search")
	cmd.Flags().StringSliceVarP(&removePatterns, "search-pattern", "s", nil, "File patterns under --data-dir")
	cmd.Flags().StringArrayVar(&removeFields, "field", nil, "Field to match (repeatable, paired with --value)")
	cmd.Flags().StringArrayVar(&removeValues, "value", nil, "Value to remove (repeatable)")
	cmd.Flags().StringVarP(&removeOutDir, "out", "o", "", "Write results here instead of in place")
	cmd.Flags().BoolVar(&removeIgnoreMissing, "ignore-missing-fields", false, "Skip conditions on fields a file lacks")
	cmd.MarkFlagsOneRequired("file", "data-dir")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func runRemoveData(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	conds, err := prune.Conditions(removeFields, removeValues)
	if err != nil {
		return err
	}
	files, err := prune.Files(removeFile, removeDataDir, removePatterns)
	if err != nil {
		return err
	}

	if removeOutDir == "" {
		ok, err := confirm(fmt.Sprintf("Overwrite %d file(s) in place?", len(files)))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"file", "before", "after"}, noColor)
	removed := 0
	for _, src := range files {
		dst, err := prune.Destination(src, removeDataDir, removeOutDir)
		if err != nil {
			return err
		}
		res, err := prune.RemoveFromFile(src, dst, conds, removeIgnoreMissing, a.logger)
		if err != nil {
			return err
		}
		removed += res.Before - res.After
		a.metrics.RecordsRead(cmd.Name(), res.Before)
		a.artifact(cmd.Context(), res.Dest, "table", res.After, 0)
		tbl.AddRow(res.Dest, fmt.Sprint(res.Before), fmt.Sprint(res.After))
	}
	tbl.Render()
	success(cmd.OutOrStdout(), "Removed %d rows from %d file(s)", removed, len(files))
	return nil
}

var epsProjectDir string

// NewEPSPrepCommand creates the eps-prep command
func NewEPSPrepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eps-prep",
		Short: "Strip IC50 outputs from a project before EPS delivery",
		Long: `In the project's */data/ folders: drop log2.ic50 from the DRC table, delete
the IC50 matrix, and remove pert_dose == log2.ic50 rows from the
continuous_associations, RF_table, model_table and discrete_associations
tables. Files are changed in place after a confirmation.`,
		Example: `  assaykit eps-prep --project-dir projects/PRJ --yes`,
		RunE:    runEPSPrep,
	}

	cmd.Flags().StringVarP(&epsProjectDir, "project-dir", "p", "", "Project directory (required)")
	_ = cmd.MarkFlagRequired("project-dir")

	return cmd
}

func runEPSPrep(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	plan, err := prune.PlanEPS(epsProjectDir)
	if err != nil {
		return err
	}

	files := plan.Files()
	ok, err := confirm(fmt.Sprintf("Modify these files in place?\n  %s\n", strings.Join(files, "\n  ")))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	if err := prune.ApplyEPS(plan); err != nil {
		return err
	}
	for _, f := range files {
		if f == plan.IC50Matrix {
			continue
		}
		a.artifact(cmd.Context(), f, "table", 0, 0)
	}
	success(cmd.OutOrStdout(), "Prepared %s for EPS (%d files)", epsProjectDir, len(files))
	return nil
}
