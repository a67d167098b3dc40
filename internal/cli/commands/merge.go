package commands

import (
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/collate"
)

var (
	concatDir     string
	concatPattern string
	concatOut     string
)

// NewConcatCommand creates the concat command
func NewConcatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concat",
		Short: "Concatenate matching tables into one CSV",
		Long: `Concatenate every table under --dir matching --search-pattern into one CSV.
The pattern may reach into subdirectories (for example */*/*LEVEL3*.csv).
The output header is the union of the input headers.`,
		Example: `  assaykit concat --dir builds --search-pattern "*/*/*QC_TABLE*.csv" --out qc.csv`,
		RunE:    runConcat,
	}

	cmd.Flags().StringVarP(&concatDir, "dir", "d", "", "Directory to search (required)")
	cmd.Flags().StringVarP(&concatPattern, "search-pattern", "s", "*", "File pattern")
	cmd.Flags().StringVarP(&concatOut, "out", "o", "", "Output CSV (required)")
	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runConcat(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	m, err := collate.Concat(concatDir, concatPattern, concatOut)
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), m.Stats.Rows)
	a.artifact(cmd.Context(), m.Path, "table", m.Stats.Rows, len(m.Stats.Columns))
	success(cmd.OutOrStdout(), "Wrote %s (%d rows from %d files)", m.Path, m.Stats.Rows, m.Stats.Files)
	return nil
}

var (
	mergeDataDir        string
	mergeOutDir         string
	mergePattern        string
	mergeOutFile        string
	mergeFilePrefix     string
	mergeAddProjectName bool
	mergeSeparator      string
)

// NewMergeCSVCommand creates the merge-csv command
func NewMergeCSVCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-csv",
		Short: "Stream-merge matching CSVs with a union header",
		Long: `Merge every file under --data-dir matching --search-pattern into one file,
one row at a time. Columns missing from a file are left empty.

The output is named, in order of precedence, by --outfile, by the data
directory name with --add-project-name, by --file-prefix, or by the pattern
with wildcards removed.`,
		Example: `  assaykit merge-csv --data-dir PRJ --search-pattern "*DRC_TABLE*" --add-project-name
  assaykit merge-csv --data-dir out --search-pattern "*LEVEL3*" --outfile LEVEL3.csv`,
		RunE: runMergeCSV,
	}

	cmd.Flags().StringVarP(&mergeDataDir, "data-dir", "d", "", "Directory to search (required)")
	cmd.Flags().StringVarP(&mergeOutDir, "out", "o", "", "Output directory (default: data dir)")
	cmd.Flags().StringVarP(&mergePattern, "search-pattern", "s", "", "File pattern (required)")
	cmd.Flags().StringVar(&mergeOutFile, "outfile", "", "Output file name")
	cmd.Flags().StringVar(&mergeFilePrefix, "file-prefix", "", "Output name prefix")
	cmd.Flags().BoolVar(&mergeAddProjectName, "add-project-name", false, "Search */* and prefix the output with the data dir name")
	cmd.Flags().StringVar(&mergeSeparator, "separator", ",", "Field separator of the inputs and output")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("search-pattern")

	return cmd
}

func separator(s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || n != len(s) {
		return 0, fmt.Errorf("--separator must be a single character, got %q", s)
	}
	return r, nil
}

func runMergeCSV(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	comma, err := separator(mergeSeparator)
	if err != nil {
		return err
	}
	outDir := mergeOutDir
	if outDir == "" {
		outDir = mergeDataDir
	}
	m, err := collate.MergeCSV(collate.MergeOptions{
		DataDir:        mergeDataDir,
		OutDir:         outDir,
		Pattern:        mergePattern,
		OutFile:        mergeOutFile,
		FilePrefix:     mergeFilePrefix,
		AddProjectName: mergeAddProjectName,
		Comma:          comma,
	})
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), m.Stats.Rows)
	a.artifact(cmd.Context(), m.Path, "table", m.Stats.Rows, len(m.Stats.Columns))
	success(cmd.OutOrStdout(), "Wrote %s (%d rows from %d files)", m.Path, m.Stats.Rows, m.Stats.Files)
	return nil
}

var (
	projectDataDir string
	projectOutDir  string
	projectName    string
	projectScreen  string
)

// NewCollateProjectCommand creates the collate-project command
func NewCollateProjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collate-project",
		Short: "Merge every known output of a project into project files",
		Long: `For each known output pattern, merge {data-dir}/*/*{pattern}* into
{out}/{project}_{pattern}.csv. x_project_id and, when given, screen are set on
files that carry those columns. Matrix files are skipped and COMBAT files are
kept out of the plain LEVEL4_LFC and LEVEL5_LFC merges.`,
		Example: `  assaykit collate-project --data-dir PRJ --project PRJ --screen MTS019`,
		RunE:    runCollateProject,
	}

	cmd.Flags().StringVarP(&projectDataDir, "data-dir", "d", "", "Project directory (required)")
	cmd.Flags().StringVarP(&projectOutDir, "out", "o", "", "Output directory (default: data dir)")
	cmd.Flags().StringVar(&projectName, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&projectScreen, "screen", "", "Screen to set on merged rows")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runCollateProject(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	outDir := projectOutDir
	if outDir == "" {
		outDir = projectDataDir
	}
	merged, err := collate.Project(collate.ProjectOptions{
		DataDir: projectDataDir,
		OutDir:  outDir,
		Project: projectName,
		Screen:  projectScreen,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"pattern", "files", "rows", "output"}, noColor)
	for _, m := range merged {
		a.artifact(cmd.Context(), m.Path, "table", m.Stats.Rows, len(m.Stats.Columns))
		tbl.AddRow(m.Pattern, fmt.Sprint(m.Stats.Files), fmt.Sprint(m.Stats.Rows), filepath.Base(m.Path))
	}
	tbl.Render()
	success(cmd.OutOrStdout(), "Collated %d outputs for %s", len(merged), projectName)
	return nil
}

// NewMergeBuildsCommand creates the merge-builds command
func NewMergeBuildsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-builds <dir1> <dir2> <dest>",
		Short: "Merge two build trees",
		Long: `Merge two build trees into dest. CSV files present in both are
concatenated, PDF files present in both are merged page by page, and every
other file is copied.`,
		Example: `  assaykit merge-builds build_a build_b merged`,
		Args:    cobra.ExactArgs(3),
		RunE:    runMergeBuilds,
	}
}

func runMergeBuilds(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	files, err := collate.MergeBuilds(args[0], args[1], args[2], a.logger)
	if err != nil {
		return err
	}
	counts := make(map[collate.BuildAction]int)
	for _, f := range files {
		counts[f.Action]++
		a.artifact(cmd.Context(), filepath.Join(args[2], f.Rel), string(f.Action), 0, 0)
	}

	kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor)
	for _, action := range []collate.BuildAction{collate.Concatenated, collate.PDFMerged, collate.Copied} {
		kv.AddRow(string(action), fmt.Sprint(counts[action]))
	}
	kv.Render()
	success(cmd.OutOrStdout(), "Merged builds into %s", args[2])
	return nil
}
