package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/deal"
	"github.com/assaykit/assaykit/internal/split"
	"github.com/assaykit/assaykit/internal/stack"
	"github.com/assaykit/assaykit/internal/table"
)

var (
	splitKeyFile    string
	splitLevel4File string
	splitOutDir     string
)

// NewSplitCommand creates the split command
func NewSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split LEVEL4 LFC by project and compound",
		Long: `Split a LEVEL4 LFC table using a compound key (x_project_id, pert_iname).
Each project gets {out}/{project}/{project}_LEVEL4_LFC_nCxR.csv and each of its
compounds {out}/{project}/{pert}/{pert}_LEVEL4_LFC_nCxR.csv, where C counts
profile_id and R counts rid.`,
		Example: `  assaykit split --compound-key compound_key.csv --lfc build_LEVEL4_LFC_n100x480.csv --out splits`,
		RunE:    runSplit,
	}

	cmd.Flags().StringVarP(&splitKeyFile, "compound-key", "k", "", "Compound key file (required)")
	cmd.Flags().StringVarP(&splitLevel4File, "lfc", "l", "", "LEVEL4 LFC file (required)")
	cmd.Flags().StringVarP(&splitOutDir, "out", "o", ".", "Output directory")
	_ = cmd.MarkFlagRequired("compound-key")
	_ = cmd.MarkFlagRequired("lfc")

	return cmd
}

func runSplit(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	key, err := table.ReadFile(splitKeyFile)
	if err != nil {
		return err
	}
	level4, err := table.ReadFile(splitLevel4File)
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), level4.Len())

	slices, err := split.ByCompound(key, level4, splitOutDir, a.logger)
	if err != nil {
		return err
	}
	projects := 0
	for _, s := range slices {
		if s.Pert == "" {
			projects++
		}
		a.artifact(cmd.Context(), s.Path, "table", s.Rows, 0)
	}
	success(cmd.OutOrStdout(), "Wrote %d files for %d projects under %s", len(slices), projects, splitOutDir)
	return nil
}

var (
	dealBuildPath     string
	dealOutDir        string
	dealProjects      string
	dealOnlyKey       string
	dealProject       string
	dealSigIDCols     string
	dealIgnoreMissing bool
	dealWorkers       int
)

// NewDealCommand creates the deal command
func NewDealCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deal",
		Short: "Deal a build into per-project folders",
		Long: `Split a build into {out}/{project}/data/ folders holding the project's
inst_info, cell_info, QC table and data levels. Annotated levels keep control
rows on the project's plates. Projects are dealt in parallel.`,
		Example: `  assaykit deal --build-path build --out projects
  assaykit deal --build-path build --out projects --only-key LEVEL4_LFC --project PRJ`,
		RunE: runDeal,
	}

	cmd.Flags().StringVarP(&dealBuildPath, "build-path", "b", "", "Build directory (required)")
	cmd.Flags().StringVarP(&dealOutDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVar(&dealProjects, "projects", "", "Comma separated projects (default: all in inst_info)")
	cmd.Flags().StringVar(&dealOnlyKey, "only-key", "", "Deal one data level (with --project)")
	cmd.Flags().StringVar(&dealProject, "project", "", "Project for --only-key")
	cmd.Flags().StringVar(&dealSigIDCols, "sig-id-cols", "", "Columns joined into a missing LEVEL5 sig_id")
	cmd.Flags().BoolVar(&dealIgnoreMissing, "ignore-missing", false, "Skip data levels without a file")
	cmd.Flags().IntVarP(&dealWorkers, "workers", "w", 0, "Parallel projects (default from config)")
	_ = cmd.MarkFlagRequired("build-path")
	cmd.MarkFlagsRequiredTogether("only-key", "project")

	return cmd
}

func runDeal(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	opts := deal.Options{
		BuildPath:     dealBuildPath,
		OutDir:        dealOutDir,
		Projects:      splitList(dealProjects),
		SigIDCols:     splitList(dealSigIDCols),
		IgnoreMissing: dealIgnoreMissing,
		Pool:          a.pool(dealWorkers, nil),
		Logger:        a.logger,
	}
	if dealOnlyKey != "" {
		opts.Keys = []string{dealOnlyKey}
		opts.Projects = []string{dealProject}
	}

	var written []deal.Written
	err := ui.WithSpinner(cmd.ErrOrStderr(), "Dealing "+filepath.Base(dealBuildPath), noColor, func() error {
		var err error
		written, err = deal.Run(cmd.Context(), opts)
		return err
	})
	for _, w := range written {
		a.artifact(cmd.Context(), w.Path, w.Key, w.Rows, 0)
	}
	if err != nil {
		if len(written) > 0 {
			a.logger.Warn("deal finished with errors", zap.Int("written", len(written)), zap.Error(err))
		}
		return err
	}

	perProject := make(map[string]int)
	var order []string
	for _, w := range written {
		if perProject[w.Project] == 0 {
			order = append(order, w.Project)
		}
		perProject[w.Project]++
	}
	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"project", "files"}, noColor)
	for _, p := range order {
		tbl.AddRow(p, fmt.Sprint(perProject[p]))
	}
	tbl.Render()
	success(cmd.OutOrStdout(), "Dealt %d projects into %s", len(order), dealOutDir)
	return nil
}

var (
	stackBuilds    string
	stackName      string
	stackOutDir    string
	stackKeys      string
	stackSigIDCols string
	stackRawDoses  bool
)

// NewStackCommand creates the stack command
func NewStackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Stack several builds into one",
		Long: `Stack the files of several builds into {out}/{build-name}_{key}_nCxR.{ext}.
Every build must hold exactly one file per stacked key. Matrices are melted
and concatenated, data levels get feature_id, metadata and reports are
concatenated and the compound key is merged.`,
		Example: `  assaykit stack --build-paths b1,b2 --build-name COMBINED --out stacked
  assaykit stack --build-paths b1,b2 --build-name COMBINED --only-stack-keys inst_info,LEVEL5_LFC`,
		RunE: runStack,
	}

	cmd.Flags().StringVar(&stackBuilds, "build-paths", "", "Comma separated build directories (required)")
	cmd.Flags().StringVar(&stackName, "build-name", "", "Name of the stacked build (required)")
	cmd.Flags().StringVarP(&stackOutDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVar(&stackKeys, "only-stack-keys", "", "Comma separated keys to stack")
	cmd.Flags().StringVar(&stackSigIDCols, "sig-id-cols", "", "Columns joined into a missing LEVEL5 sig_id")
	cmd.Flags().BoolVar(&stackRawDoses, "raw-doses", false, "Leave inst_info doses unformatted")
	_ = cmd.MarkFlagRequired("build-paths")
	_ = cmd.MarkFlagRequired("build-name")

	return cmd
}

func runStack(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	builds := splitList(stackBuilds)
	if len(builds) == 0 {
		return fmt.Errorf("--build-paths names no builds")
	}
	written, err := stack.Run(stack.Options{
		Builds:    builds,
		Name:      stackName,
		OutDir:    stackOutDir,
		Keys:      splitList(stackKeys),
		SigIDCols: splitList(stackSigIDCols),
		RawDoses:  stackRawDoses,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"key", "kind", "rows", "output"}, noColor)
	for _, w := range written {
		a.artifact(cmd.Context(), w.Path, w.Kind.String(), w.Rows, w.Cols)
		tbl.AddRow(w.Key, w.Kind.String(), fmt.Sprint(w.Rows), filepath.Base(w.Path))
	}
	tbl.Render()
	success(cmd.OutOrStdout(), "Stacked %d builds into %s", len(builds), stackOutDir)
	return nil
}
