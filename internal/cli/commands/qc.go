package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/platemap"
	"github.com/assaykit/assaykit/internal/qc"
	"github.com/assaykit/assaykit/internal/table"
)

var (
	qcBuildPath  string
	qcName       string
	qcThresholds string
)

// NewQCFlagsCommand creates the qc-flags command
func NewQCFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qc-flags",
		Short: "Flag failing instances from LEVEL3 and QC tables",
		Long: `Apply the QC rules to the single *LEVEL3_LMFI*.csv and *QC_TABLE*.csv of a
build and write {build-path}/{name}_QC_FLAG_TABLE.csv with instance_id,
error_code and error_desc.

Thresholds come from --thresholds, then qc.thresholds_file in the config,
then the defaults.`,
		Example: `  assaykit qc-flags --build-path build --name MTS019
  assaykit qc-flags --build-path build --thresholds strict.yaml`,
		RunE: runQCFlags,
	}

	cmd.Flags().StringVarP(&qcBuildPath, "build-path", "b", "", "Build directory (required)")
	cmd.Flags().StringVarP(&qcName, "name", "n", "", "Output name prefix (default: build directory name)")
	cmd.Flags().StringVar(&qcThresholds, "thresholds", "", "Thresholds YAML file")
	_ = cmd.MarkFlagRequired("build-path")

	return cmd
}

func runQCFlags(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	path := qcThresholds
	if path == "" {
		path = a.cfg.QC.ThresholdsFile
	}
	th, err := qc.LoadThresholds(path)
	if err != nil {
		return &configError{err}
	}

	mfiPath, err := table.GlobOne(qcBuildPath, "*LEVEL3_LMFI*.csv")
	if err != nil {
		return err
	}
	qcPath, err := table.GlobOne(qcBuildPath, "*QC_TABLE*.csv")
	if err != nil {
		return err
	}
	mfi, err := table.ReadFile(mfiPath)
	if err != nil {
		return err
	}
	qcTable, err := table.ReadFile(qcPath)
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), mfi.Len()+qcTable.Len())

	flags, err := qc.Evaluate(mfi, qcTable, th)
	if err != nil {
		return err
	}

	name := qcName
	if name == "" {
		name = filepath.Base(filepath.Clean(qcBuildPath))
	}
	out := filepath.Join(qcBuildPath, name+"_QC_FLAG_TABLE.csv")
	flagTable := qc.Table(flags)
	if err := table.WriteFile(out, flagTable, table.WriteOptions{}); err != nil {
		return err
	}
	a.artifact(cmd.Context(), out, "report", flagTable.Len(), flagTable.Width())

	summary := qc.Summary(flags)
	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"code", "instances", "description"}, noColor)
	for _, c := range qc.Codes {
		tbl.AddRow(fmt.Sprint(int(c)), fmt.Sprint(summary[c]), c.String())
	}
	tbl.Render()
	success(cmd.OutOrStdout(), "Wrote %d flags to %s", len(flags), out)
	return nil
}

// NewValidateMapCommand creates the validate-map command
func NewValidateMapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-map <plate-map>",
		Short: "Check a plate map for required fields",
		Long: fmt.Sprintf(`Check that a plate map TSV carries every required field:
  %v
Exits non-zero and lists the missing fields otherwise.`, platemap.RequiredFields),
		Example: `  assaykit validate-map PMTS050_platemap.txt`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := platemap.ValidateFile(args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s has every required field", args[0])
			return nil
		},
	}
}
