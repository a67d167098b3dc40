package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/portal"
	"github.com/assaykit/assaykit/internal/table"
)

var (
	drcTablePath string
	drcOut       string
)

// NewDRCJSONCommand creates the drc-json command
func NewDRCJSONCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drc-json",
		Short: "Convert a DRC table to portal JSON with sampled curves",
		Long: fmt.Sprintf(`Write the DRC table as {"result":[...]}. Each record gains "points" with
%d log2-spaced doses between min_dose and max_dose and the fitted response,
or null when the row has no usable fit.`, portal.CurvePoints),
		Example: `  assaykit drc-json --drc-table PRJ_DRC_TABLE.csv --out drc.json`,
		RunE:    runDRCJSON,
	}

	cmd.Flags().StringVarP(&drcTablePath, "drc-table", "d", "", "DRC table (required)")
	cmd.Flags().StringVarP(&drcOut, "out", "o", "", "Output file (default: input with .json)")
	_ = cmd.MarkFlagRequired("drc-table")

	return cmd
}

func runDRCJSON(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	t, err := table.ReadFile(drcTablePath)
	if err != nil {
		return err
	}
	a.metrics.RecordsRead(cmd.Name(), t.Len())
	data, err := portal.DRCJSON(t)
	if err != nil {
		return err
	}

	out := drcOut
	if out == "" {
		out = strings.TrimSuffix(drcTablePath, filepath.Ext(drcTablePath)) + ".json"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	a.artifact(cmd.Context(), out, "json", t.Len(), t.Width())
	success(cmd.OutOrStdout(), "Wrote %d curves to %s", t.Len(), out)
	return nil
}

var (
	biomarkerFiles   []string
	biomarkerDataDir string
	biomarkerPattern string
	biomarkerOut     string
	biomarkerTop     int
)

// NewExtractBiomarkersCommand creates the extract-biomarkers command
func NewExtractBiomarkersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract-biomarkers",
		Short: "Keep the strongest biomarkers of association tables",
		Long: `Sort each association table by |coef| (ties keep their order) and write the
first --top rows to top_{top}_biomarkers.csv next to the input, or in --out.`,
		Example: `  assaykit extract-biomarkers --file PRJ/A/data/continuous_associations.csv --top 20
  assaykit extract-biomarkers --data-dir PRJ -s "*/data/*continuous_associations*.csv"`,
		RunE: runExtractBiomarkers,
	}

	cmd.Flags().StringSliceVarP(&biomarkerFiles, "file", "f", nil, "Association tables")
	cmd.Flags().StringVarP(&biomarkerDataDir, "data-dir", "d", "", "Directory to search")
	cmd.Flags().StringVarP(&biomarkerPattern, "search-pattern", "s", "*continuous_associations*.csv", "Pattern under --data-dir")
	cmd.Flags().StringVarP(&biomarkerOut, "out", "o", "", "Output directory (default: next to each input)")
	cmd.Flags().IntVarP(&biomarkerTop, "top", "n", portal.DefaultTop, "Rows to keep")
	cmd.MarkFlagsOneRequired("file", "data-dir")

	return cmd
}

func runExtractBiomarkers(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	if biomarkerTop < 1 {
		return fmt.Errorf("--top must be positive, got %d", biomarkerTop)
	}
	files := biomarkerFiles
	if len(files) == 0 {
		var err error
		if files, err = table.Glob(biomarkerDataDir, biomarkerPattern); err != nil {
			return err
		}
		if len(files) == 0 {
			return &table.MatchError{Dir: biomarkerDataDir, Pattern: biomarkerPattern}
		}
	}
	if biomarkerOut != "" {
		if err := os.MkdirAll(biomarkerOut, 0o755); err != nil {
			return err
		}
	}

	written, err := portal.ExtractBiomarkers(files, biomarkerOut, biomarkerTop)
	for _, w := range written {
		a.artifact(cmd.Context(), w, "table", biomarkerTop, 0)
	}
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Wrote %d biomarker tables", len(written))
	return nil
}

var (
	keysPath string
	keysOut  string
)

// NewProjectKeysCommand creates the project-keys command
func NewProjectKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project-keys",
		Short: "Derive portal key files from a compound key",
		Long: `Read a compound key JSON array and write the portal key files next to it
(or in --out): _uniques, _levels, _features, _proj_search_pattern and
_search_pattern.`,
		Example: `  assaykit project-keys --compound-key PRJ_compound_key.json`,
		RunE:    runProjectKeys,
	}

	cmd.Flags().StringVarP(&keysPath, "compound-key", "k", "", "Compound key JSON (required)")
	cmd.Flags().StringVarP(&keysOut, "out", "o", "", "Output directory")
	_ = cmd.MarkFlagRequired("compound-key")

	return cmd
}

func runProjectKeys(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	written, err := portal.WriteProjectKeys(keysPath, keysOut)
	for _, w := range written {
		a.artifact(cmd.Context(), w, "json", 0, 0)
	}
	if err != nil {
		return err
	}
	for _, w := range written {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+w)
	}
	success(cmd.OutOrStdout(), "Wrote %d key files", len(written))
	return nil
}

var (
	registerProject  string
	registerIndexURL string
	registerBuild    string
	registerRoles    []string
	registerApproved bool
)

// NewRegisterAnalysisCommand creates the register-analysis command
func NewRegisterAnalysisCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-analysis",
		Short: "Register a project report as an external analysis",
		Long: `Register a project report with the metadata API and grant roles access.
Unapproved analyses are named REVIEW--{project}. Nothing is created when an
analysis of that name already exists. Needs API_KEY and API_URL.`,
		Example: `  assaykit register-analysis --project PRJ --build-id MTS019 --index-url https://reports.example.org/PRJ/index.html`,
		RunE:    runRegisterAnalysis,
	}

	cmd.Flags().StringVar(&registerProject, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&registerIndexURL, "index-url", "", "Report URL (required)")
	cmd.Flags().StringVar(&registerBuild, "build-id", "", "Build the analysis belongs to (required)")
	cmd.Flags().StringSliceVar(&registerRoles, "roles", portal.DefaultRoles, "Roles granted access")
	cmd.Flags().BoolVar(&registerApproved, "approved", false, "Register without the REVIEW-- prefix")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("index-url")
	_ = cmd.MarkFlagRequired("build-id")

	return cmd
}

func runRegisterAnalysis(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	client, err := a.metadataClient()
	if err != nil {
		return err
	}
	reg, err := portal.Register(cmd.Context(), client, portal.RegisterOptions{
		Project:  registerProject,
		IndexURL: registerIndexURL,
		Build:    registerBuild,
		Roles:    registerRoles,
		Approved: registerApproved,
	}, a.logger)
	if err != nil {
		return err
	}

	if reg.Existing {
		fmt.Fprint(cmd.OutOrStdout(), ui.Warning(fmt.Sprintf("%s is already registered (id %s)", reg.Analysis.Name, reg.ID), noColor))
		return nil
	}
	success(cmd.OutOrStdout(), "Registered %s (id %s) for %s", reg.Analysis.Name, reg.ID, strings.Join(registerRoles, ", "))
	return nil
}
