package commands

import (
	"context"
	"errors"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/metadata"
	"github.com/assaykit/assaykit/internal/prune"
	"github.com/assaykit/assaykit/internal/table"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assaykit",
		Short: "Assemble, pivot and route plate-based assay tables",
		Long: color.CyanString(`assaykit - plate assay data toolkit

assaykit reshapes the tables a screening build produces:
  • pivot long-form readouts into GCT or Arrow matrices
  • split, deal and stack builds by project and compound
  • flag failing wells and cell lines from QC tables
  • prepare outputs for the data portal and publish them`),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ./assaykit.yaml or $HOME/.assaykit/assaykit.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")

	rootCmd.AddCommand(NewVersionCommand())

	// Matrix building
	rootCmd.AddCommand(NewPivotCommand())
	rootCmd.AddCommand(NewPivotSplitsCommand())
	rootCmd.AddCommand(NewCollateCommand())

	// Build plumbing
	rootCmd.AddCommand(NewConcatCommand())
	rootCmd.AddCommand(NewMergeCSVCommand())
	rootCmd.AddCommand(NewCollateProjectCommand())
	rootCmd.AddCommand(NewMergeBuildsCommand())
	rootCmd.AddCommand(NewSplitCommand())
	rootCmd.AddCommand(NewDealCommand())
	rootCmd.AddCommand(NewStackCommand())

	// QC and cleanup
	rootCmd.AddCommand(NewQCFlagsCommand())
	rootCmd.AddCommand(NewFilterSkippedWellsCommand())
	rootCmd.AddCommand(NewRemoveDataCommand())
	rootCmd.AddCommand(NewValidateMapCommand())
	rootCmd.AddCommand(NewEPSPrepCommand())

	// Portal
	rootCmd.AddCommand(NewDRCJSONCommand())
	rootCmd.AddCommand(NewExtractBiomarkersCommand())
	rootCmd.AddCommand(NewProjectKeysCommand())
	rootCmd.AddCommand(NewRegisterAnalysisCommand())

	// Storage and history
	rootCmd.AddCommand(NewPublishCommand())
	rootCmd.AddCommand(NewFetchCommand())
	rootCmd.AddCommand(NewRunsCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the assaykit version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor)
			kv.AddRow("assaykit version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	return execute(NewRootCommand(), nil)
}

// execute runs root with args (os.Args when nil), closes the run and renders
// a failure.
func execute(root *cobra.Command, args []string) error {
	if args != nil {
		root.SetArgs(args)
	}
	cmd, err := root.ExecuteC()
	if cmd != nil && cmd.Context() != nil {
		if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
			a.finish(context.Background(), err)
		}
	}
	if err != nil {
		renderError(root.ErrOrStderr(), cmd, err)
	}
	return err
}

// renderError prints err, with context and suggestions when its type is known.
func renderError(w io.Writer, cmd *cobra.Command, err error) {
	command := ""
	if cmd != nil {
		command = cmd.CommandPath()
	}

	var (
		missing  *table.MissingColumnsError
		schema   *matrix.SchemaError
		noMatch  *table.MatchError
		status   *metadata.StatusError
		field    *prune.MissingFieldError
		cfgErr   *configError
		opts     ui.ErrorOptions
		rendered = true
	)
	switch {
	case errors.As(err, &missing):
		opts = ui.MissingColumns(missing.Source, missing.Missing, missing.Available, command)
	case errors.As(err, &schema):
		opts = ui.MissingColumns("input", schema.Missing, schema.Available, command)
	case errors.As(err, &noMatch):
		opts = ui.NoMatch(noMatch.Dir, noMatch.Pattern, len(noMatch.Matches), command)
	case errors.Is(err, matrix.ErrEmptyInput):
		opts = ui.ErrorOptions{Context: "empty input", Problem: err.Error(), Consequence: "No matrix was written."}
	case errors.Is(err, metadata.ErrNoAPIKey), errors.As(err, &status):
		opts = ui.APIProblem(err.Error(), command)
	case errors.As(err, &field):
		opts = ui.ErrorOptions{Context: "missing field", Problem: err.Error(), HelpCommands: []string{"Get help: " + command + " --help"}}
	case errors.As(err, &cfgErr):
		opts = ui.ConfigProblem(err.Error())
	default:
		rendered = false
	}

	if rendered {
		opts.NoColor = noColor
		ui.WriteError(w, opts)
		return
	}
	errorColor := color.New(color.FgRed, color.Bold)
	if noColor {
		errorColor.DisableColor()
	}
	errorColor.Fprintf(w, "Error: %v\n", err)
}
