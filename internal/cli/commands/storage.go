package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/assaykit/assaykit/internal/blob"
	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/ledger"
)

var (
	publishPrefix    string
	publishOverwrite bool
)

// NewPublishCommand creates the publish command
func NewPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <dir>",
		Short: "Upload a directory tree to the object store",
		Long: `Upload every file under dir to {prefix}/{relative path} in the configured
object store (blob.driver: fs, s3 or memory). Existing objects are left alone
unless --overwrite is given.`,
		Example: `  assaykit publish projects/PRJ --prefix reports/PRJ
  ASSAYKIT_BLOB_DRIVER=s3 ASSAYKIT_BLOB_S3_BUCKET=portal assaykit publish build --prefix builds/MTS019`,
		Args: cobra.ExactArgs(1),
		RunE: runPublish,
	}

	cmd.Flags().StringVarP(&publishPrefix, "prefix", "p", "", "Key prefix")
	cmd.Flags().BoolVar(&publishOverwrite, "overwrite", false, "Replace existing objects")

	return cmd
}

func runPublish(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	store, err := a.blobStore(cmd.Context())
	if err != nil {
		return err
	}

	var infos []blob.Info
	err = ui.WithSpinner(cmd.ErrOrStderr(), "Uploading "+args[0], noColor, func() error {
		var err error
		infos, err = blob.UploadTree(cmd.Context(), store, args[0], publishPrefix, publishOverwrite)
		return err
	})
	var size int64
	for _, info := range infos {
		size += info.Size
		a.artifact(cmd.Context(), info.Key, "blob", 0, 0)
	}
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Published %d files (%d bytes) under %s/", len(infos), size, strings.Trim(publishPrefix, "/"))
	return nil
}

var (
	fetchPrefix  string
	fetchPartial string
	fetchDest    string
)

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download an object by partial key",
		Long: `Download the first object under --prefix whose key contains --partial.
Objects ending in .gz are decompressed. When --dest is a directory the
object's base name is used.`,
		Example: `  assaykit fetch --prefix builds/MTS019 --partial LEVEL5_LFC --dest .`,
		RunE:    runFetch,
	}

	cmd.Flags().StringVarP(&fetchPrefix, "prefix", "p", "", "Key prefix to search")
	cmd.Flags().StringVar(&fetchPartial, "partial", "", "Substring of the key (required)")
	cmd.Flags().StringVarP(&fetchDest, "dest", "o", ".", "Destination file or directory")
	_ = cmd.MarkFlagRequired("partial")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	store, err := a.blobStore(cmd.Context())
	if err != nil {
		return err
	}
	info, err := blob.FindByPartial(cmd.Context(), store, fetchPrefix, fetchPartial)
	if err != nil {
		return err
	}
	written, err := blob.Fetch(cmd.Context(), store, info.Key, fetchDest)
	if err != nil {
		return err
	}
	a.artifact(cmd.Context(), written, "file", 0, 0)
	success(cmd.OutOrStdout(), "Fetched %s to %s", info.Key, written)
	return nil
}

var runsLimit int

// NewRunsCommand creates the runs command
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or the files of one run",
		Long: `List the most recent runs from the ledger (ledger.driver and ledger.dsn in
the config). With a run id, list the files that run wrote.`,
		Example: `  assaykit runs --limit 5
  assaykit runs 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRuns,
	}

	cmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Runs to show")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	if a.cfg.Ledger.Driver == "" {
		return &configError{fmt.Errorf("no ledger configured: set ledger.driver and ledger.dsn")}
	}
	store, err := ledger.Open(a.cfg.Ledger.Driver, a.cfg.Ledger.DSN)
	if err != nil {
		return &configError{err}
	}
	defer store.Close()
	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		artifacts, err := store.Artifacts(cmd.Context(), id)
		if err != nil {
			return err
		}
		tbl := ui.NewTable(cmd.OutOrStdout(), []string{"kind", "rows", "cols", "path"}, noColor)
		for _, art := range artifacts {
			tbl.AddRow(art.Kind, fmt.Sprint(art.Rows), fmt.Sprint(art.Cols), art.Path)
		}
		tbl.Render()
		return nil
	}

	runs, err := store.Recent(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}
	tbl := ui.NewTable(cmd.OutOrStdout(), []string{"id", "command", "status", "started", "took", "error"}, noColor)
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.Duration().Round(time.Millisecond).String()
		}
		tbl.AddRow(r.ID.String(), r.Command, string(r.Status), r.StartedAt.Local().Format(time.DateTime), took, r.Error)
	}
	tbl.Render()
	return nil
}
