package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/batch"
	"github.com/assaykit/assaykit/internal/blob"
	"github.com/assaykit/assaykit/internal/cache"
	"github.com/assaykit/assaykit/internal/cli/config"
	"github.com/assaykit/assaykit/internal/cli/ui"
	"github.com/assaykit/assaykit/internal/ledger"
	"github.com/assaykit/assaykit/internal/metadata"
	"github.com/assaykit/assaykit/internal/telemetry"
)

// Persistent flags shared by every command.
var (
	cfgFile     string
	verbose     bool
	noColor     bool
	metricsFile string
	assumeYes   bool
)

// app holds what a command run needs beyond its own flags.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	ledger  *ledger.Store
	run     *ledger.Run
	command string
	started time.Time

	cache cache.Cache
}

type appKey struct{}

// setup builds the app for cmd. It runs as the root PersistentPreRunE.
func setup(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &configError{err}
	}

	a := &app{
		cfg:     cfg,
		logger:  telemetry.NewLogger(verbose),
		metrics: telemetry.NewMetrics(),
		command: cmd.CommandPath(),
		started: time.Now(),
	}

	if cfg.Ledger.Driver != "" && tracked(cmd) {
		store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
		if err != nil {
			return &configError{err}
		}
		if err := store.Migrate(cmd.Context()); err != nil {
			store.Close()
			return err
		}
		run, err := store.Start(cmd.Context(), cmd.Name(), args)
		if err != nil {
			store.Close()
			return err
		}
		a.ledger, a.run = store, run
	}

	cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
	return nil
}

// tracked reports whether runs of cmd are recorded in the ledger.
func tracked(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "runs", "version", "help":
		return false
	}
	return true
}

// appFrom returns the app built for cmd, or a bare one when setup did not run.
func appFrom(cmd *cobra.Command) *app {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{Workers: 1}
	}
	return &app{cfg: cfg, logger: zap.NewNop(), command: cmd.CommandPath(), started: time.Now()}
}

// finish closes the run: the ledger entry, metrics textfile and cache.
func (a *app) finish(ctx context.Context, runErr error) {
	a.metrics.ObserveCommand(a.command, time.Since(a.started))
	if a.ledger != nil {
		if err := a.ledger.Finish(ctx, a.run.ID, runErr); err != nil {
			a.logger.Warn("failed to finish ledger run", zap.Error(err))
		}
		a.ledger.Close()
	}
	if metricsFile != "" && a.metrics != nil {
		if err := a.metrics.WriteTextfile(metricsFile); err != nil {
			a.logger.Warn("failed to write metrics", zap.String("path", metricsFile), zap.Error(err))
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	_ = a.logger.Sync()
}

// artifact records a written file in the metrics and the ledger.
func (a *app) artifact(ctx context.Context, path, kind string, rows, cols int) {
	a.metrics.ArtifactWritten(kind)
	if a.ledger == nil {
		return
	}
	err := a.ledger.AddArtifact(ctx, ledger.Artifact{RunID: a.run.ID, Path: path, Kind: kind, Rows: rows, Cols: cols})
	if err != nil {
		a.logger.Warn("failed to record artifact", zap.String("path", path), zap.Error(err))
	}
}

// pool returns a batch pool sized from the config. Finished tasks are
// counted and advance bar when it is set.
func (a *app) pool(workers int, bar *ui.ProgressBar) *batch.Pool {
	if workers < 1 {
		workers = a.cfg.Workers
	}
	p := batch.NewPool(workers, a.logger)
	p.OnDone = func(_ string, err error) {
		a.metrics.BatchTask(err == nil)
		if bar != nil {
			bar.Done(err)
		}
	}
	return p
}

// metadataClient builds the API client with the configured response cache.
func (a *app) metadataClient() (*metadata.Client, error) {
	apiCfg, err := metadata.LoadConfig()
	if err != nil {
		return nil, err
	}
	if a.cache == nil {
		if a.cache, err = cache.Open(a.cfg.CacheSettings()); err != nil {
			return nil, &configError{err}
		}
	}
	return metadata.NewClient(apiCfg, metadata.WithCache(a.cache), metadata.WithLogger(a.logger))
}

// blobStore opens the configured object store.
func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	s, err := blob.Open(ctx, a.cfg.BlobSettings())
	if err != nil {
		return nil, &configError{err}
	}
	return s, nil
}

// confirm asks before a destructive step unless --yes was given.
func confirm(message string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	ok := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, fmt.Errorf("confirmation failed (use --yes to skip): %w", err)
	}
	return ok, nil
}

// errAborted is returned when the user declines a confirmation.
var errAborted = errors.New("aborted")

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// success prints a green check line.
func success(w io.Writer, format string, args ...any) {
	ui.WriteSuccess(w, fmt.Sprintf(format, args...), noColor)
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
