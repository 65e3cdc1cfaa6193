package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/cache"
	"github.com/guokai8/pathwaydb/internal/config"
	"github.com/guokai8/pathwaydb/internal/logging"
	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/guokai8/pathwaydb/internal/mirror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

// app carries what every subcommand needs. It is filled in by the root
// command's pre-run hook.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	mirror  cache.Mirror
}

type rootFlags struct {
	configPath  string
	logMode     string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	a := &app{log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "pathwaydb",
		Short:         "Local GO, KEGG and MSigDB annotation stores",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), flags)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.finish(flags.metricsFile)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file; PATHWAYDB_* environment variables override it")
	pf.StringVar(&flags.logMode, "log-mode", "", "Log mode: dev, prod or off")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command finishes")

	root.AddCommand(
		newIngestCmd(a),
		newBackfillCmd(a),
		newQueryCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
		newCacheCmd(a),
		newGeneSetsCmd(a),
		newTermCmd(a),
		newPrepareCmd(a),
		newRewriteSymbolsCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context, f rootFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	mode := cfg.Log.Mode
	if f.logMode != "" {
		mode = f.logMode
	}
	log, err := logging.New(mode, cfg.Log.Level)
	if err != nil {
		return apperrors.New("cli.init", apperrors.ErrConfiguration, err)
	}
	a.cfg, a.log, a.metrics = cfg, log, metrics.New()

	if cfg.Mirror.Enabled() {
		m, err := mirror.New(ctx, mirror.Config{
			Bucket:    cfg.Mirror.Bucket,
			Prefix:    cfg.Mirror.Prefix,
			Region:    cfg.Mirror.Region,
			Endpoint:  cfg.Mirror.Endpoint,
			PathStyle: cfg.Mirror.UsePathStyle,
		})
		if err != nil {
			return err
		}
		a.mirror = m
	}
	return nil
}

func (a *app) finish(metricsFile string) error {
	defer func() { _ = a.log.Sync() }()
	return a.metrics.WriteFile(metricsFile)
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pathwaydb:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrConfiguration), errors.Is(err, apperrors.ErrInvalidFilter):
		return 2
	case errors.Is(err, apperrors.ErrNotFound):
		return 3
	}
	return 1
}
