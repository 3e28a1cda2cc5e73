package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/ingest"
	"github.com/telos-labs/catalogd/internal/store"
)

var watchInterval string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the inbox and regenerate catalogs continuously",
	Long: `Run catalogd as a long-lived process. The inbox directory is watched for
new record files; a synthesis pass runs on a fixed interval and on
shutdown, so records never sit unpublished for long.

A pass losing the snapshot commit to a concurrent catalogd invocation is
not fatal: the daemon logs the conflict and retries on the next tick.`,
	Example: `  # Watch with the configured interval
  catalogd watch

  # Regenerate every five minutes
  catalogd watch --interval 5m`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "pass interval (default from config, e.g. 30s, 5m)")
	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval := cfg.PassInterval()
	if watchInterval != "" {
		d, err := time.ParseDuration(watchInterval)
		if err != nil {
			return err
		}
		interval = d
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	queue := ingest.NewQueue(cfg.Ingest.QueueSize)
	watcher, err := ingest.NewWatcher(cfg.Ingest.InboxDir, queue, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	eng, err := buildEngine(cfg, st, queue, watcher)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching inbox",
		zap.String("inbox", cfg.Ingest.InboxDir),
		zap.Duration("interval", interval))

	runOnce := func(ctx context.Context) {
		res, err := eng.RunPass(ctx)
		switch {
		case errors.Is(err, store.ErrSnapshotConflict):
			logger.Warn("pass lost snapshot commit, will retry", zap.Error(err))
		case errors.Is(err, context.Canceled):
		case err != nil:
			logger.Error("pass failed", zap.Error(err))
		default:
			logger.Info("catalogs regenerated",
				zap.Int("apps", res.Apps),
				zap.Int("documents", len(res.Documents)))
		}
	}

	// Publish whatever is already known before the first tick.
	runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runOnce(ctx)
		case <-ctx.Done():
			logger.Info("shutting down, running final pass")
			runOnce(context.Background())
			return nil
		}
	}
}
