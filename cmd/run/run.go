// Package run implements the run command: it prepares the sandbox pool
// and drives capture batches from the configured job source.
package run

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	cmdcommon "github.com/chuanzhoupan/goingest/cmd/common"
	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/database"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/metrics"
	"github.com/chuanzhoupan/goingest/internal/progress"
	"github.com/chuanzhoupan/goingest/internal/relocate"
	"github.com/chuanzhoupan/goingest/internal/sandbox"
	"github.com/chuanzhoupan/goingest/internal/scheduler"
	"github.com/chuanzhoupan/goingest/internal/source"
)

const metricsReadHeaderTimeout = 5 * time.Second

// Command returns the run command for use in the root command.
func Command() *cobra.Command {
	var (
		cronSpec   string
		removePool bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run capture batches from the configured job source",
		Long: `This command prepares the sandbox pool and runs capture batches until
the job source is exhausted. With --cron, the whole run is repeated on a
schedule instead of exiting after the first pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			// One collector and one listener for the whole process;
			// recurring passes all feed the same registry.
			collector := metrics.NewCollector()
			if deps.Config.Metrics.Enabled {
				startMetricsServer(deps.Config.Metrics, collector, deps.Logger)
			}

			pass := func() error {
				return executeRun(cmd.Context(), deps, collector, removePool)
			}
			if cronSpec == "" {
				return pass()
			}
			return runRecurring(cmd.Context(), deps.Logger, cronSpec, pass)
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "",
		"cron expression for recurring runs (runs once immediately, then on schedule)")
	cmd.Flags().BoolVar(&removePool, "remove-pool", false,
		"remove the sandbox pool after the run completes")

	return cmd
}

// runRecurring executes a full pass immediately, then again on every
// cron tick, until the process is interrupted. A pass tears down and
// recreates the sandbox pool, so two passes must never overlap; a tick
// that fires while a pass is still in flight is skipped.
func runRecurring(ctx context.Context, log logger.Interface, spec string, pass func() error) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	job := newRecurringJob(log, pass)
	c := cron.New()
	c.Schedule(sched, job)

	log.Info("recurring mode", "cron", spec)
	job.Run()
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// newRecurringJob wraps pass so invocations that would overlap an
// in-flight pass are skipped instead of run concurrently.
func newRecurringJob(log logger.Interface, pass func() error) cron.Job {
	run := cron.FuncJob(func() {
		if err := pass(); err != nil {
			log.Error("scheduled run failed", "error", err)
		}
	})
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: log})).Then(run)
}

// cronLogger adapts logger.Interface to the cron logging contract.
type cronLogger struct {
	log logger.Interface
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Info(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

// executeRun wires up one complete pass: pool bring-up, source, workers,
// and teardown.
func executeRun(ctx context.Context, deps cmdcommon.CommandDeps, collector *metrics.Collector, removePool bool) error {
	cfg := deps.Config
	log := deps.Logger
	identity := config.HostIdentityFromEnv()

	prov, err := sandbox.NewDockerProvisioner(log)
	if err != nil {
		return err
	}
	if err := prov.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}

	sbPool := sandbox.NewPool(cfg.Pool, identity, prov, log)

	// Start from a clean slate: stale sandboxes and leftover scratch
	// files from an interrupted run are removed before bring-up.
	if err := sbPool.Remove(ctx); err != nil {
		log.Warn("failed to remove stale sandboxes", "error", err)
	}
	if err := relocate.ClearScratch(cfg.Pool.HostCodePath, log); err != nil {
		log.Warn("failed to clear scratch state", "error", err)
	}

	names, err := sbPool.Prepare(ctx)
	if err != nil {
		return err
	}

	src, err := buildSource(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			log.Warn("failed to close source", "error", closeErr)
		}
	}()

	orch, err := scheduler.New(scheduler.Params{
		Capture:   cfg.Capture,
		Sandboxes: names,
		Source:    src,
		Runner:    sandbox.NewRunner(prov, cfg.Pool.SandboxCodePath, cfg.Capture.ExecTimeout, log),
		Relocator: relocate.New(cfg.Pool.HostCodePath, cfg.Pool.SandboxCodePath, cfg.Store.BaseDst, identity, log),
		Tracker:   progress.NewTracker(os.Stdout),
		Metrics:   collector,
		Logger:    log,
		CleanupScratch: func() error {
			return relocate.ClearScratch(cfg.Pool.HostCodePath, log)
		},
	})
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil {
		return err
	}

	if removePool {
		if err := sbPool.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove sandbox pool: %w", err)
		}
		log.Info("sandbox pool removed")
	}
	return nil
}

// buildSource constructs the configured job source.
func buildSource(cfg *config.Config, log logger.Interface) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceKindCSV:
		return source.NewCSVSource(cfg.Source.CSVPath, log), nil
	case config.SourceKindDB:
		db, err := database.NewPostgresConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		return source.NewDBSource(db, cfg.Source.Tables, cfg.Source.BatchSize, log)
	default:
		return nil, fmt.Errorf("unknown source kind: %q", cfg.Source.Kind)
	}
}

// startMetricsServer exposes the Prometheus endpoint in the background.
// A failed listener is logged, never fatal to the run.
func startMetricsServer(cfg config.MetricsConfig, collector *metrics.Collector, log logger.Interface) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		log.Info("metrics listening", "address", cfg.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
}
