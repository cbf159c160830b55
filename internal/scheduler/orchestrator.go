package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/metrics"
	"github.com/chuanzhoupan/goingest/internal/progress"
	"github.com/chuanzhoupan/goingest/internal/source"
	"github.com/chuanzhoupan/goingest/internal/throttle"
)

const (
	// signalExitBase offsets the exit code by the conventional 128+signum.
	signalExitBase = 128

	decimalRound = 100 * time.Millisecond
)

// UnitRunner executes one job inside its assigned sandbox.
type UnitRunner interface {
	Run(ctx context.Context, job *domain.Job) error
}

// ResultProcessor turns a sandbox-reported success into final host-side
// artifact paths.
type ResultProcessor interface {
	Process(job *domain.Job) (domain.ArtifactPaths, error)
}

// Params bundles the orchestrator's dependencies.
type Params struct {
	Capture   config.CaptureConfig
	Sandboxes []string
	Source    source.Source
	Runner    UnitRunner
	Relocator ResultProcessor
	Tracker   *progress.Tracker
	Metrics   *metrics.Collector
	Logger    logger.Interface

	// CleanupScratch runs after each batch to clear ephemeral run
	// state. Optional; failures are logged, never fatal.
	CleanupScratch func() error
}

// Orchestrator is the batch controller: it pulls batches from the job
// source, runs each to completion with one worker per sandbox, and
// loops while the source has more to give.
type Orchestrator struct {
	cfg       config.CaptureConfig
	sandboxes []string
	source    source.Source
	runner    UnitRunner
	relocator ResultProcessor
	gate      *throttle.Gate
	tracker   *progress.Tracker
	metrics   *metrics.Collector
	logger    logger.Interface
	cleanup   func() error

	now   func() time.Time
	sleep func(time.Duration)
	exit  func(int)
}

// New validates the dependencies and builds an orchestrator.
func New(p Params) (*Orchestrator, error) {
	if len(p.Sandboxes) == 0 {
		return nil, errors.New("orchestrator requires at least one sandbox")
	}
	if p.Source == nil {
		return nil, errors.New("source cannot be nil")
	}
	if p.Runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if p.Relocator == nil {
		return nil, errors.New("relocator cannot be nil")
	}
	if p.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	tracker := p.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	collector := p.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	cleanup := p.CleanupScratch
	if cleanup == nil {
		cleanup = func() error { return nil }
	}

	return &Orchestrator{
		cfg:       p.Capture,
		sandboxes: p.Sandboxes,
		source:    p.Source,
		runner:    p.Runner,
		relocator: p.Relocator,
		gate:      throttle.NewGate(p.Capture.FirstExecInterval),
		tracker:   tracker,
		metrics:   collector,
		logger:    p.Logger,
		cleanup:   cleanup,
		now:       time.Now,
		sleep:     time.Sleep,
		exit:      os.Exit,
	}, nil
}

// Run executes batches until the source is exhausted or declines to
// continue. It returns an error only for a failed batch fetch; per-job
// failures are absorbed into batch results.
func (o *Orchestrator) Run(ctx context.Context) error {
	stopSignals := o.handleSignals()
	defer stopSignals()

	o.tracker.Start()
	defer o.tracker.Stop()

	batchNum := 0
	for {
		jobs, err := o.source.FetchBatch(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch batch: %w", err)
		}
		if len(jobs) == 0 {
			o.logger.Info("no jobs to process, stopping")
			break
		}

		batchNum++
		batchID := uuid.NewString()
		o.logger.Info("batch start", "batch", batchNum, "batch_id", batchID,
			"jobs", len(jobs), "sandboxes", len(o.sandboxes))

		result := o.runBatch(ctx, jobs)
		o.metrics.RecordBatch()
		o.reportBatch(batchNum, batchID, result)

		if err := o.cleanup(); err != nil {
			o.logger.Warn("scratch cleanup failed", "error", err)
		}

		if !o.source.ShouldContinue() {
			break
		}
	}

	o.logger.Info("final summary", "batches", batchNum, "status", o.tracker.Snapshot().Line())
	return nil
}

// runBatch drives one batch to completion: every submitted job reaches
// a terminal outcome before this returns.
func (o *Orchestrator) runBatch(ctx context.Context, jobs []domain.Job) domain.BatchResult {
	q := NewTaskQueue()
	for _, job := range jobs {
		q.Push(job)
	}
	o.metrics.SetQueueDepth(q.Len())

	stats := NewRunStats()

	var wg sync.WaitGroup
	for _, name := range o.sandboxes {
		wg.Add(1)
		go func(sandbox string) {
			defer wg.Done()
			o.runWorker(ctx, sandbox, q, stats)
		}(name)
	}

	q.Join()
	wg.Wait()

	return stats.Result(len(jobs))
}

func (o *Orchestrator) reportBatch(batchNum int, batchID string, result domain.BatchResult) {
	o.logger.Info("batch summary", "batch", batchNum, "batch_id", batchID,
		"ok", result.OK, "fail", result.Fail, "total", result.Total)
	for _, sample := range result.ErrorSamples {
		o.logger.Info("failure sample", "job_id", sample.Job.ID, "url", sample.Job.URL,
			"error", sample.Error)
	}
}

// handleSignals arranges immediate exit on interrupt. In-flight jobs
// are abandoned; a partially moved artifact or unacknowledged source
// row at that moment is an accepted inconsistency.
func (o *Orchestrator) handleSignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		o.logger.Warn("interrupt received, exiting immediately", "signal", sig.String())
		_ = o.logger.Sync()
		code := signalExitBase
		if s, isSyscall := sig.(syscall.Signal); isSyscall {
			code += int(s)
		}
		o.exit(code)
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
