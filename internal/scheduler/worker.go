package scheduler

import (
	"context"

	"github.com/chuanzhoupan/goingest/internal/domain"
)

// runWorker is one sandbox's consumption pass over the shared queue:
// pop, dispatch, handle the outcome, repeat until the queue is empty.
func (o *Orchestrator) runWorker(ctx context.Context, sandbox string, q *TaskQueue, stats *RunStats) {
	for {
		job, ok := q.TryPop()
		if !ok {
			return
		}

		job.Sandbox = sandbox
		if job.FirstEnqueuedAt.IsZero() {
			job.FirstEnqueuedAt = o.now()
		}

		if job.Attempt == 0 {
			o.logger.Info("start", "sandbox", sandbox, "job_id", job.ID, "url", job.URL)
		} else {
			o.logger.Info("retry", "sandbox", sandbox, "job_id", job.ID, "url", job.URL,
				"attempt", job.Attempt, "budget", o.cfg.RetryBudget)
		}

		o.gate.Wait(sandbox)
		o.execute(ctx, &job, q, stats)

		q.TaskDone()
		o.metrics.SetQueueDepth(q.Len())
	}
}

// execute runs the job once and routes it to success, requeue or
// terminal failure.
func (o *Orchestrator) execute(ctx context.Context, job *domain.Job, q *TaskQueue, stats *RunStats) {
	err := o.runner.Run(ctx, job)
	if err == nil {
		paths, procErr := o.relocator.Process(job)
		if procErr == nil {
			o.recordSuccess(ctx, job, paths, stats)
			return
		}
		err = procErr
	}

	o.logger.Warn("fail", "sandbox", job.Sandbox, "job_id", job.ID, "error", truncateError(err.Error()))

	if job.Attempt < o.cfg.RetryBudget {
		job.Attempt++
		o.metrics.RecordRetry()
		// A failure may be specific to this sandbox; the backoff plus
		// requeue lets any worker in the pool pick it up next.
		o.sleep(o.cfg.RetryBackoff)
		q.Requeue(*job)
		return
	}

	o.recordFinalFailure(ctx, job, err.Error(), stats)
}

func (o *Orchestrator) recordSuccess(ctx context.Context, job *domain.Job, paths domain.ArtifactPaths, stats *RunStats) {
	elapsed := job.Elapsed(o.now())
	o.logger.Info("done", "sandbox", job.Sandbox, "job_id", job.ID, "url", job.URL,
		"elapsed", elapsed.Round(decimalRound))

	stats.AddOK()
	o.tracker.Record(true, elapsed)
	o.metrics.RecordOutcome(true, elapsed.Seconds())

	if err := o.source.OnSuccess(ctx, job, paths); err != nil {
		o.logger.Warn("success acknowledgement failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) recordFinalFailure(ctx context.Context, job *domain.Job, errText string, stats *RunStats) {
	elapsed := job.Elapsed(o.now())
	o.logger.Error("give up", "sandbox", job.Sandbox, "job_id", job.ID, "url", job.URL,
		"attempts", o.cfg.RetryBudget+1)

	if err := o.source.OnFailure(ctx, job, errText); err != nil {
		o.logger.Warn("failure acknowledgement failed", "job_id", job.ID, "error", err)
	}

	stats.AddFail(*job, errText)
	o.tracker.Record(false, elapsed)
	o.metrics.RecordOutcome(false, elapsed.Seconds())
}
