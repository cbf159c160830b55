// Package source provides the pluggable job sources the batch
// controller pulls work from and acknowledges results to.
package source

import (
	"context"

	"github.com/chuanzhoupan/goingest/internal/domain"
)

// Source supplies batches of capture jobs and receives terminal-outcome
// acknowledgements. FetchBatch returning an empty slice signals
// exhaustion for this run. OnSuccess and OnFailure are best-effort
// hooks: the scheduler logs their errors and keeps going.
type Source interface {
	// FetchBatch returns the next batch of jobs, or an empty slice when
	// the source is exhausted.
	FetchBatch(ctx context.Context) ([]domain.Job, error)
	// OnSuccess acknowledges a successful job with its final artifact
	// locations.
	OnSuccess(ctx context.Context, job *domain.Job, paths domain.ArtifactPaths) error
	// OnFailure acknowledges a terminally failed job.
	OnFailure(ctx context.Context, job *domain.Job, errText string) error
	// ShouldContinue reports whether the controller should pull another
	// batch after the current one completes.
	ShouldContinue() bool
	// Close releases source resources.
	Close() error
}
