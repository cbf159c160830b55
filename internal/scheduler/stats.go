package scheduler

import (
	"sync"

	"github.com/chuanzhoupan/goingest/internal/domain"
)

const (
	// maxErrorSamples caps the per-batch error list kept for the summary.
	maxErrorSamples = 10
	// maxErrorLength truncates sampled error text.
	maxErrorLength = 200
)

// RunStats aggregates outcomes across all workers of one batch. All
// mutation happens under a single mutex, held only for counter updates.
type RunStats struct {
	mu      sync.Mutex
	ok      int
	fail    int
	samples []domain.ErrorSample
}

// NewRunStats creates empty stats for a fresh batch.
func NewRunStats() *RunStats {
	return &RunStats{}
}

// AddOK records one successful job.
func (s *RunStats) AddOK() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ok++
}

// AddFail records one terminally failed job, sampling its error text
// while the sample list has room.
func (s *RunStats) AddFail(job domain.Job, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail++
	if len(s.samples) < maxErrorSamples {
		s.samples = append(s.samples, domain.ErrorSample{
			Job:   job,
			Error: truncateError(errText),
		})
	}
}

// Result freezes the stats into a batch result.
func (s *RunStats) Result(total int) domain.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := make([]domain.ErrorSample, len(s.samples))
	copy(samples, s.samples)
	return domain.BatchResult{
		OK:           s.ok,
		Fail:         s.fail,
		Total:        total,
		ErrorSamples: samples,
	}
}

func truncateError(s string) string {
	if len(s) > maxErrorLength {
		return s[:maxErrorLength]
	}
	return s
}
