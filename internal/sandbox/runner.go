package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// Runner executes one capture job inside its assigned sandbox by
// invoking the in-sandbox entrypoint with the serialized job payload.
// The entrypoint is a black box: zero exit status means a result
// manifest is waiting for the relocator, anything else is a job failure.
type Runner struct {
	prov       Provisioner
	entrypoint string
	timeout    time.Duration
	logger     logger.Interface
}

// NewRunner creates a runner. sandboxCodePath is the mount point of the
// capture code inside the sandbox.
func NewRunner(prov Provisioner, sandboxCodePath string, timeout time.Duration, log logger.Interface) *Runner {
	return &Runner{
		prov:       prov,
		entrypoint: path.Join(sandboxCodePath, "action.py"),
		timeout:    timeout,
		logger:     log,
	}
}

// Run executes the job in job.Sandbox under the hard exec timeout.
func (r *Runner) Run(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job %s: %w", job.ID, err)
	}

	cmd := []string{"python", "-u", r.entrypoint, string(payload)}
	r.logger.Debug("executing capture", "sandbox", job.Sandbox, "job_id", job.ID, "url", job.URL)

	res, err := r.prov.Exec(ctx, job.Sandbox, cmd, r.timeout)
	if err != nil {
		if errors.Is(err, ErrExecTimeout) {
			return fmt.Errorf("%w after %s", ErrExecTimeout, r.timeout)
		}
		return fmt.Errorf("exec failed in %s: %w", job.Sandbox, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("capture exited with status %d: %s", res.ExitCode, strings.TrimSpace(res.Output))
	}
	return nil
}
