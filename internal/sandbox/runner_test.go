package sandbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/sandbox"
	"github.com/chuanzhoupan/goingest/testutils"
)

func captureJob() *domain.Job {
	return &domain.Job{
		ID:      "17",
		URL:     "https://example.com/profile",
		Domain:  "example.com",
		Sandbox: "capture_0",
	}
}

func TestRunnerPassesJobPayload(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	var gotCmd []string
	prov.ExecFunc = func(name string, cmd []string) (sandbox.ExecResult, error) {
		gotCmd = cmd
		return sandbox.ExecResult{}, nil
	}

	r := sandbox.NewRunner(prov, "/app", time.Minute, logger.NewNoOp())
	require.NoError(t, r.Run(context.Background(), captureJob()))

	require.Len(t, gotCmd, 4)
	assert.Equal(t, []string{"python", "-u", "/app/action.py"}, gotCmd[:3])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(gotCmd[3]), &payload))
	assert.Equal(t, "17", payload["row_id"])
	assert.Equal(t, "https://example.com/profile", payload["url"])
	assert.Equal(t, "example.com", payload["domain"])
	assert.Equal(t, "capture_0", payload["container"])
}

func TestRunnerNonZeroExitIsFailure(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.ExecFunc = func(string, []string) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{ExitCode: 3, Output: "selenium: session not created\n"}, nil
	}

	r := sandbox.NewRunner(prov, "/app", time.Minute, logger.NewNoOp())
	err := r.Run(context.Background(), captureJob())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "session not created")
}

func TestRunnerTimeoutSurfacesAsDeadlineError(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.ExecFunc = func(string, []string) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{}, sandbox.ErrExecTimeout
	}

	r := sandbox.NewRunner(prov, "/app", time.Minute, logger.NewNoOp())
	err := r.Run(context.Background(), captureJob())

	require.ErrorIs(t, err, sandbox.ErrExecTimeout)
}
