package sandbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/sandbox"
	"github.com/chuanzhoupan/goingest/testutils"
)

func poolConfig(count int) config.PoolConfig {
	return config.PoolConfig{
		Prefix:             "capture_",
		Count:              count,
		Image:              "chuanzhoupan/trace_spider:250912",
		HostCodePath:       "/srv/capture",
		SandboxCodePath:    "/app",
		PrepareParallelism: 4,
	}
}

func newPool(count int, prov sandbox.Provisioner) *sandbox.Pool {
	identity := config.HostIdentity{Username: "capture", UID: 1000, GID: 1000}
	return sandbox.NewPool(poolConfig(count), identity, prov, logger.NewNoOp())
}

func TestPoolNames(t *testing.T) {
	p := newPool(3, testutils.NewFakeProvisioner())

	assert.Equal(t, []string{"capture_0", "capture_1", "capture_2"}, p.Names())
}

func TestPrepareCreatesAbsentSandboxes(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	p := newPool(3, prov)

	names, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 3)

	assert.ElementsMatch(t, names, prov.CallsFor("create"))
	assert.ElementsMatch(t, names, prov.CallsFor("start"))
	// Tuning hook runs once per newly created sandbox.
	assert.ElementsMatch(t, names, prov.CallsFor("exec"))
	for _, n := range names {
		assert.Equal(t, sandbox.StateRunning, prov.State(n))
	}
}

func TestPrepareSkipsRunningSandboxes(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.SetState("capture_0", sandbox.StateRunning)
	prov.SetState("capture_1", sandbox.StateRunning)
	p := newPool(2, prov)

	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	assert.Empty(t, prov.CallsFor("create"))
	assert.Empty(t, prov.CallsFor("start"))
	// No new sandboxes means no tuning hook runs.
	assert.Empty(t, prov.CallsFor("exec"))
}

func TestPrepareStartsStoppedSandboxes(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.SetState("capture_0", sandbox.StateStopped)
	prov.SetState("capture_1", sandbox.StateRunning)
	p := newPool(2, prov)

	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	assert.Empty(t, prov.CallsFor("create"))
	assert.Equal(t, []string{"capture_0"}, prov.CallsFor("start"))
	assert.Equal(t, sandbox.StateRunning, prov.State("capture_0"))
}

func TestPrepareCreateFailureIsFatal(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.CreateErr["capture_1"] = errors.New("image pull failed")
	p := newPool(3, prov)

	_, err := p.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prepare pool")
}

func TestPrepareStartFailureIsFatal(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.SetState("capture_0", sandbox.StateStopped)
	prov.StartErr["capture_0"] = errors.New("start failed")
	p := newPool(1, prov)

	_, err := p.Prepare(context.Background())
	require.Error(t, err)
}

func TestPrepareOffloadFailureIsNotFatal(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.ExecFunc = func(string, []string) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{ExitCode: 1, Output: "ethtool: not found"}, nil
	}
	p := newPool(2, prov)

	names, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestRemoveClearsPoolNamespace(t *testing.T) {
	prov := testutils.NewFakeProvisioner()
	prov.SetState("capture_0", sandbox.StateRunning)
	prov.SetState("other_0", sandbox.StateRunning)
	p := newPool(1, prov)

	require.NoError(t, p.Remove(context.Background()))
	assert.Equal(t, sandbox.StateAbsent, prov.State("capture_0"))
	assert.Equal(t, sandbox.StateRunning, prov.State("other_0"))
}
