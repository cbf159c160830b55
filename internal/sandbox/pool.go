package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// offloadScript disables packet coalescing (TSO/GSO/GRO) inside a
// sandbox so captured pcaps reflect on-wire segment sizes. The sentinel
// file makes repeated runs no-ops.
const offloadScript = `
if [ -f /tmp/.offload_disabled ]; then
    exit 0
fi
if command -v sudo >/dev/null 2>&1; then
    sudo ethtool -K eth0 tso off gso off gro off
else
    ethtool -K eth0 tso off gso off gro off
fi
rc=$?
if [ $rc -eq 0 ]; then
    touch /tmp/.offload_disabled
fi
exit $rc
`

// Pool creates and maintains the fixed set of named sandboxes. A pool
// that cannot reach its configured size is a fatal condition: bounded
// concurrency cannot be honored with a short pool.
type Pool struct {
	cfg      config.PoolConfig
	identity config.HostIdentity
	prov     Provisioner
	logger   logger.Interface
}

// NewPool creates a pool manager.
func NewPool(cfg config.PoolConfig, identity config.HostIdentity, prov Provisioner, log logger.Interface) *Pool {
	return &Pool{cfg: cfg, identity: identity, prov: prov, logger: log}
}

// Names returns the full sandbox name list: <prefix>0 .. <prefix>N-1.
func (p *Pool) Names() []string {
	names := make([]string, p.cfg.Count)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", p.cfg.Prefix, i)
	}
	return names
}

// Prepare ensures every named sandbox exists and is running, then runs
// the one-time offload tuning hook on sandboxes created in this pass.
// Existence checks and creates for different sandboxes run concurrently
// with bounded parallelism to keep startup sublinear in pool size.
func (p *Pool) Prepare(ctx context.Context) ([]string, error) {
	names := p.Names()
	p.logger.Info("preparing sandbox pool",
		"count", len(names), "first", names[0], "last", names[len(names)-1])

	spec := p.createSpec()

	var mu sync.Mutex
	var created []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(names), p.cfg.PrepareParallelism))
	for _, name := range names {
		g.Go(func() error {
			state, err := p.prov.Inspect(gctx, name)
			if err != nil {
				return err
			}
			if state != StateAbsent {
				return nil
			}
			if err := p.prov.Create(gctx, name, spec); err != nil {
				return err
			}
			mu.Lock()
			created = append(created, name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to prepare pool: %w", err)
	}

	// Start pass: anything not running yet is started, and anything
	// that still is not running afterwards shorts the pool.
	for _, name := range names {
		state, err := p.prov.Inspect(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare pool: %w", err)
		}
		if state == StateRunning {
			continue
		}
		if err := p.prov.Start(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to prepare pool: %w", err)
		}
	}

	// Tuning hook only on newly created sandboxes; failures here are
	// logged but not fatal, captures still work with coalescing on.
	for _, name := range created {
		res, err := p.prov.Exec(ctx, name, []string{"sh", "-lc", offloadScript}, 0)
		if err != nil || res.ExitCode != 0 {
			p.logger.Warn("failed to disable offload", "name", name, "output", res.Output, "error", err)
			continue
		}
		p.logger.Info("offload disabled", "name", name)
	}

	return names, nil
}

// Remove force-removes every sandbox in the pool's namespace.
func (p *Pool) Remove(ctx context.Context) error {
	return p.prov.RemoveByPrefix(ctx, p.cfg.Prefix)
}

// createSpec builds the creation spec shared by all pool sandboxes.
func (p *Pool) createSpec() CreateSpec {
	binds := []string{
		p.cfg.HostCodePath + ":" + p.cfg.SandboxCodePath,
	}
	if p.cfg.ToolsPath != "" {
		binds = append(binds, p.cfg.ToolsPath+":"+filepath.Join(p.cfg.SandboxCodePath, "tools"))
	}
	return CreateSpec{
		Image: p.cfg.Image,
		Binds: binds,
		Env: []string{
			fmt.Sprintf("HOST_UID=%d", p.identity.UID),
			fmt.Sprintf("HOST_GID=%d", p.identity.GID),
		},
		DNS:        p.cfg.DNS,
		Privileged: p.cfg.Privileged,
		TTY:        p.cfg.TTY,
	}
}
