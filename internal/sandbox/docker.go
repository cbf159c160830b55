package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/chuanzhoupan/goingest/internal/logger"
)

// DockerProvisioner implements Provisioner on the Docker Engine API.
type DockerProvisioner struct {
	cli    *client.Client
	logger logger.Interface
}

// NewDockerProvisioner connects to the local Docker daemon. A failure
// here is fatal to the caller: without a daemon there is no pool.
func NewDockerProvisioner(log logger.Interface) (*DockerProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerProvisioner{cli: cli, logger: log}, nil
}

// Ping verifies the daemon is reachable.
func (p *DockerProvisioner) Ping(ctx context.Context) error {
	if _, err := p.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not available: %w", err)
	}
	return nil
}

// Inspect reports the tri-state of the named sandbox.
func (p *DockerProvisioner) Inspect(ctx context.Context, name string) (State, error) {
	info, err := p.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return StateAbsent, nil
		}
		return StateAbsent, fmt.Errorf("failed to inspect %s: %w", name, err)
	}
	if info.State != nil && info.State.Running {
		return StateRunning, nil
	}
	return StateStopped, nil
}

// Create creates the named sandbox without starting it. The entrypoint
// is a shell kept alive by the allocated TTY, so the sandbox idles until
// jobs are exec'd into it.
func (p *DockerProvisioner) Create(ctx context.Context, name string, spec CreateSpec) error {
	useInit := true
	cfg := &container.Config{
		Image:     spec.Image,
		Cmd:       []string{"/bin/bash"},
		Env:       spec.Env,
		Tty:       spec.TTY,
		OpenStdin: spec.TTY,
	}
	hostCfg := &container.HostConfig{
		Binds:      spec.Binds,
		Privileged: spec.Privileged,
		Init:       &useInit,
	}
	if spec.DNS != "" {
		hostCfg.DNS = []string{spec.DNS}
	}

	if _, err := p.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name); err != nil {
		return fmt.Errorf("failed to create sandbox %s: %w", name, err)
	}
	p.logger.Info("created sandbox", "name", name, "image", spec.Image)
	return nil
}

// Start starts an existing sandbox.
func (p *DockerProvisioner) Start(ctx context.Context, name string) error {
	if err := p.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start sandbox %s: %w", name, err)
	}
	p.logger.Info("started sandbox", "name", name)
	return nil
}

// Exec runs cmd inside the named sandbox, capturing combined output,
// bounded by a hard wall-clock timeout.
func (p *DockerProvisioner) Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error) {
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	created, err := p.cli.ContainerExecCreate(execCtx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, execErr(execCtx, fmt.Errorf("failed to create exec in %s: %w", name, err))
	}

	attached, err := p.cli.ContainerExecAttach(execCtx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, execErr(execCtx, fmt.Errorf("failed to attach exec in %s: %w", name, err))
	}
	defer attached.Close()

	// Drain the multiplexed stream until the command exits or the
	// deadline fires.
	var buf bytes.Buffer
	if _, err = stdcopy.StdCopy(&buf, &buf, attached.Reader); err != nil {
		return ExecResult{Output: buf.String()}, execErr(execCtx, fmt.Errorf("failed to read exec output from %s: %w", name, err))
	}

	inspect, err := p.cli.ContainerExecInspect(execCtx, created.ID)
	if err != nil {
		return ExecResult{Output: buf.String()}, execErr(execCtx, fmt.Errorf("failed to inspect exec in %s: %w", name, err))
	}

	return ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

// RemoveByPrefix force-removes every sandbox whose name matches the
// prefix.
func (p *DockerProvisioner) RemoveByPrefix(ctx context.Context, prefix string) error {
	list, err := p.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^"+prefix)),
	})
	if err != nil {
		return fmt.Errorf("failed to list sandboxes: %w", err)
	}

	for _, c := range list {
		if err := p.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			p.logger.Warn("failed to remove sandbox", "id", c.ID, "error", err)
			continue
		}
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		p.logger.Info("removed sandbox", "name", name)
	}
	return nil
}

// execErr maps a deadline hit to ErrExecTimeout while preserving the
// transport error otherwise.
func execErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrExecTimeout, err)
	}
	return err
}
