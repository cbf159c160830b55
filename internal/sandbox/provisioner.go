// Package sandbox manages the pool of isolated execution environments
// that capture jobs run in. The scheduler treats each sandbox as an
// opaque, long-lived worker context; this package owns provisioning and
// command execution.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// State is the provisioning tri-state of a named sandbox.
type State int

const (
	// StateAbsent means no sandbox with that name exists.
	StateAbsent State = iota
	// StateStopped means the sandbox exists but is not running.
	StateStopped
	// StateRunning means the sandbox exists and is running.
	StateRunning
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// ErrExecTimeout marks an execution that exceeded its hard deadline.
var ErrExecTimeout = errors.New("execution exceeded deadline")

// CreateSpec describes how to create a sandbox.
type CreateSpec struct {
	// Image is the sandbox image reference.
	Image string
	// Binds are host:sandbox bind mount pairs.
	Binds []string
	// Env is passed verbatim into the sandbox (HOST_UID, HOST_GID).
	Env []string
	// DNS overrides the sandbox resolver when non-empty.
	DNS string
	// Privileged grants the capabilities packet capture needs.
	Privileged bool
	// TTY allocates a pseudo-terminal and keeps stdin open.
	TTY bool
}

// ExecResult is the outcome of one command run inside a sandbox.
type ExecResult struct {
	ExitCode int
	// Output is combined stdout+stderr, used as diagnostic text on
	// failure.
	Output string
}

// Provisioner is the environment provisioning interface. Implemented by
// the Docker engine adapter; faked in tests.
type Provisioner interface {
	// Inspect reports whether the named sandbox is absent, stopped or
	// running.
	Inspect(ctx context.Context, name string) (State, error)
	// Create creates (but does not start) the named sandbox.
	Create(ctx context.Context, name string, spec CreateSpec) error
	// Start starts an existing sandbox.
	Start(ctx context.Context, name string) error
	// Exec runs cmd inside a running sandbox with a hard wall-clock
	// timeout. A non-nil error with ErrExecTimeout in its chain marks a
	// deadline hit; other errors are transport failures. A nil error
	// with a non-zero ExitCode is a job-level failure.
	Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error)
	// RemoveByPrefix force-removes every sandbox whose name starts with
	// prefix.
	RemoveByPrefix(ctx context.Context, prefix string) error
}
