// Package testutils provides shared testing utilities across the application.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chuanzhoupan/goingest/internal/sandbox"
)

// FakeProvisioner is an in-memory Provisioner for tests. Sandbox states
// are seeded via SetState; every call is recorded.
type FakeProvisioner struct {
	mu     sync.Mutex
	states map[string]sandbox.State

	// Calls records "op:name" entries in order.
	Calls []string

	// InspectErr, CreateErr and StartErr fail the matching operation for
	// the named sandbox when set.
	InspectErr map[string]error
	CreateErr  map[string]error
	StartErr   map[string]error

	// ExecFunc, when set, handles Exec calls. The default reports
	// success with no output.
	ExecFunc func(name string, cmd []string) (sandbox.ExecResult, error)
}

// NewFakeProvisioner creates an empty fake; all sandboxes are absent.
func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{
		states:     make(map[string]sandbox.State),
		InspectErr: make(map[string]error),
		CreateErr:  make(map[string]error),
		StartErr:   make(map[string]error),
	}
}

// SetState seeds the state of a named sandbox.
func (f *FakeProvisioner) SetState(name string, s sandbox.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[name] = s
}

// State returns the current state of a named sandbox.
func (f *FakeProvisioner) State(name string) sandbox.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[name]
}

// CallsFor returns the recorded calls for one operation.
func (f *FakeProvisioner) CallsFor(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, op+":") {
			out = append(out, strings.TrimPrefix(c, op+":"))
		}
	}
	return out
}

func (f *FakeProvisioner) record(op, name string) {
	f.Calls = append(f.Calls, op+":"+name)
}

// Inspect implements sandbox.Provisioner.
func (f *FakeProvisioner) Inspect(_ context.Context, name string) (sandbox.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect", name)
	if err := f.InspectErr[name]; err != nil {
		return sandbox.StateAbsent, err
	}
	return f.states[name], nil
}

// Create implements sandbox.Provisioner.
func (f *FakeProvisioner) Create(_ context.Context, name string, _ sandbox.CreateSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create", name)
	if err := f.CreateErr[name]; err != nil {
		return err
	}
	f.states[name] = sandbox.StateStopped
	return nil
}

// Start implements sandbox.Provisioner.
func (f *FakeProvisioner) Start(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start", name)
	if err := f.StartErr[name]; err != nil {
		return err
	}
	if f.states[name] == sandbox.StateAbsent {
		return fmt.Errorf("no such sandbox: %s", name)
	}
	f.states[name] = sandbox.StateRunning
	return nil
}

// Exec implements sandbox.Provisioner.
func (f *FakeProvisioner) Exec(_ context.Context, name string, cmd []string, _ time.Duration) (sandbox.ExecResult, error) {
	f.mu.Lock()
	f.record("exec", name)
	fn := f.ExecFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(name, cmd)
	}
	return sandbox.ExecResult{}, nil
}

// RemoveByPrefix implements sandbox.Provisioner.
func (f *FakeProvisioner) RemoveByPrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove", prefix)
	for name := range f.states {
		if strings.HasPrefix(name, prefix) {
			delete(f.states, name)
		}
	}
	return nil
}
