// Package runtime implements the process-wide HSA runtime singleton
// and the Agent type that owns an engine.Worker, its queues, and its
// memory regions (spec.md §4, §5: "The Runtime instance is a
// process-wide singleton created under a mutex with reference
// counting (init/shut_down)"). Grounded on eventloop.Loop's
// start/shutdown lifecycle (abort.go, loop.go) generalized from a
// single event loop instance to a refcounted global singleton, per
// spec.md §9's "Process-wide registries" design note.
package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/handle"
	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/status"
)

// Runtime is the process-wide singleton every capi entry point
// resolves handles against. init/shut_down are reference counted so
// nested init/shut_down pairs (spec.md §4) compose correctly; tests
// may also construct independent *Runtime instances directly via New,
// bypassing the package-level singleton (spec.md §9: "to permit
// multiple independent runtime instances in tests").
type Runtime struct {
	mu      sync.Mutex
	refs    atomic.Int32
	Agents  *handle.Registry
	Queues  *handle.Registry
	Signals *handle.Registry
	Regions *handle.Registry
	Execs   *handle.Registry
	Kernels *handle.Registry
}

// New constructs an independent Runtime with its own handle registries.
func New() *Runtime {
	return &Runtime{
		Agents:  handle.New(),
		Queues:  handle.New(),
		Signals: handle.New(),
		Regions: handle.New(),
		Execs:   handle.New(),
		Kernels: handle.New(),
	}
}

var (
	singletonMu sync.Mutex
	singleton   *Runtime
)

// Init increments the process-wide singleton's reference count,
// constructing it on the first call (spec.md §4: "init/shut_down").
func Init() *Runtime {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		singleton = New()
		elog.Info("runtime initialised")
	}
	singleton.refs.Add(1)
	return singleton
}

// ShutDown decrements the reference count, tearing the singleton down
// once it reaches zero. Returns ErrNotInitialized if called without a
// matching Init.
func ShutDown() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		return status.New(status.ErrNotInitialized, "runtime: shut_down without init")
	}
	if singleton.refs.Add(-1) <= 0 {
		singleton = nil
		elog.Info("runtime torn down")
	}
	return nil
}

// Current returns the process-wide singleton, or nil if not
// initialised.
func Current() *Runtime {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return singleton
}

// Iterate calls fn for every Agent registered with rt, stopping early
// if fn returns false (spec.md §4's device-discovery surface, added
// per SPEC_FULL.md §8's "Agent Destroy/device discovery" supplement).
func (rt *Runtime) Iterate(fn func(h aql.Handle, a *Agent) bool) {
	rt.Agents.Each(func(h aql.Handle, object any) bool {
		a, ok := object.(*Agent)
		if !ok {
			return true
		}
		return fn(h, a)
	})
}
