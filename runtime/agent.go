package runtime

import (
	"sync"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/engine"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/region"
	"github.com/joeycumines/phsa/signal"
	"github.com/joeycumines/phsa/status"
)

// Agent is a CPU dispatch target: it owns its Queues (spec.md §3:
// "the Agent owns its Queues") and a single engine.Worker started at
// construction (spec.md §4.5: "One worker thread per Agent, created at
// agent construction"). A single concrete Agent type is used rather
// than a polymorphic hierarchy, per spec.md §9's "Deep virtual
// hierarchies" design note — this module supports exactly one backend.
type Agent struct {
	ISA executable.ISA

	rt     *Runtime
	worker *engine.Worker

	mu      sync.RWMutex
	queues  map[aql.Handle]*queue.Queue
	regions map[aql.Handle]region.Region
}

// NewAgent constructs an Agent bound to rt's handle registries and
// starts its dispatch worker. group backs the agent's group-memory
// allocations for kernel dispatch.
func NewAgent(rt *Runtime, isa executable.ISA, group region.Region) *Agent {
	a := &Agent{
		ISA:     isa,
		rt:      rt,
		worker:  engine.New(group, rt.Kernels, rt.Signals),
		queues:  make(map[aql.Handle]*queue.Queue),
		regions: make(map[aql.Handle]region.Region),
	}
	a.worker.Start()
	elog.Info("agent created", "isa", isa.String())
	return a
}

// Features reports the union of queue features (spec.md §4.2, §6)
// this agent's CPU backend supports: both kernel- and agent-dispatch
// capable.
func (a *Agent) Features() queue.Features {
	return queue.FeatureKernelDispatch | queue.FeatureAgentDispatch
}

// CreateQueue allocates a queue, registers it (and, if newly created,
// its doorbell) with the Runtime's handle registries, and hands it to
// the dispatch worker. A nil doorbell lets the queue create and own
// its own (spec.md §3: "a Queue shares ownership of its doorbell
// Signal only when it created it").
func (a *Agent) CreateQueue(size uint64, qtype queue.Type, features queue.Features, cb queue.Callback, doorbell *aql.Handle) (aql.Handle, error) {
	var doorbellSignal *signal.Signal
	if doorbell != nil {
		obj, ok := a.rt.Signals.Resolve(*doorbell)
		if !ok {
			return 0, status.New(status.ErrInvalidSignal, "agent: create_queue: doorbell handle does not resolve")
		}
		sig, ok := obj.(*signal.Signal)
		if !ok {
			return 0, status.New(status.ErrInvalidSignal, "agent: create_queue: doorbell handle is not a signal")
		}
		doorbellSignal = sig
	}

	q, err := queue.New(size, qtype, features, cb, doorbellSignal)
	if err != nil {
		return 0, err
	}

	h := a.rt.Queues.Allocate(q)
	if q.OwnsDoorbell {
		a.rt.Signals.Allocate(q.Doorbell)
	}

	a.mu.Lock()
	a.queues[h] = q
	a.mu.Unlock()

	a.worker.AddQueue(q)
	return h, nil
}

// DestroyQueue marks a queue destroyed and removes it from the worker's
// scan set and the Runtime's registry.
func (a *Agent) DestroyQueue(h aql.Handle) error {
	a.mu.Lock()
	q, ok := a.queues[h]
	if ok {
		delete(a.queues, h)
	}
	a.mu.Unlock()
	if !ok {
		return status.New(status.ErrInvalidQueue, "agent: destroy_queue: unknown handle")
	}
	q.MarkDestroyed()
	a.worker.RemoveQueue(q)
	a.rt.Queues.Release(h)
	return nil
}

// TerminateQueue runs the cooperative inactivation handshake (spec.md
// §4.5) against the queue named by h.
func (a *Agent) TerminateQueue(h aql.Handle) error {
	a.mu.RLock()
	q, ok := a.queues[h]
	a.mu.RUnlock()
	if !ok {
		return status.New(status.ErrInvalidQueue, "agent: terminate_queue: unknown handle")
	}
	a.worker.TerminateQueue(q)
	return nil
}

// AddRegion registers a memory region with this agent, returning its
// handle.
func (a *Agent) AddRegion(r region.Region) aql.Handle {
	h := a.rt.Regions.Allocate(r)
	a.mu.Lock()
	a.regions[h] = r
	a.mu.Unlock()
	return h
}

// Iterate calls fn for every region this agent owns, stopping early if
// fn returns false (spec.md §4: region iteration over an Agent).
func (a *Agent) Iterate(fn func(h aql.Handle, r region.Region) bool) {
	a.mu.RLock()
	snapshot := make(map[aql.Handle]region.Region, len(a.regions))
	for h, r := range a.regions {
		snapshot[h] = r
	}
	a.mu.RUnlock()
	for h, r := range snapshot {
		if !fn(h, r) {
			return
		}
	}
}

// ShutDown stops the dispatch worker, blocking until it has joined
// (spec.md §5: "agent shut_down block[s] until the worker joins").
func (a *Agent) ShutDown() {
	a.worker.Stop()
	elog.Info("agent shut down")
}

// RegisterKernels allocates a dispatch handle in the Runtime's kernel
// registry for every Kernel symbol in e (spec.md §4.4: a frozen
// Executable's symbols become dispatchable). Callers use the returned
// name→handle map to populate a KERNEL_DISPATCH packet's kernel_object
// field. Safe to call only after e.Freeze(), matching spec.md's "once
// frozen, get_symbol and dispatch are legal."
func (a *Agent) RegisterKernels(e *executable.Executable) map[string]aql.Handle {
	out := make(map[string]aql.Handle)
	for _, sym := range e.Symbols() {
		if sym.Kind != executable.KindKernel {
			continue
		}
		s := sym
		out[s.Name] = a.rt.Kernels.Allocate(&s)
	}
	return out
}
