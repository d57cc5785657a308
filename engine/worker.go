// Package engine implements the per-agent dispatch worker (spec.md
// §4.5): the outer queue-scan loop, the inner packet-scan loop, and
// the cooperative inactivation handshake. Grounded on eventloop.Loop's
// single-goroutine run loop shape (outer "drain tasks" loop around an
// inner per-task dispatch), with loopTestHooks generalized into
// engine.testHooks for deterministic tests over the outer/inner loop
// and the inactivation handshake.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/handle"
	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/region"
	"github.com/joeycumines/phsa/signal"
	"github.com/joeycumines/phsa/status"
)

// testHooks provides injection points for deterministic race tests over
// the outer/inner loop and the inactivation handshake, mirroring
// eventloop.loopTestHooks exactly. Unexported: settable only from
// _test.go files in this package.
type testHooks struct {
	BeforeOuterIteration func(q *queue.Queue)
	BeforePacketScan     func(q *queue.Queue, r, w uint64)
	AfterPacketHandled   func(q *queue.Queue, i uint64)
	BeforeKernelInvoke   func(q *queue.Queue, i uint64)
}

// idleSleep bounds how long the worker sleeps between empty outer-loop
// passes, keeping the poll-only scheduling model (spec.md §5:
// "the worker never blocks on condition variables; it polls") from
// pegging a core while the agent has nothing to do.
var idleSleep = time.Millisecond

// Worker runs the single dispatch goroutine for one Agent (spec.md
// §4.5: "One worker thread per Agent, created at agent construction").
type Worker struct {
	mu     sync.RWMutex
	queues []*queue.Queue

	group region.Region

	kernels *handle.Registry // aql.Handle -> *executable.Symbol
	signals *handle.Registry // aql.Handle -> *signal.Signal

	running   atomic.Pointer[queue.Queue]
	interrupt sync.Map // *queue.Queue -> *atomic.Bool, lazily populated

	stop atomic.Bool
	wg   sync.WaitGroup

	hooks *testHooks
}

// New creates a Worker for one Agent's queue set. group backs
// kernel-dispatch group-memory allocations; kernels and signals resolve
// the handles embedded in AQL packets to the objects they name.
func New(group region.Region, kernels, signals *handle.Registry) *Worker {
	return &Worker{group: group, kernels: kernels, signals: signals}
}

// AddQueue registers q with the worker's outer-loop scan set.
func (w *Worker) AddQueue(q *queue.Queue) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queues = append(w.queues, q)
}

// RemoveQueue drops q from the scan set, e.g. after MarkDestroyed.
func (w *Worker) RemoveQueue(q *queue.Queue) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.queues {
		if existing == q {
			w.queues = append(w.queues[:i], w.queues[i+1:]...)
			break
		}
	}
}

// Start launches the dispatch goroutine. Idempotent only in the sense
// that calling it twice runs two goroutines over the same queue set;
// callers (runtime.Agent) are expected to call it exactly once.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		elog.Info("dispatch worker started")
		w.run()
		elog.Info("dispatch worker stopped")
	}()
}

// Stop requests the worker goroutine to exit and blocks until it has
// (spec.md §5: "agent shut_down block[s] until the worker joins").
func (w *Worker) Stop() {
	w.stop.Store(true)
	w.wg.Wait()
}

func (w *Worker) run() {
	for !w.stop.Load() {
		w.mu.RLock()
		snapshot := make([]*queue.Queue, len(w.queues))
		copy(snapshot, w.queues)
		w.mu.RUnlock()

		progressed := false
		for _, q := range snapshot {
			if w.stop.Load() {
				return
			}
			if w.scanOne(q) {
				progressed = true
			}
		}
		if !progressed {
			time.Sleep(idleSleep)
		}
	}
}

// scanOne runs one outer-loop pass over a single queue (spec.md §4.5
// "Outer loop", steps 1-5). Returns whether any packet was handled.
func (w *Worker) scanOne(q *queue.Queue) bool {
	if w.hooks != nil && w.hooks.BeforeOuterIteration != nil {
		w.hooks.BeforeOuterIteration(q)
	}

	w.running.Store(q)
	defer w.running.Store(nil)

	if q.Destroyed() || q.Inactivated() {
		return false
	}

	doorbell := q.Doorbell.Load(memorder.Acquire)
	if doorbell == queue.NeverRung {
		return false
	}
	// "nothing new" (spec.md §4.5 step 4) means both the doorbell is
	// unchanged since the last pass AND there is nothing left
	// outstanding between read_index and write_index — a pending
	// barrier or a kernel re-check must still be retried even when no
	// new packet has been committed since the last doorbell ring.
	if doorbell == q.LastHandledDoorbell() && q.LoadReadIndex(memorder.Acquire) >= q.LoadWriteIndex(memorder.Acquire) {
		return false
	}
	q.SetLastHandledDoorbell(doorbell)

	return w.scanPackets(q)
}

// scanPackets is the inner packet-scan loop (spec.md §4.5 "Inner loop —
// packet scan"). SINGLE queues scan [r, doorbell], the doorbell value
// being the index of the last committed packet; MULTI queues scan a
// full ring revolution [r, r+size), per the Open Question this module
// documents rather than "fixes" (see DESIGN.md and queue package doc).
func (w *Worker) scanPackets(q *queue.Queue) bool {
	r := q.LoadReadIndex(memorder.Acquire)
	wIdx := q.LoadWriteIndex(memorder.Acquire)

	var scanEnd uint64
	if q.Type == queue.Single {
		scanEnd = uint64(q.Doorbell.Load(memorder.Acquire)) + 1
	} else {
		scanEnd = r + q.Size
	}

	if w.hooks != nil && w.hooks.BeforePacketScan != nil {
		w.hooks.BeforePacketScan(q, r, wIdx)
	}

	handled := false
	for i := r; i < scanEnd; i++ {
		if i >= wIdx {
			break
		}
		if q.Inactivated() {
			break
		}

		packet := q.Packet(i)
		slot := i % q.Size

		if packet.Type() == aql.Invalid {
			if q.PacketProcessed(i % q.Size) {
				if i == r {
					r = i + 1
					q.SetPacketProcessed(slot, false)
					q.StoreReadIndex(r, memorder.Release)
				}
			}
			continue
		}

		ready, handledPacket := w.dispatchOne(q, packet, i)
		if !ready {
			// barrier unsatisfied: stop this round, leave subsequent
			// packets untouched (spec.md §4.5).
			break
		}
		handled = handled || handledPacket
		w.retire(q, i, &r)
		if w.hooks != nil && w.hooks.AfterPacketHandled != nil {
			w.hooks.AfterPacketHandled(q, i)
		}
	}
	return handled
}

// dispatchOne handles a single committed packet. ready is false only
// for an unsatisfied barrier (the scan must stop without consuming the
// slot); handled reports whether work was actually performed (used only
// for the worker's idle/backoff decision).
func (w *Worker) dispatchOne(q *queue.Queue, packet *aql.Packet, i uint64) (ready, handled bool) {
	switch packet.Type() {
	case aql.BarrierAnd:
		for d := 0; d < aql.DependencySignalCount; d++ {
			h := packet.DependencySignal(d)
			if h == 0 {
				continue
			}
			sig, ok := w.resolveSignal(h)
			if !ok {
				continue
			}
			if sig.Load(memorder.Acquire) != 0 {
				return false, false
			}
		}
		return true, true

	case aql.BarrierOr:
		satisfied := false
		for d := 0; d < aql.DependencySignalCount; d++ {
			h := packet.DependencySignal(d)
			if h == 0 {
				continue
			}
			sig, ok := w.resolveSignal(h)
			if !ok {
				continue
			}
			if sig.Load(memorder.Acquire) == 0 {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false, false
		}
		return true, true

	case aql.KernelDispatch:
		w.dispatchKernel(q, packet, i)
		return true, true

	default:
		q.ExecuteCallback(status.New(status.ErrInvalidPacketFormat, "engine: unrecognised packet type"))
		return true, true
	}
}

func (w *Worker) resolveSignal(h aql.Handle) (*signal.Signal, bool) {
	obj, ok := w.signals.Resolve(h)
	if !ok {
		return nil, false
	}
	sig, ok := obj.(*signal.Signal)
	return sig, ok
}

// retire applies spec.md §4.5's "Retirement and read-index advance"
// rule: set the slot INVALID, advance the in-order read-index boundary
// if possible, otherwise mark the slot processed-but-deferred, and fire
// the completion signal.
func (w *Worker) retire(q *queue.Queue, i uint64, r *uint64) {
	packet := q.Packet(i)
	var completion aql.Handle
	if packet.Type() == aql.KernelDispatch || packet.Type() == aql.BarrierAnd || packet.Type() == aql.BarrierOr {
		completion = packet.CompletionSignal()
	}
	packet.SetType(aql.Invalid)

	slot := i % q.Size
	if i == *r {
		*r = i + 1
		q.SetPacketProcessed(slot, false)
		// a chain of already-processed, deferred slots can now retire
		// too (spec.md §4.5: "advance further").
		for q.PacketProcessed(*r % q.Size) {
			q.SetPacketProcessed(*r%q.Size, false)
			*r++
		}
		q.StoreReadIndex(*r, memorder.Release)
	} else {
		q.SetPacketProcessed(slot, true)
	}

	if completion != 0 {
		if sig, ok := w.resolveSignal(completion); ok {
			sig.Store(0, memorder.Relaxed)
		}
	}
}
