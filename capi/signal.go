package capi

import (
	"context"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/runtime"
	"github.com/joeycumines/phsa/signal"
	"github.com/joeycumines/phsa/status"
)

func resolveSignal(rt *runtime.Runtime, h aql.Handle) (*signal.Signal, Status) {
	obj, ok := rt.Signals.Resolve(h)
	if !ok {
		return nil, status.ErrInvalidSignal
	}
	sig, ok := obj.(*signal.Signal)
	if !ok {
		return nil, status.ErrInvalidSignal
	}
	return sig, Success
}

// HsaSignalCreate registers a new Signal with the current runtime,
// returning its handle. Per spec.md §3, a Signal's handle dereferences
// directly to its own value cell; here that is modeled by registering
// the Signal itself as the resolved object, same as any other handle.
func HsaSignalCreate(initial int64) (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	sig := signal.New(initial)
	return rt.Signals.Allocate(sig), Success
}

// HsaSignalDestroy marks a signal destroyed and releases its handle.
func HsaSignalDestroy(h aql.Handle) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	sig, s := resolveSignal(rt, h)
	if s != Success {
		return s
	}
	sig.Destroy()
	rt.Signals.Release(h)
	return Success
}

// HsaSignalLoad and HsaSignalStore forward directly to the Signal's
// atomic cell under the requested memory order (spec.md §4.1).
func HsaSignalLoad(h aql.Handle, order memorder.Order) (int64, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	sig, s := resolveSignal(rt, h)
	if s != Success {
		return 0, s
	}
	return sig.Load(order), Success
}

func HsaSignalStore(h aql.Handle, v int64, order memorder.Order) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	sig, s := resolveSignal(rt, h)
	if s != Success {
		return s
	}
	sig.Store(v, order)
	return Success
}

// HsaSignalWait forwards to Signal.Wait, the ambient ctx-cancellable
// variant of hsa_signal_wait (see SPEC_FULL.md §4.1).
func HsaSignalWait(ctx context.Context, h aql.Handle, predicate signal.Predicate, timeout uint64, order memorder.Order) (int64, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	sig, s := resolveSignal(rt, h)
	if s != Success {
		return 0, s
	}
	return sig.Wait(ctx, predicate, timeout, order), Success
}
