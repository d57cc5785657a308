// Package signal implements the HSA signal primitive (spec.md §4.1):
// an atomic value cell with the full HSA RMW operation set plus a
// predicate-wait. Grounded on eventloop.FastState's CAS-based mutation
// style, generalized from a fixed state enum to an arbitrary int64
// value, and on original_source's StdAtomicSignal.hh for the operation
// set and the explicit ABA caveat on Wait.
package signal

import (
	"context"
	"time"

	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/memorder"
)

// NoTimeout is the sentinel HSA uses for "wait forever" (spec.md §4.1:
// "timeout = UINT64_MAX means no timeout").
const NoTimeout uint64 = ^uint64(0)

// Signal is an HSA signal: an atomic 64-bit value cell plus a
// destruction flag. Signals are registered through
// handle.Registry.Allocate, so a Signal's handle is a registry-assigned
// ID: it resolves to the *Signal through the registry and does not
// dereference to the value cell.
type Signal struct {
	value     memorder.Cell64
	destroyed memorder.Cell32
}

// New creates a Signal with the given initial value.
func New(initial int64) *Signal {
	s := &Signal{}
	s.value.Store(uint64(initial), memorder.Relaxed)
	elog.Debug("signal created", "initial", initial)
	return s
}

// Destroy marks the signal destroyed. It does not free the Signal
// itself — that is the handle registry's job, once all references are
// released (spec.md §3 ownership rules).
func (s *Signal) Destroy() {
	s.destroyed.Store(1, memorder.Release)
	elog.Debug("signal destroyed")
}

// Destroyed reports whether Destroy has been called.
func (s *Signal) Destroyed() bool {
	return s.destroyed.Load(memorder.Acquire) != 0
}

// Load returns the current value under the requested order.
func (s *Signal) Load(order memorder.Order) int64 {
	return int64(s.value.Load(order))
}

// Store sets the current value under the requested order.
func (s *Signal) Store(v int64, order memorder.Order) {
	s.value.Store(uint64(v), order)
}

// Exchange stores v and returns the previous value.
func (s *Signal) Exchange(v int64, order memorder.Order) int64 {
	return int64(s.value.Exchange(uint64(v), order))
}

// CompareExchange is a strong compare-and-swap. HSA uses a relaxed
// failure order regardless of the requested success order; see
// memorder.Cell64.CompareExchange for why Go has no separate knob for
// that.
func (s *Signal) CompareExchange(expected, desired int64, order memorder.Order) (old int64, ok bool) {
	o, ok := s.value.CompareExchange(uint64(expected), uint64(desired), order)
	return int64(o), ok
}

// Add adds delta and returns the value prior to the add.
func (s *Signal) Add(delta int64, order memorder.Order) int64 {
	return int64(s.value.Add(delta, order)) - delta
}

// Sub subtracts delta and returns the value prior to the subtract.
func (s *Signal) Sub(delta int64, order memorder.Order) int64 {
	return int64(s.value.Add(-delta, order)) + delta
}

// And applies a bitwise AND with mask and returns the prior value.
func (s *Signal) And(mask int64, order memorder.Order) int64 {
	return int64(s.value.And(uint64(mask), order))
}

// Or applies a bitwise OR with mask and returns the prior value.
func (s *Signal) Or(mask int64, order memorder.Order) int64 {
	return int64(s.value.Or(uint64(mask), order))
}

// Xor applies a bitwise XOR with mask and returns the prior value.
func (s *Signal) Xor(mask int64, order memorder.Order) int64 {
	return int64(s.value.Xor(uint64(mask), order))
}

// Predicate is evaluated against each observed value during Wait.
type Predicate func(observed int64) bool

// pollInterval bounds how often Wait re-checks its predicate. The
// original polls in a tight loop checking wall-clock elapsed time; here
// a small sleep keeps the poll from pegging a core while still reacting
// quickly relative to realistic dispatch-loop timeouts.
var pollInterval = time.Microsecond * 50

// Wait polls Load(order) until either predicate returns true or timeout
// nanoseconds have elapsed, returning the last observed value. A
// timeout of NoTimeout waits indefinitely (until ctx is done). The wait
// is best-effort and may miss a transient value that satisfied the
// predicate between polls — the classic ABA case, acknowledged and not
// corrected, exactly as spec.md §4.1 states.
//
// ctx is an ambient addition over the original HSA call shape (see
// SPEC_FULL.md §4.1): it lets callers (tests, and the dispatch engine's
// inactivation handshake) cancel a poll loop promptly without waiting
// out a long or infinite HSA timeout.
func (s *Signal) Wait(ctx context.Context, predicate Predicate, timeout uint64, order memorder.Order) int64 {
	var deadline time.Time
	hasDeadline := timeout != NoTimeout
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(timeout))
	}

	for {
		v := s.Load(order)
		if predicate(v) {
			return v
		}
		if hasDeadline && !time.Now().Before(deadline) {
			return v
		}
		select {
		case <-ctx.Done():
			return v
		case <-time.After(pollInterval):
		}
	}
}
