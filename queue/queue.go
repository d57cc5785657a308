// Package queue implements the AQL ring-buffer queue (spec.md §3, §4.2):
// atomic read/write indices under caller-selected HSA memory order, a
// doorbell signal, and packet-processed retirement bookkeeping.
// Grounded on original_source/include/Queue.hh (PacketIsProcessed
// vector-of-bool, QueueCallback) and UserModeQueue.cc/.hh (atomic index
// ops delegating to a generic atomic helper, here memorder.Cell64);
// the ring-buffer idiom itself is cross-checked against
// other_examples' disruptor-style ring buffers for Go conventions
// distinct from the C++ original.
//
// Per spec.md §9's Open Question, a MULTI queue's packet scan walks a
// full revolution of the ring even when most slots are INVALID. This
// is O(size) per scheduling round and can starve queues with large
// capacity under many small dispatches; it is intentionally not
// "fixed" here — see DESIGN.md.
package queue

import (
	"math"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/signal"
	"github.com/joeycumines/phsa/status"
)

// Type distinguishes single-producer from multi-producer queues
// (spec.md §3).
type Type int

const (
	Single Type = iota
	Multi
)

// Features is the hsa_queue_feature_t bitmask (supplemented from
// original_source/include/Queue.hh, dropped by the spec.md
// distillation — see SPEC_FULL.md §8).
type Features uint32

const (
	FeatureKernelDispatch Features = 1 << 0
	FeatureAgentDispatch  Features = 1 << 1
)

// NeverRung is the doorbell sentinel meaning "never rung" (spec.md §8
// boundary behaviours).
const NeverRung int64 = math.MaxInt64

// Callback surfaces a packet-processing error asynchronously to the
// producer (spec.md §7): the worker never returns an error from its
// internal loop functions.
type Callback func(status.Status)

// Queue is a lock-free single-consumer (the dispatch worker), N-producer
// AQL ring buffer.
type Queue struct {
	Base     []aql.Packet
	Size     uint64 // capacity, power of two
	Type     Type
	Features Features
	Doorbell *signal.Signal
	// OwnsDoorbell records whether Doorbell was created by New (and
	// so must be destroyed alongside the queue) or supplied by the
	// caller (a "soft queue", per UserModeQueue.cc's IsDoorbellOwned).
	OwnsDoorbell bool

	readIndex  memorder.Cell64
	writeIndex memorder.Cell64

	// engine-private bookkeeping (spec.md §3)
	lastHandledDoorbell int64
	packetProcessed     []bool
	destroyed           memorder.Cell32
	inactivated         memorder.Cell32

	callback Callback
}

// New validates size (qtype is stored as given) and constructs a Queue, per spec.md §8
// boundary behaviours ("hsa_queue_create with size == 0 or
// non-power-of-two MUST fail with INVALID_ARGUMENT").
func New(size uint64, qtype Type, features Features, cb Callback, doorbell *signal.Signal) (*Queue, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, status.New(status.ErrInvalidArgument, "queue: size must be a nonzero power of two")
	}

	q := &Queue{
		Base:                make([]aql.Packet, size),
		Size:                size,
		Type:                qtype,
		Features:            features,
		packetProcessed:     make([]bool, size),
		lastHandledDoorbell: NeverRung,
		callback:            cb,
	}
	for i := range q.Base {
		q.Base[i].SetType(aql.Invalid)
	}

	if doorbell != nil {
		q.Doorbell = doorbell
	} else {
		q.Doorbell = signal.New(NeverRung)
		q.OwnsDoorbell = true
	}

	elog.Debug("queue created", "size", size, "type", qtype, "features", features)
	return q, nil
}

// LoadReadIndex, StoreReadIndex, AddReadIndex and CompareExchangeReadIndex
// expose the read-index cell under any HSA memory order (spec.md §4.2).
func (q *Queue) LoadReadIndex(order memorder.Order) uint64  { return q.readIndex.Load(order) }
func (q *Queue) StoreReadIndex(v uint64, order memorder.Order) { q.readIndex.Store(v, order) }
func (q *Queue) AddReadIndex(delta int64, order memorder.Order) uint64 {
	return q.readIndex.Add(delta, order)
}
func (q *Queue) CompareExchangeReadIndex(expected, desired uint64, order memorder.Order) (uint64, bool) {
	return q.readIndex.CompareExchange(expected, desired, order)
}

// LoadWriteIndex, StoreWriteIndex, AddWriteIndex and CompareExchangeWriteIndex
// expose the write-index cell under any HSA memory order.
func (q *Queue) LoadWriteIndex(order memorder.Order) uint64  { return q.writeIndex.Load(order) }
func (q *Queue) StoreWriteIndex(v uint64, order memorder.Order) { q.writeIndex.Store(v, order) }
func (q *Queue) AddWriteIndex(delta int64, order memorder.Order) uint64 {
	return q.writeIndex.Add(delta, order)
}
func (q *Queue) CompareExchangeWriteIndex(expected, desired uint64, order memorder.Order) (uint64, bool) {
	return q.writeIndex.CompareExchange(expected, desired, order)
}

// Packet returns a pointer to the packet slot for ring index i
// (i mod Size).
func (q *Queue) Packet(i uint64) *aql.Packet {
	return &q.Base[i%q.Size]
}

// PacketProcessed reports whether the slot for ring index i has been
// marked processed-but-retirement-deferred (spec.md §4.5 retirement
// rule).
func (q *Queue) PacketProcessed(i uint64) bool {
	return q.packetProcessed[i%q.Size]
}

// SetPacketProcessed sets or clears the processed-but-deferred bit for
// ring index i.
func (q *Queue) SetPacketProcessed(i uint64, v bool) {
	q.packetProcessed[i%q.Size] = v
}

// ExecuteCallback surfaces a packet-processing error through the
// producer-registered callback (spec.md §4.2, §7). Every invocation
// emits one error-level structured event, whether or not a callback is
// registered; with a nil callback nothing else happens — this is the one
// place spec.md routes errors asynchronously, so it is where
// observability belongs (SPEC_FULL.md §4.2).
func (q *Queue) ExecuteCallback(s status.Status) {
	elog.Error("queue packet processing error", "status", s.String())
	if q.callback != nil {
		q.callback(s)
	}
}

// MarkDestroyed marks the queue destroyed (spec.md §4.2).
func (q *Queue) MarkDestroyed() { q.destroyed.Store(1, memorder.Release) }

// Destroyed reports whether MarkDestroyed has been called.
func (q *Queue) Destroyed() bool { return q.destroyed.Load(memorder.Acquire) != 0 }

// MarkInactivated marks the queue inactivated (spec.md §4.2, §4.5).
func (q *Queue) MarkInactivated() { q.inactivated.Store(1, memorder.Release) }

// Inactivated reports whether MarkInactivated has been called.
func (q *Queue) Inactivated() bool { return q.inactivated.Load(memorder.Acquire) != 0 }

// LastHandledDoorbell and SetLastHandledDoorbell expose the engine's
// private doorbell-dedup bookkeeping (spec.md §3); not part of the
// public HSA API, but owned by the Queue so a single worker's state
// travels with the queue it belongs to.
func (q *Queue) LastHandledDoorbell() int64        { return q.lastHandledDoorbell }
func (q *Queue) SetLastHandledDoorbell(v int64)    { q.lastHandledDoorbell = v }
