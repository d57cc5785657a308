package capi

import (
	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/status"
)

// HsaQueueCreate resolves the agent and (if supplied) soft-queue
// doorbell handles, then forwards to runtime.Agent.CreateQueue (spec.md
// §4.2, §6). A nil doorbell lets the queue create and own its own.
func HsaQueueCreate(agent aql.Handle, size uint64, qtype queue.Type, features queue.Features, cb queue.Callback, doorbell *aql.Handle) (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return 0, s
	}
	h, err := a.CreateQueue(size, qtype, features, cb, doorbell)
	return h, statusOf(err)
}

func resolveQueueAgent(rt interface {
	Resolve(h aql.Handle) (any, bool)
}, h aql.Handle) (*queue.Queue, bool) {
	obj, ok := rt.Resolve(h)
	if !ok {
		return nil, false
	}
	q, ok := obj.(*queue.Queue)
	return q, ok
}

// HsaQueueDestroy forwards to runtime.Agent.DestroyQueue.
func HsaQueueDestroy(agent, h aql.Handle) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return s
	}
	return statusOf(a.DestroyQueue(h))
}

// HsaQueueTerminate forwards to runtime.Agent.TerminateQueue, running
// the cooperative inactivation handshake (spec.md §4.5).
func HsaQueueTerminate(agent, h aql.Handle) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return s
	}
	return statusOf(a.TerminateQueue(h))
}

// HsaQueueLoadReadIndex and HsaQueueLoadWriteIndex expose the queue's
// doorbell-observable indices for a capi caller that writes packets
// directly into the queue's ring buffer, matching the HSA model where
// the producer is a separate process/thread from the runtime.
func HsaQueueLoadWriteIndex(h aql.Handle) (uint64, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	q, ok := resolveQueueAgent(rt.Queues, h)
	if !ok {
		return 0, status.ErrInvalidQueue
	}
	return q.LoadWriteIndex(memorder.Relaxed), Success
}

func HsaQueueLoadReadIndex(h aql.Handle) (uint64, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	q, ok := resolveQueueAgent(rt.Queues, h)
	if !ok {
		return 0, status.ErrInvalidQueue
	}
	return q.LoadReadIndex(memorder.Relaxed), Success
}
