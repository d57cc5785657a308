package engine

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/phsa/internal/elog"
	"github.com/joeycumines/phsa/queue"
)

// handshakeSpin bounds how often TerminateQueue re-checks whether the
// worker has switched off the target queue.
var handshakeSpin = time.Microsecond * 200

// TerminateQueue implements spec.md §4.5's inactivation protocol in its
// cooperative form (SPEC_FULL.md §4.5, DESIGN.md Open Question 2): it
// marks q inactivated, signals any kernel currently running on q to
// return voluntarily via KernelLaunchData.InterruptRequested, and spins
// until the worker's running-queue pointer has moved off q. The
// async-signal/long-jump variant spec.md's original source used is not
// implemented — a kernel that never polls its interrupt flag will not
// be preempted, matching the cooperative contract's requirements on
// kernel authors.
func (w *Worker) TerminateQueue(q *queue.Queue) {
	q.MarkInactivated()

	if flag, ok := w.interrupt.Load(q); ok {
		flag.(*atomic.Bool).Store(true)
	}

	elog.Info("queue termination requested", "queue_size", q.Size)
	for w.running.Load() == q {
		time.Sleep(handshakeSpin)
	}
	elog.Info("queue termination handshake complete")
}
