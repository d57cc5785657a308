package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/queue"
	"github.com/stretchr/testify/require"
)

// TestOuterLoopHookObservesEveryQueue exercises testHooks.BeforeOuterIteration
// deterministically: a queue with no pending work should still be visited
// on every outer-loop pass, independent of timing.
func TestOuterLoopHookObservesEveryQueue(t *testing.T) {
	w, _, _ := newTestWorker()
	q, err := queue.New(2, queue.Single, 0, nil, nil)
	require.NoError(t, err)
	w.AddQueue(q)

	var visits int32
	w.hooks = &testHooks{
		BeforeOuterIteration: func(visited *queue.Queue) {
			if visited == q {
				atomic.AddInt32(&visits, 1)
			}
		},
	}

	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&visits) >= 2
	}, time.Second, time.Millisecond)
}

// TestAfterPacketHandledHookFiresOncePerPacket pins down the retirement
// hook's cardinality against a two-packet SINGLE queue.
func TestAfterPacketHandledHookFiresOncePerPacket(t *testing.T) {
	w, kernels, _ := newTestWorker()
	sym := &executable.Symbol{Kind: executable.KindKernel, Entry: func(*aql.KernelLaunchData, uintptr, uintptr) {}}
	kh := kernels.Allocate(sym)

	q, err := queue.New(4, queue.Single, 0, nil, nil)
	require.NoError(t, err)
	for i := uint64(0); i < 2; i++ {
		p := q.Packet(i)
		p.SetType(aql.KernelDispatch)
		p.SetSetup(1)
		p.SetWorkgroupSizeX(1)
		p.SetWorkgroupSizeY(1)
		p.SetWorkgroupSizeZ(1)
		p.SetKernelObject(kh)
	}
	q.StoreWriteIndex(2, memorder.Release)
	q.Doorbell.Store(1, memorder.Release)

	var handledCount int32
	seen := make(map[uint64]bool)
	duplicate := false
	var mu sync.Mutex
	w.hooks = &testHooks{
		AfterPacketHandled: func(_ *queue.Queue, i uint64) {
			mu.Lock()
			defer mu.Unlock()
			if seen[i] {
				duplicate = true
			}
			seen[i] = true
			atomic.AddInt32(&handledCount, 1)
		},
	}

	w.AddQueue(q)
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&handledCount) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.False(t, duplicate, "the hook must not fire twice for the same packet")
}
