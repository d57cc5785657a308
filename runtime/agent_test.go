package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/region"
	"github.com/joeycumines/phsa/signal"
	"github.com/stretchr/testify/require"
)

var testAgentISA = executable.ISA{Name: "cpu", Major: 1}

func TestAgentFeaturesReportsKernelAndAgentDispatch(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	f := a.Features()
	require.NotZero(t, f&queue.FeatureKernelDispatch)
	require.NotZero(t, f&queue.FeatureAgentDispatch)
}

func TestAgentCreateQueueRejectsBadSize(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	_, err := a.CreateQueue(3, queue.Single, 0, nil, nil)
	require.Error(t, err)
}

func TestAgentCreateQueueWithExplicitDoorbellRejectsUnknownHandle(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	bogus := aql.Handle(0xdead)
	_, err := a.CreateQueue(4, queue.Single, 0, nil, &bogus)
	require.Error(t, err)
}

func TestAgentCreateQueueWithExplicitDoorbellDoesNotReRegisterIt(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	sig := signal.New(0)
	sh := rt.Signals.Allocate(sig)
	before := rt.Signals.Len()

	_, err := a.CreateQueue(4, queue.Single, 0, nil, &sh)
	require.NoError(t, err)
	require.Equal(t, before, rt.Signals.Len(), "a caller-supplied doorbell must not be allocated a second handle")
}

func TestAgentDestroyQueueRemovesFromRegistry(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	qh, err := a.CreateQueue(4, queue.Single, 0, nil, nil)
	require.NoError(t, err)

	require.NoError(t, a.DestroyQueue(qh))
	_, ok := rt.Queues.Resolve(qh)
	require.False(t, ok)

	require.Error(t, a.DestroyQueue(qh), "destroying an already-destroyed handle must fail")
}

func TestAgentAddRegionAndIterate(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	r1 := region.NewHeapRegion(region.Group, 0)
	r2 := region.NewHeapRegion(region.Global, 0)
	h1 := a.AddRegion(r1)
	h2 := a.AddRegion(r2)
	require.NotEqual(t, h1, h2)

	seen := make(map[aql.Handle]region.Region)
	a.Iterate(func(h aql.Handle, r region.Region) bool {
		seen[h] = r
		return true
	})
	require.Len(t, seen, 2)
	require.Same(t, r1, seen[h1])
	require.Same(t, r2, seen[h2])

	var visited int
	a.Iterate(func(aql.Handle, region.Region) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited, "returning false must stop iteration early")
}

// TestAgentEndToEndKernelDispatch exercises the full wiring a capi
// dispatch entry point relies on: a kernel handle allocated in the
// Runtime's shared registry, a queue created through the Agent, and a
// KERNEL_DISPATCH packet committed directly to its ring buffer.
func TestAgentEndToEndKernelDispatch(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	var counter int32
	sym := &executable.Symbol{
		Kind: executable.KindKernel,
		Name: "increment",
		Entry: func(_ *aql.KernelLaunchData, _ uintptr, _ uintptr) {
			atomic.AddInt32(&counter, 1)
		},
	}
	kh := rt.Kernels.Allocate(sym)

	completion := signal.New(1)
	ch := rt.Signals.Allocate(completion)

	qh, err := a.CreateQueue(4, queue.Single, queue.FeatureKernelDispatch, nil, nil)
	require.NoError(t, err)

	a.mu.RLock()
	q := a.queues[qh]
	a.mu.RUnlock()
	require.NotNil(t, q)

	p := q.Packet(0)
	p.SetType(aql.KernelDispatch)
	p.SetSetup(1)
	p.SetWorkgroupSizeX(1)
	p.SetWorkgroupSizeY(1)
	p.SetWorkgroupSizeZ(1)
	p.SetKernelObject(kh)
	p.SetCompletionSignal(ch)
	q.StoreWriteIndex(1, memorder.Release)
	q.Doorbell.Store(0, memorder.Release)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&counter) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return completion.Load(memorder.Acquire) == 0
	}, time.Second, time.Millisecond)
}

func TestAgentRegisterKernelsEmptyExecutable(t *testing.T) {
	rt := New()
	a := NewAgent(rt, testAgentISA, region.NewHeapRegion(region.Group, 0))
	defer a.ShutDown()

	e := executable.New()
	// RegisterKernels only ever consults e.Symbols(), so an empty,
	// frozen Executable exercises the "no kernel symbols" path without
	// needing a real code object fixture (covered separately by
	// executable package tests).
	require.NoError(t, e.Freeze())

	out := a.RegisterKernels(e)
	require.Empty(t, out)
}
