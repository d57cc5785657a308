// Command phsarun is a minimal demo of the dispatch pipeline: it builds
// a Runtime and a CPU agent, registers one host-native kernel, creates
// a queue, submits a single KERNEL_DISPATCH packet, and waits for its
// completion signal, exercising the same path scenario E1 of the
// dispatch engine's test suite covers end to end through the capi
// surface instead of package-internal types.
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/capi"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/memorder"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "phsarun:", err)
		os.Exit(1)
	}
}

func run() error {
	capi.HsaInit()
	defer capi.HsaShutDown()

	agent, s := capi.HsaAgentCreate("cpu")
	if s != capi.Success {
		return fmt.Errorf("create agent: %s", s)
	}
	defer capi.HsaAgentDestroy(agent)

	var dispatched int32
	kernel := &executable.Symbol{
		Kind: executable.KindKernel,
		Name: "hello",
		Entry: func(_ *aql.KernelLaunchData, _ uintptr, _ uintptr) {
			atomic.StoreInt32(&dispatched, 1)
			fmt.Println("hello from kernel dispatch")
		},
	}
	kh := runtime.Current().Kernels.Allocate(kernel)

	ch, s := capi.HsaSignalCreate(1)
	if s != capi.Success {
		return fmt.Errorf("create completion signal: %s", s)
	}

	qh, s := capi.HsaQueueCreate(agent, 4, queue.Single, queue.FeatureKernelDispatch, nil, nil)
	if s != capi.Success {
		return fmt.Errorf("create queue: %s", s)
	}

	obj, ok := runtime.Current().Queues.Resolve(qh)
	if !ok {
		return fmt.Errorf("resolve queue %v", qh)
	}
	q := obj.(*queue.Queue)

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

	v, s := capi.HsaSignalWait(
		context.Background(),
		ch,
		func(observed int64) bool { return observed == 0 },
		uint64(5*time.Second),
		memorder.Acquire,
	)
	if s != capi.Success {
		return fmt.Errorf("wait on completion signal: %s", s)
	}
	if v != 0 || atomic.LoadInt32(&dispatched) != 1 {
		return fmt.Errorf("kernel dispatch did not complete in time")
	}

	fmt.Println("dispatch complete")
	return nil
}
