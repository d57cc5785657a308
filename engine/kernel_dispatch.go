package engine

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/queue"
	"github.com/joeycumines/phsa/status"
)

// dispatchKernel validates and executes a KERNEL_DISPATCH packet
// (spec.md §4.5 "KERNEL_DISPATCH"). All failure paths surface through
// the queue's callback rather than a return value (spec.md §7).
func (w *Worker) dispatchKernel(q *queue.Queue, packet *aql.Packet, packetID uint64) {
	setup := packet.Setup()
	if setup < 1 || setup > 3 {
		q.ExecuteCallback(status.New(status.ErrInvalidPacketFormat, "engine: kernel dispatch setup dimensionality out of range"))
		return
	}

	wx, wy, wz := packet.WorkgroupSizeX(), packet.WorkgroupSizeY(), packet.WorkgroupSizeZ()
	// unused dims (beyond setup) must be 1 (spec.md §4.5 (a)); used dims
	// must be nonzero (spec.md §4.5 (b), §8 boundary behaviour).
	dims := [3]uint16{wx, wy, wz}
	for d := 0; d < 3; d++ {
		if d < int(setup) {
			if dims[d] == 0 {
				q.ExecuteCallback(status.New(status.ErrIncompatibleArguments, "engine: zero-dimensional workgroup"))
				return
			}
		} else if dims[d] != 1 {
			q.ExecuteCallback(status.New(status.ErrInvalidPacketFormat, "engine: unused workgroup dimension must be 1"))
			return
		}
	}

	sym, ok := w.resolveKernel(packet.KernelObject())
	if !ok || sym.Kind != executable.KindKernel {
		q.ExecuteCallback(status.New(status.ErrInvalidCodeObject, "engine: kernel_object handle does not resolve"))
		return
	}

	var groupPtr uintptr
	if sym.GroupSegmentSize > 0 {
		p, err := w.group.Allocate(uintptr(sym.GroupSegmentSize), 8)
		if err != nil {
			q.ExecuteCallback(status.New(status.ErrInvalidAllocation, "engine: group memory allocation failed"))
			return
		}
		groupPtr = p
		defer w.group.Free(groupPtr)
	}

	kernargPtr := packet.KernargAddress()
	alignedPtr, cleanup := w.alignKernarg(kernargPtr, sym.KernargSegmentSize, sym.KernargSegmentAlignment)
	if cleanup != nil {
		defer cleanup()
	}

	if w.hooks != nil && w.hooks.BeforeKernelInvoke != nil {
		w.hooks.BeforeKernelInvoke(q, packetID)
	}

	if sym.Entry == nil {
		q.ExecuteCallback(status.New(status.ErrInvalidCodeObject, "engine: kernel has no resolvable entry point"))
		return
	}

	launch := &aql.KernelLaunchData{
		Packet:             packet,
		PacketID:           packetID,
		InterruptRequested: w.interruptFlag(q),
	}
	sym.Entry(launch, groupPtr, alignedPtr)
}

// alignKernarg copies the kernarg buffer into a freshly aligned buffer
// when the caller-supplied pointer does not meet the kernel's stated
// alignment (spec.md §4.5, §8 boundary behaviour). cleanup is non-nil
// only when a copy was made, and must be deferred by the caller to
// release it after the kernel returns.
func (w *Worker) alignKernarg(ptr uintptr, size, align uint32) (aligned uintptr, cleanup func()) {
	if size == 0 || align <= 1 || ptr%uintptr(align) == 0 {
		return ptr, nil
	}
	buf := make([]byte, uintptr(size)+uintptr(align))
	dst := (uintptr(unsafe.Pointer(&buf[0])) + uintptr(align) - 1) &^ (uintptr(align) - 1)
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(dst)), size), src)
	return dst, func() { _ = buf } // buf stays alive via the closure until the kernel returns
}

func (w *Worker) resolveKernel(h aql.Handle) (*executable.Symbol, bool) {
	obj, ok := w.kernels.Resolve(h)
	if !ok {
		return nil, false
	}
	sym, ok := obj.(*executable.Symbol)
	return sym, ok
}

// interruptFlag returns (creating if necessary) the cooperative
// "interrupt requested" flag a running kernel on q should poll (spec.md
// §9's cooperative-preemption design note). TerminateQueue sets this
// flag; it is reset to false here each time a kernel is launched on q.
func (w *Worker) interruptFlag(q *queue.Queue) *atomic.Bool {
	v, _ := w.interrupt.LoadOrStore(q, new(atomic.Bool))
	flag := v.(*atomic.Bool)
	flag.Store(false)
	return flag
}
