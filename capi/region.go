package capi

import (
	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/region"
	"github.com/joeycumines/phsa/status"
)

// HsaRegionCreateFixed registers a best-fit fixed-range region with an
// agent (spec.md §3 "Memory region"), returning its handle.
func HsaRegionCreateFixed(agent aql.Handle, kind region.Kind, flags region.GlobalFlag, base, size uintptr) (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return 0, s
	}
	r := region.NewFixedRegion(kind, flags, base, size)
	return a.AddRegion(r), Success
}

// HsaRegionCreateHeap registers a host-heap-backed region with an
// agent, returning its handle.
func HsaRegionCreateHeap(agent aql.Handle, kind region.Kind, flags region.GlobalFlag) (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return 0, s
	}
	r := region.NewHeapRegion(kind, flags)
	return a.AddRegion(r), Success
}

func resolveRegion(rt interface {
	Resolve(h aql.Handle) (any, bool)
}, h aql.Handle) (region.Region, bool) {
	obj, ok := rt.Resolve(h)
	if !ok {
		return nil, false
	}
	r, ok := obj.(region.Region)
	return r, ok
}

// HsaMemoryAllocate forwards to the region's Allocate.
func HsaMemoryAllocate(region_ aql.Handle, size, align uintptr) (uintptr, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	r, ok := resolveRegion(rt.Regions, region_)
	if !ok {
		return 0, status.ErrInvalidRegion
	}
	ptr, err := r.Allocate(size, align)
	return ptr, statusOf(err)
}

// HsaMemoryFree forwards to the region's Free.
func HsaMemoryFree(region_ aql.Handle, ptr uintptr) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	r, ok := resolveRegion(rt.Regions, region_)
	if !ok {
		return status.ErrInvalidRegion
	}
	if !r.Free(ptr) {
		return status.ErrInvalidAllocation
	}
	return Success
}
