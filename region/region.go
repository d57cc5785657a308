// Package region implements spec.md §3/§4 "Memory region": a
// bump/best-fit allocator over a fixed address range, and a general
// host-heap-backed variant. Grounded on
// original_source/src/FixedMemoryRegion.cc's "try past the highest
// existing chunk, else linear best-fit scan" strategy, with the sorted
// chunk-boundary walk styled after catrate.ringBuffer.Search's
// sort.Search usage over an ordered slice of keys.
//
// Per spec.md §9's design note, the fixed allocator's linear scan is
// O(N) per allocation and acceptable only for small N (hundreds); it
// is not replaced with a free-list/buddy scheme here, matching the
// design note's explicit deferral of that concern.
package region

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/joeycumines/phsa/status"
	"golang.org/x/exp/constraints"
)

// sortedSlice maintains a strictly ascending slice of ordered keys,
// styled after catrate.ringBuffer's generic storage over
// constraints.Ordered. FixedRegion uses it to keep its chunk-start
// table sorted for sort.Search-based gap scanning.
type sortedSlice[E constraints.Ordered] []E

func (s *sortedSlice[E]) insert(v E) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	var zero E
	*s = append(*s, zero)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

func (s *sortedSlice[E]) remove(v E) bool {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	if i < len(*s) && (*s)[i] == v {
		*s = append((*s)[:i], (*s)[i+1:]...)
		return true
	}
	return false
}

// Kind identifies a memory region's HSA segment kind (spec.md §3).
type Kind int

const (
	Global Kind = iota
	Group
	Kernarg
	ReadOnly
)

// GlobalFlag mirrors the HSA hsa_region_global_flag_t bitmask, carried
// on GLOBAL/KERNARG regions.
type GlobalFlag uint32

const (
	FlagKernarg      GlobalFlag = 1 << 0
	FlagFineGrained  GlobalFlag = 1 << 1
	FlagCoarseGrained GlobalFlag = 1 << 2
)

// Region is the common allocator contract every region kind satisfies.
type Region interface {
	Allocate(size, align uintptr) (uintptr, error)
	Free(ptr uintptr) bool
	Kind() Kind
	Size() uintptr
	GlobalFlags() GlobalFlag
}

// FixedRegion allocates from a fixed address range; chunks tracks each
// allocation's size, keyed by its start address.
type FixedRegion struct {
	mu     sync.Mutex
	kind   Kind
	flags  GlobalFlag
	base   uintptr
	size   uintptr
	starts sortedSlice[uintptr]
	chunks map[uintptr]uintptr
}

// NewFixedRegion creates a best-fit allocator over [base, base+size).
func NewFixedRegion(kind Kind, flags GlobalFlag, base, size uintptr) *FixedRegion {
	return &FixedRegion{
		kind:   kind,
		flags:  flags,
		base:   base,
		size:   size,
		chunks: make(map[uintptr]uintptr),
	}
}

func (r *FixedRegion) Kind() Kind              { return r.kind }
func (r *FixedRegion) Size() uintptr           { return r.size }
func (r *FixedRegion) GlobalFlags() GlobalFlag { return r.flags }

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Allocate finds a best-fit gap for size bytes aligned to align,
// preferring the fast path of allocating past the highest existing
// chunk (original_source's "try past the highest existing chunk
// first"), falling back to a linear scan of gaps between consecutive
// chunks.
func (r *FixedRegion) Allocate(size, align uintptr) (uintptr, error) {
	if size == 0 {
		return 0, status.New(status.ErrInvalidAllocation, "region: zero-size allocation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.base + r.size

	// fast path: past the highest existing chunk.
	if n := len(r.starts); n > 0 {
		last := r.starts[n-1]
		candidate := alignUp(last+r.chunks[last], align)
		if candidate+size <= end {
			r.insertLocked(candidate, size)
			return candidate, nil
		}
	} else {
		candidate := alignUp(r.base, align)
		if candidate+size <= end {
			r.insertLocked(candidate, size)
			return candidate, nil
		}
	}

	// linear best-fit scan through gaps between consecutive chunks: the
	// smallest gap that fits wins.
	var best, bestGap uintptr
	found := false
	prev := r.base
	for _, s := range r.starts {
		candidate := alignUp(prev, align)
		if candidate+size <= s && (!found || s-candidate < bestGap) {
			best, bestGap, found = candidate, s-candidate, true
		}
		prev = s + r.chunks[s]
	}
	candidate := alignUp(prev, align)
	if candidate+size <= end && (!found || end-candidate < bestGap) {
		best, found = candidate, true
	}
	if found {
		r.insertLocked(best, size)
		return best, nil
	}

	return 0, status.New(status.ErrOutOfResources, "region: no fit for allocation")
}

func (r *FixedRegion) insertLocked(start, size uintptr) {
	r.chunks[start] = size
	r.starts.insert(start)
}

// Free releases the chunk starting at ptr, returning false if no such
// chunk is tracked.
func (r *FixedRegion) Free(ptr uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[ptr]; !ok {
		return false
	}
	delete(r.chunks, ptr)
	r.starts.remove(ptr)
	return true
}

// HeapRegion is a general host-heap-backed region: each Allocate call
// maps directly onto a Go-managed byte slice, tracked only so Free can
// validate its argument. Used for regions spec.md describes as
// "host-heap" rather than fixed-address (e.g. a group-memory scratch
// region sized per dispatch).
type HeapRegion struct {
	mu    sync.Mutex
	kind  Kind
	flags GlobalFlag
	live  map[uintptr][]byte
}

// NewHeapRegion creates a host-heap-backed region.
func NewHeapRegion(kind Kind, flags GlobalFlag) *HeapRegion {
	return &HeapRegion{kind: kind, flags: flags, live: make(map[uintptr][]byte)}
}

func (r *HeapRegion) Kind() Kind              { return r.kind }
func (r *HeapRegion) Size() uintptr           { return 0 } // unbounded, host-heap-backed
func (r *HeapRegion) GlobalFlags() GlobalFlag { return r.flags }

func (r *HeapRegion) Allocate(size, align uintptr) (uintptr, error) {
	if size == 0 {
		return 0, status.New(status.ErrInvalidAllocation, "region: zero-size allocation")
	}
	buf := make([]byte, size+align)
	// Go's current allocator does not move heap objects post-allocation,
	// so treating this address as stable for the region's lifetime
	// (until Free) mirrors the host-pointer contract spec.md assumes;
	// the slice itself is kept alive via r.live so it cannot be
	// reclaimed while its address is in use as a handle.
	ptr := alignUp(uintptr(unsafe.Pointer(&buf[0])), align)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[ptr] = buf
	return ptr, nil
}

func (r *HeapRegion) Free(ptr uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[ptr]; !ok {
		return false
	}
	delete(r.live, ptr)
	return true
}
