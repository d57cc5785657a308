package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedRegionAllocateSequential(t *testing.T) {
	r := NewFixedRegion(Kernarg, FlagKernarg|FlagFineGrained, 0x1000, 0x100)

	p1, err := r.Allocate(0x10, 0x10)
	require.NoError(t, err)
	require.EqualValues(t, 0x1000, p1)

	p2, err := r.Allocate(0x20, 0x10)
	require.NoError(t, err)
	require.EqualValues(t, 0x1010, p2)
}

// TestFixedRegionReuseFreedGap exercises the linear best-fit scan's gap
// reuse, not the allocate-past-the-highest-chunk fast path: the region
// is filled to capacity with three adjacent chunks (no room past the
// highest chunk for another allocation), the middle chunk is freed,
// and the next allocation must land in the gap the middle chunk left
// behind — matching the original's "doesn't avoid fragmentation; tries
// past the end first" semantics (FixedMemoryRegion.cc) rather than
// reusing whichever chunk happened to be freed.
func TestFixedRegionReuseFreedGap(t *testing.T) {
	r := NewFixedRegion(Kernarg, 0, 0x1000, 0x30)

	p1, err := r.Allocate(0x10, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0x1000, p1)

	p2, err := r.Allocate(0x10, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0x1010, p2)

	p3, err := r.Allocate(0x10, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0x1020, p3)

	// the region is now full: no room past p3 for another allocation.
	_, err = r.Allocate(0x1, 1)
	require.Error(t, err)

	require.True(t, r.Free(p2))

	p4, err := r.Allocate(0x8, 1)
	require.NoError(t, err)
	require.EqualValues(t, p2, p4, "allocation must reuse the gap freed by p2, not the fast path past p3")
}

func TestFixedRegionOutOfResources(t *testing.T) {
	r := NewFixedRegion(Kernarg, 0, 0x1000, 0x10)
	_, err := r.Allocate(0x20, 1)
	require.Error(t, err)
}

func TestFixedRegionZeroSize(t *testing.T) {
	r := NewFixedRegion(Kernarg, 0, 0x1000, 0x10)
	_, err := r.Allocate(0, 1)
	require.Error(t, err)
}

func TestFixedRegionFreeUnknown(t *testing.T) {
	r := NewFixedRegion(Kernarg, 0, 0x1000, 0x10)
	require.False(t, r.Free(0x9999))
}

func TestHeapRegionAllocateFree(t *testing.T) {
	r := NewHeapRegion(Group, 0)
	p, err := r.Allocate(64, 16)
	require.NoError(t, err)
	require.Zero(t, p%16)
	require.True(t, r.Free(p))
	require.False(t, r.Free(p))
}
