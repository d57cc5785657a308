package aql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketHeaderType(t *testing.T) {
	var p Packet
	p.SetType(KernelDispatch)
	require.Equal(t, KernelDispatch, p.Type())
	require.Equal(t, "KERNEL_DISPATCH", p.Type().String())
}

func TestPacketKernelDispatchFields(t *testing.T) {
	var p Packet
	p.SetSetup(2)
	p.SetWorkgroupSizeX(4)
	p.SetWorkgroupSizeY(4)
	p.SetWorkgroupSizeZ(1)
	p.SetGridSizeX(16)
	p.SetGroupSegmentSize(256)
	p.SetKernelObject(Handle(0x1234))
	p.SetKernargAddress(0xABCD)
	p.SetCompletionSignal(Handle(0x5678))

	require.EqualValues(t, 2, p.Setup())
	require.EqualValues(t, 4, p.WorkgroupSizeX())
	require.EqualValues(t, 4, p.WorkgroupSizeY())
	require.EqualValues(t, 1, p.WorkgroupSizeZ())
	require.EqualValues(t, 16, p.GridSizeX())
	require.EqualValues(t, 256, p.GroupSegmentSize())
	require.Equal(t, Handle(0x1234), p.KernelObject())
	require.EqualValues(t, 0xABCD, p.KernargAddress())
	require.Equal(t, Handle(0x5678), p.CompletionSignal())
}

func TestPacketDependencySignals(t *testing.T) {
	var p Packet
	p.SetType(BarrierAnd)
	for i := 0; i < DependencySignalCount; i++ {
		p.SetDependencySignal(i, Handle(i+1))
	}
	for i := 0; i < DependencySignalCount; i++ {
		require.Equal(t, Handle(i+1), p.DependencySignal(i))
	}
	// dependency signals must not clobber the completion signal slot.
	p.SetCompletionSignal(Handle(0x99))
	require.Equal(t, Handle(0x99), p.CompletionSignal())
}
