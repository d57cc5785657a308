// Package aql defines the 64-byte Architected Queuing Language packet
// wire layout (spec.md §3, §6) and the handle type used throughout the
// runtime. Field accessors are modeled as typed views over a [64]byte
// slot, the same way eventloop's Task/timer structs give a typed view
// over a generic slot value.
package aql

import "encoding/binary"

// Handle is a 64-bit opaque identifier exchanged with clients (spec.md
// §3 "Handle").
type Handle uint64

// PacketType identifies the high byte of a packet's header.
type PacketType uint8

const (
	Invalid        PacketType = 0
	KernelDispatch PacketType = 1
	AgentDispatch  PacketType = 2
	BarrierAnd     PacketType = 3
	BarrierOr      PacketType = 4
)

// String implements fmt.Stringer.
func (t PacketType) String() string {
	switch t {
	case Invalid:
		return "INVALID"
	case KernelDispatch:
		return "KERNEL_DISPATCH"
	case AgentDispatch:
		return "AGENT_DISPATCH"
	case BarrierAnd:
		return "BARRIER_AND"
	case BarrierOr:
		return "BARRIER_OR"
	default:
		return "UNKNOWN"
	}
}

// PacketSize is the fixed size, in bytes, of every AQL packet variant.
const PacketSize = 64

// Packet is the shared 64-byte layout used by all packet variants.
// Field offsets below follow the HSA AQL wire format referenced by
// spec.md §6.
//
//	offset  size  field
//	0       2     header (low 8 bits: barrier/acquire-release scope bits; high 8 bits: PacketType)
//	2       1     setup (dimensionality, 1-3, kernel-dispatch only)
//	3       1     reserved0
//	4       2     workgroup_size_x
//	6       2     workgroup_size_y
//	8       2     workgroup_size_z
//	10      2     reserved1
//	12      4     grid_size_x
//	16      4     grid_size_y
//	20      4     grid_size_z
//	24      4     private_segment_size
//	28      4     group_segment_size
//	32      8     kernel_object (Handle)
//	40      8     kernarg_address (host pointer, stored as uintptr)
//	48      8     reserved2
//	56      8     completion_signal (Handle)
//
// Barrier packets reuse bytes [8:48] for five dependency-signal handles
// and keep completion_signal at [56:64].
type Packet [PacketSize]byte

var order = binary.LittleEndian

// Header returns the packet's 16-bit header word.
func (p *Packet) Header() uint16 { return order.Uint16(p[0:2]) }

// SetHeader sets the packet's 16-bit header word.
func (p *Packet) SetHeader(v uint16) { order.PutUint16(p[0:2], v) }

// Type returns the packet type encoded in the header's high byte.
func (p *Packet) Type() PacketType { return PacketType(p.Header() >> 8) }

// SetType rewrites the header's high byte, preserving the low byte.
func (p *Packet) SetType(t PacketType) {
	h := p.Header()
	p.SetHeader((h & 0x00FF) | (uint16(t) << 8))
}

// Setup returns the kernel-dispatch dimensionality field (1-3).
func (p *Packet) Setup() uint8 { return p[2] }

// SetSetup sets the kernel-dispatch dimensionality field.
func (p *Packet) SetSetup(v uint8) { p[2] = v }

func (p *Packet) WorkgroupSizeX() uint16 { return order.Uint16(p[4:6]) }
func (p *Packet) WorkgroupSizeY() uint16 { return order.Uint16(p[6:8]) }
func (p *Packet) WorkgroupSizeZ() uint16 { return order.Uint16(p[8:10]) }

func (p *Packet) SetWorkgroupSizeX(v uint16) { order.PutUint16(p[4:6], v) }
func (p *Packet) SetWorkgroupSizeY(v uint16) { order.PutUint16(p[6:8], v) }
func (p *Packet) SetWorkgroupSizeZ(v uint16) { order.PutUint16(p[8:10], v) }

func (p *Packet) GridSizeX() uint32 { return order.Uint32(p[12:16]) }
func (p *Packet) GridSizeY() uint32 { return order.Uint32(p[16:20]) }
func (p *Packet) GridSizeZ() uint32 { return order.Uint32(p[20:24]) }

func (p *Packet) SetGridSizeX(v uint32) { order.PutUint32(p[12:16], v) }
func (p *Packet) SetGridSizeY(v uint32) { order.PutUint32(p[16:20], v) }
func (p *Packet) SetGridSizeZ(v uint32) { order.PutUint32(p[20:24], v) }

func (p *Packet) PrivateSegmentSize() uint32     { return order.Uint32(p[24:28]) }
func (p *Packet) SetPrivateSegmentSize(v uint32) { order.PutUint32(p[24:28], v) }

func (p *Packet) GroupSegmentSize() uint32     { return order.Uint32(p[28:32]) }
func (p *Packet) SetGroupSegmentSize(v uint32) { order.PutUint32(p[28:32], v) }

func (p *Packet) KernelObject() Handle     { return Handle(order.Uint64(p[32:40])) }
func (p *Packet) SetKernelObject(h Handle) { order.PutUint64(p[32:40], uint64(h)) }

// KernargAddress returns the raw kernarg pointer value, stored as a
// 64-bit host address regardless of host pointer width.
func (p *Packet) KernargAddress() uintptr     { return uintptr(order.Uint64(p[40:48])) }
func (p *Packet) SetKernargAddress(v uintptr) { order.PutUint64(p[40:48], uint64(v)) }

func (p *Packet) CompletionSignal() Handle     { return Handle(order.Uint64(p[56:64])) }
func (p *Packet) SetCompletionSignal(h Handle) { order.PutUint64(p[56:64], uint64(h)) }

// DependencySignalCount is the number of dependency-signal handle slots
// a barrier packet carries (spec.md §3 "Barrier packets: five
// dependency signal handles").
const DependencySignalCount = 5

// DependencySignal returns the i'th dependency-signal handle (i in
// [0,DependencySignalCount)) of a barrier packet.
func (p *Packet) DependencySignal(i int) Handle {
	off := 8 + i*8
	return Handle(order.Uint64(p[off : off+8]))
}

// SetDependencySignal sets the i'th dependency-signal handle.
func (p *Packet) SetDependencySignal(i int, h Handle) {
	off := 8 + i*8
	order.PutUint64(p[off:off+8], uint64(h))
}
