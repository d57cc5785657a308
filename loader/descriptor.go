package loader

import (
	"encoding/binary"
	"fmt"
)

// FunctionDescriptor is the packed per-kernel metadata extracted from a
// "phsa.desc.<symbol>" ELF section (spec.md §4.3), grounded on
// original_source/src/FinalizedProgram.cc's descriptor parsing and
// original_source/src/Finalizer/GCC/ELFExecutable.cc's kernel
// classification.
type FunctionDescriptor struct {
	IsKernel              bool
	KernargSegmentSize    uint32
	KernargMaxAlign       uint32
	GroupSegmentSize      uint32
	PrivateSegmentSize    uint32
	DynamicCallStack      bool
	MaxDynamicGroupSize   uint32
	MaxFlatGridSize       uint32
	MaxFlatWorkgroupSize  uint32
	RequiredGridSize      [3]uint32
	RequiredWorkgroupSize [3]uint32
	RequiredDim           uint32
}

// descriptorSize is the fixed wire size of a packed FunctionDescriptor.
const descriptorSize = 64

// DescSectionPrefix is the ELF section name prefix carrying a
// function's packed descriptor (spec.md §4.3: `"phsa.desc."`).
const DescSectionPrefix = "phsa.desc."

// HostDefPrefix is the symbol-name prefix for a host-patchable global
// cell in the loaded image (spec.md §4.3, §6:
// `"__phsa.host_def." + name`).
const HostDefPrefix = "__phsa.host_def."

func parseDescriptor(data []byte) (*FunctionDescriptor, error) {
	if len(data) < descriptorSize {
		return nil, fmt.Errorf("loader: descriptor section too short: got %d bytes, want %d", len(data), descriptorSize)
	}
	order := binary.LittleEndian
	d := &FunctionDescriptor{
		IsKernel:             order.Uint32(data[0:4]) != 0,
		KernargSegmentSize:   order.Uint32(data[4:8]),
		KernargMaxAlign:      order.Uint32(data[8:12]),
		GroupSegmentSize:     order.Uint32(data[12:16]),
		PrivateSegmentSize:   order.Uint32(data[16:20]),
		DynamicCallStack:     order.Uint32(data[20:24]) != 0,
		MaxDynamicGroupSize:  order.Uint32(data[24:28]),
		MaxFlatGridSize:      order.Uint32(data[28:32]),
		MaxFlatWorkgroupSize: order.Uint32(data[32:36]),
		RequiredDim:          order.Uint32(data[60:64]),
	}
	for i := 0; i < 3; i++ {
		d.RequiredGridSize[i] = order.Uint32(data[36+i*4 : 40+i*4])
		d.RequiredWorkgroupSize[i] = order.Uint32(data[48+i*4 : 52+i*4])
	}
	return d, nil
}
