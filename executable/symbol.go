package executable

import (
	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/loader"
	"github.com/joeycumines/phsa/region"
)

// SymbolKind tags a Symbol's variant (spec.md §3 "Symbol. Variants
// (tagged)").
type SymbolKind int

const (
	KindVariable SymbolKind = iota
	KindKernel
	KindIndirectFunctionCall
)

// Linkage mirrors HSA's module linkage (module-scope vs program-scope).
type Linkage int

const (
	LinkageModule Linkage = iota
	LinkageProgram
)

// Symbol is a loaded, tagged symbol record (spec.md §3). All variants
// share Name/ModuleName/Linkage/IsDefinition; the Kind-specific fields
// are only meaningful for the matching Kind.
type Symbol struct {
	Kind         SymbolKind
	Name         string
	ModuleName   string
	Linkage      Linkage
	IsDefinition bool

	// Kernel fields.
	Address                 uintptr
	KernargSegmentSize      uint32
	KernargSegmentAlignment uint32
	GroupSegmentSize        uint32
	PrivateSegmentSize      uint32
	DynamicCallStack        bool
	Entry                   aql.KernelFunc
	Program                 *FinalizedProgram

	// Variable fields.
	VarAddress   uintptr
	VarAllocation region.Kind
	VarSegment    region.Kind
	VarAlignment  uint64
	VarSize       uint64
	VarIsConst    bool

	// IndirectFunctionCall fields.
	FunctionObject         uintptr
	FunctionCallConvention uint32
}

// fromLoaderSymbol converts a classified loader.Symbol into an
// executable.Symbol, attaching prog as the owning FinalizedProgram for
// kernels (spec.md §3: Kernel "back-ref to the finalized program").
func fromLoaderSymbol(s loader.Symbol, prog *FinalizedProgram) Symbol {
	switch s.Kind {
	case loader.KindKernel:
		out := Symbol{
			Kind:         KindKernel,
			Name:         s.Name,
			ModuleName:   s.ModuleName,
			IsDefinition: s.IsDefinition,
			Address:      s.Address,
			Entry:        s.Entry,
			Program:      prog,
		}
		if s.Descriptor != nil {
			out.KernargSegmentSize = s.Descriptor.KernargSegmentSize
			out.KernargSegmentAlignment = s.Descriptor.KernargMaxAlign
			out.GroupSegmentSize = s.Descriptor.GroupSegmentSize
			out.PrivateSegmentSize = s.Descriptor.PrivateSegmentSize
			out.DynamicCallStack = s.Descriptor.DynamicCallStack
		}
		return out
	default:
		return Symbol{
			Kind:         KindVariable,
			Name:         s.Name,
			ModuleName:   s.ModuleName,
			IsDefinition: s.IsDefinition,
			VarAddress:   s.Address,
			VarSize:      s.Size,
			VarAlignment: s.Alignment,
		}
	}
}
