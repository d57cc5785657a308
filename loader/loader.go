// Package loader parses an ELF64 code object produced by a BRIG→native
// compiler (spec.md §4.3, §6), classifies its symbols into kernels and
// variables, and resolves host-defined global cells. Grounded on
// original_source/src/Finalizer/GCC/ELFExecutable.cc (symbol
// classification, skip list) and
// original_source/src/FinalizedProgram.cc (descriptor-section scan,
// control-directive merge, findSymbol name mangling).
//
// Uses debug/elf from the standard library: no repository in the
// retrieval pack imports a third-party ELF parser as a library
// dependency (see DESIGN.md), so this is the idiomatic and only real
// choice for the wire format spec.md §6 specifies.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/internal/elog"
)

// SymbolKind tags a classified loader.Symbol.
type SymbolKind int

const (
	KindVariable SymbolKind = iota
	KindKernel
	KindIndirectFunction
)

// Symbol is a classified ELF symbol, ready for the executable package
// to turn into an executable.Symbol (spec.md §3 "Symbol").
type Symbol struct {
	Kind         SymbolKind
	Name         string
	ModuleName   string
	Address      uintptr
	IsDefinition bool

	// Kernel fields, populated when Kind == KindKernel.
	Descriptor *FunctionDescriptor
	Entry      aql.KernelFunc

	// Variable fields, populated when Kind == KindVariable.
	Size      uint64
	Alignment uint64
}

// compilerInternalSymbols lists names the loader must never surface as
// Variables/Kernels (spec.md §4.3), taken verbatim from
// ELFExecutable.cc's skip list.
var compilerInternalSymbols = map[string]bool{
	"frame_dummy":                          true,
	"__do_global_dtors_aux_fini_array_entry": true,
	"__frame_dummy_init_array_entry":        true,
	"__FRAME_END__":                         true,
	"__dso_handle":                          true,
	"_DYNAMIC":                              true,
	"__TMC_END__":                           true,
	"_GLOBAL_OFFSET_TABLE_":                 true,
	"register_tm_clones":                   true,
	"deregister_tm_clones":                  true,
}

const (
	gccbrigPrefix    = "gccbrig."
	phsaKernelPrefix = "phsa_kernel."
	// minKernargAlignment is the floor applied when a kernel's
	// descriptor does not request more (spec.md §4.3: "max(16,
	// descriptor.max_align)").
	minKernargAlignment  = 16
	fixedKernelKernargSz = 2048
)

func skipSymbol(name string) bool {
	if name == "" || compilerInternalSymbols[name] {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.Contains(name, ".") &&
		!strings.HasPrefix(name, gccbrigPrefix) &&
		!strings.HasPrefix(name, phsaKernelPrefix) {
		return true
	}
	return false
}

// Image is a parsed, classified code object: its symbol table plus any
// host-definable global cells found in it.
type Image struct {
	Symbols []Symbol

	// hostDefCells stands in for the writable pointer cells a real
	// dlopen'd image would expose at "__phsa.host_def.<name>" — see
	// DESIGN.md's note on plugin.Open's limits for this CPU-only
	// target. Each cell is backed by Go memory allocated at Load time,
	// not by the original ELF's actual data section.
	hostDefCells map[string]*uintptr
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Load parses elfBytes and classifies its symbol table.
func Load(elfBytes []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		return nil, fmt.Errorf("loader: parse elf: %w", err)
	}
	defer f.Close()

	descriptors := make(map[string]*FunctionDescriptor)
	for _, sec := range f.Sections {
		name, ok := strings.CutPrefix(sec.Name, DescSectionPrefix)
		if !ok {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("loader: read section %q: %w", sec.Name, err)
		}
		d, err := parseDescriptor(data)
		if err != nil {
			return nil, fmt.Errorf("loader: section %q: %w", sec.Name, err)
		}
		descriptors[name] = d
	}

	elfSymbols, err := f.Symbols()
	if err != nil && len(descriptors) == 0 {
		// a code object with no symbol table and no descriptors is
		// not useful, but an empty SHT_SYMTAB is not itself an error
		// for debug/elf on some inputs; surface the error only when
		// there's nothing else to go on.
		return nil, fmt.Errorf("loader: read symbol table: %w", err)
	}

	img := &Image{hostDefCells: make(map[string]*uintptr)}
	skipped := 0

	for _, es := range elfSymbols {
		name := es.Name
		if hostName, ok := strings.CutPrefix(name, HostDefPrefix); ok {
			var cell uintptr
			img.hostDefCells[hostName] = &cell
			continue
		}

		if skipSymbol(name) {
			skipped++
			continue
		}

		moduleName, simpleName := splitModuleName(name)

		if d, ok := descriptors[name]; ok && d.IsKernel {
			img.Symbols = append(img.Symbols, Symbol{
				Kind:         KindKernel,
				Name:         simpleName,
				ModuleName:   moduleName,
				Address:      uintptr(es.Value),
				IsDefinition: es.Section != elf.SHN_UNDEF,
				Descriptor:   mergeKernargAlignment(d),
				Entry:        lookupHostKernel(name),
			})
			continue
		}

		if strings.HasPrefix(name, phsaKernelPrefix) {
			img.Symbols = append(img.Symbols, Symbol{
				Kind:         KindKernel,
				Name:         simpleName,
				ModuleName:   moduleName,
				Address:      uintptr(es.Value),
				IsDefinition: es.Section != elf.SHN_UNDEF,
				Descriptor: &FunctionDescriptor{
					IsKernel:           true,
					KernargSegmentSize: fixedKernelKernargSz,
					KernargMaxAlign:    1,
				},
				Entry: lookupHostKernel(name),
			})
			continue
		}

		if elf.ST_TYPE(es.Info) == elf.STT_OBJECT {
			img.Symbols = append(img.Symbols, Symbol{
				Kind:         KindVariable,
				Name:         simpleName,
				ModuleName:   moduleName,
				Address:      uintptr(es.Value),
				IsDefinition: es.Section != elf.SHN_UNDEF,
				Size:         es.Size,
				Alignment:    8,
			})
		}
	}

	elog.Debug("code object loaded", "symbols", len(img.Symbols), "skipped", skipped, "host_def_cells", len(img.hostDefCells))
	return img, nil
}

func mergeKernargAlignment(d *FunctionDescriptor) *FunctionDescriptor {
	out := *d
	out.KernargMaxAlign = max32(minKernargAlignment, d.KernargMaxAlign)
	return &out
}

// splitModuleName mirrors FinalizedProgram.cc's findSymbol name
// mangling in reverse: a "gccbrig.<module>.<name>" symbol's logical
// module is "<module>" and its logical name is "<name>"; anything else
// has no module prefix.
func splitModuleName(name string) (module, simple string) {
	if rest, ok := strings.CutPrefix(name, gccbrigPrefix); ok {
		if i := strings.IndexByte(rest, '.'); i >= 0 {
			return rest[:i], rest[i+1:]
		}
	}
	return "", name
}

// DefineGlobal patches addr into the host-definable cell named
// "__phsa.host_def."+name, if one exists in this image. A missing cell
// is tolerated silently (spec.md §4.3: "link-time DCE may have removed
// them"), matching DLFinalizedProgram.cc's dlsym-failure handling.
func (img *Image) DefineGlobal(name string, addr uintptr) {
	if cell, ok := img.hostDefCells[name]; ok {
		*cell = addr
	}
}

// ReadGlobal reads back a host-definable cell, for tests and E6-style
// verification that DefineGlobal took effect.
func (img *Image) ReadGlobal(name string) (uintptr, bool) {
	cell, ok := img.hostDefCells[name]
	if !ok {
		return 0, false
	}
	return *cell, true
}
