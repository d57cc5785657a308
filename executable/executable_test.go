package executable

import (
	"encoding/binary"
	"testing"

	"github.com/joeycumines/phsa/loader"
	"github.com/stretchr/testify/require"
)

// buildKernelELF constructs a minimal ELF64 relocatable object carrying
// one kernel symbol (with a matching phsa.desc.* section) and,
// optionally, one host-definable global cell symbol. Mirrors
// loader_test.go's fixture builder; duplicated here rather than
// exported from loader, since only tests need to fabricate object code.
func buildKernelELF(t *testing.T, kernelName string, hostDefName string) []byte {
	t.Helper()
	const (
		ehsize  = 64
		shsize  = 64
		symsize = 24
	)

	var shstrtab, strtab []byte
	shstrtab = append(shstrtab, 0)
	strtab = append(strtab, 0)
	addStr := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, []byte(s)...)
		strtab = append(strtab, 0)
		return off
	}

	desc := make([]byte, 64)
	binary.LittleEndian.PutUint32(desc[0:4], 1) // is_kernel
	binary.LittleEndian.PutUint32(desc[4:8], 32) // kernarg_segment_size
	binary.LittleEndian.PutUint32(desc[8:12], 8) // kernarg_max_align

	type section struct {
		name    string
		typ     uint32
		data    []byte
		link    uint32
		entsize uint64
	}
	sections := []section{
		{name: "", typ: 0},
		{name: ".text", typ: 1, data: []byte{0x90, 0x90}},
		{name: ".data", typ: 1, data: make([]byte, 8)},
		{name: "phsa.desc." + kernelName, typ: 1, data: desc},
	}

	type symEntry struct {
		name  string
		value uint64
		size  uint64
		info  uint8
		shndx uint16
	}
	syms := []symEntry{
		{name: kernelName, value: 0x4000, info: 2, shndx: 1},
	}
	if hostDefName != "" {
		syms = append(syms, symEntry{name: "__phsa.host_def." + hostDefName, value: 0, size: 8, info: 1, shndx: 2})
	}

	symtabData := make([]byte, symsize)
	nameOffsets := make([]uint32, len(syms))
	for i, s := range syms {
		nameOffsets[i] = addStr(s.name)
	}
	for i, s := range syms {
		var rec [symsize]byte
		binary.LittleEndian.PutUint32(rec[0:4], nameOffsets[i])
		rec[4] = s.info
		binary.LittleEndian.PutUint16(rec[6:8], s.shndx)
		binary.LittleEndian.PutUint64(rec[8:16], s.value)
		binary.LittleEndian.PutUint64(rec[16:24], s.size)
		symtabData = append(symtabData, rec[:]...)
	}
	symtabIdx := len(sections)
	sections = append(sections, section{name: ".symtab", typ: 2, data: symtabData, entsize: symsize})
	strtabIdx := len(sections)
	sections = append(sections, section{name: ".strtab", typ: 3, data: strtab})
	sections[symtabIdx].link = uint32(strtabIdx)

	shstrtabIdx := len(sections)
	sections = append(sections, section{name: ".shstrtab", typ: 3})

	addShstr := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s)...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	nameOffInShstrtab := make([]uint32, len(sections))
	for i, s := range sections {
		if s.name == "" {
			continue
		}
		nameOffInShstrtab[i] = addShstr(s.name)
	}
	sections[shstrtabIdx].data = shstrtab

	offsets := make([]uint64, len(sections))
	cur := uint64(ehsize)
	for i, s := range sections {
		if s.typ == 0 {
			continue
		}
		offsets[i] = cur
		cur += uint64(len(s.data))
	}
	shoff := cur

	out := make([]byte, ehsize)
	for _, s := range sections {
		if s.typ == 0 {
			continue
		}
		out = append(out, s.data...)
	}
	for i, s := range sections {
		var rec [shsize]byte
		binary.LittleEndian.PutUint32(rec[0:4], nameOffInShstrtab[i])
		binary.LittleEndian.PutUint32(rec[4:8], s.typ)
		binary.LittleEndian.PutUint64(rec[16:24], offsets[i])
		binary.LittleEndian.PutUint64(rec[24:32], uint64(len(s.data)))
		binary.LittleEndian.PutUint32(rec[40:44], s.link)
		binary.LittleEndian.PutUint64(rec[56:64], s.entsize)
		out = append(out, rec[:]...)
	}

	var hdr [ehsize]byte
	copy(hdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 2
	hdr[5] = 1
	hdr[6] = 1
	binary.LittleEndian.PutUint16(hdr[16:18], 1)
	binary.LittleEndian.PutUint16(hdr[18:20], 62)
	binary.LittleEndian.PutUint32(hdr[20:24], 1)
	binary.LittleEndian.PutUint64(hdr[40:48], shoff)
	binary.LittleEndian.PutUint16(hdr[52:54], ehsize)
	binary.LittleEndian.PutUint16(hdr[58:60], shsize)
	binary.LittleEndian.PutUint16(hdr[60:62], uint16(len(sections)))
	binary.LittleEndian.PutUint16(hdr[62:64], uint16(shstrtabIdx))
	copy(out[0:ehsize], hdr[:])

	return out
}

func testISA() ISA { return ISA{Name: "cpu-test", Major: 1} }

func TestLoadCodeObjectRegistersSymbols(t *testing.T) {
	e := New()
	prog := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel", ""), ISA: testISA()}

	require.NoError(t, e.LoadCodeObject(testISA(), prog, ControlDirectives{}))

	sym, ok := e.GetSymbol("mykernel")
	require.True(t, ok)
	require.Equal(t, KindKernel, sym.Kind)
	require.EqualValues(t, 32, sym.KernargSegmentSize)
	require.EqualValues(t, 16, sym.KernargSegmentAlignment) // max(16, 8)
}

func TestLoadCodeObjectRejectsIncompatibleISA(t *testing.T) {
	e := New()
	prog := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel", ""), ISA: ISA{Name: "other-isa"}}
	err := e.LoadCodeObject(testISA(), prog, ControlDirectives{})
	require.Error(t, err)
}

func TestLoadCodeObjectFirstSymbolWins(t *testing.T) {
	e := New()
	prog1 := &FinalizedProgram{ELF: buildKernelELF(t, "dup", ""), ISA: testISA()}
	prog2 := &FinalizedProgram{ELF: buildKernelELF(t, "dup", ""), ISA: testISA()}

	require.NoError(t, e.LoadCodeObject(testISA(), prog1, ControlDirectives{}))
	require.NoError(t, e.LoadCodeObject(testISA(), prog2, ControlDirectives{}))

	sym, ok := e.GetSymbol("dup")
	require.True(t, ok)
	require.Same(t, prog1, sym.Program)
}

func TestFreezeIsOneWay(t *testing.T) {
	e := New()
	require.NoError(t, e.Freeze())
	require.Error(t, e.Freeze())
	require.True(t, e.IsFrozen())
}

func TestFreezeRejectsFurtherLoads(t *testing.T) {
	e := New()
	require.NoError(t, e.Freeze())
	prog := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel", ""), ISA: testISA()}
	err := e.LoadCodeObject(testISA(), prog, ControlDirectives{})
	require.Error(t, err)
}

func TestDefineGlobalSymbolAddressPatchesHostDefCell(t *testing.T) {
	e := New()
	require.NoError(t, e.DefineGlobalSymbolAddress("X", 0xCAFEBABE))

	prog := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel", "X"), ISA: testISA()}
	require.NoError(t, e.LoadCodeObject(testISA(), prog, ControlDirectives{}))

	v, ok := prog.Image().ReadGlobal("X")
	require.True(t, ok)
	require.EqualValues(t, 0xCAFEBABE, v)
}

func TestControlDirectiveMismatchReturnsError(t *testing.T) {
	e := New()
	prog := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel", ""), ISA: testISA()}
	require.NoError(t, e.LoadCodeObject(testISA(), prog, ControlDirectives{MaxFlatGridSize: 4}))

	prog2 := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel2", ""), ISA: testISA()}
	// a directive merged into a descriptor whose bound is still zero is
	// accepted and becomes the descriptor's bound.
	e2 := New()
	require.NoError(t, e2.LoadCodeObject(testISA(), prog2, ControlDirectives{MaxFlatGridSize: 100}))
	// once a descriptor carries a nonzero bound (5 here), a directive
	// larger than that bound conflicts with it, per mergeBound.
	prog3 := &FinalizedProgram{ELF: buildKernelELF(t, "mykernel3", ""), ISA: testISA()}
	require.NoError(t, prog3.load())
	require.NoError(t, prog3.checkAndMergeDirectives(ControlDirectives{MaxFlatGridSize: 5}))
	err := prog3.checkAndMergeDirectives(ControlDirectives{MaxFlatGridSize: 10})
	require.Error(t, err)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	prog := &FinalizedProgram{
		ELF:          buildKernelELF(t, "mykernel", ""),
		ISA:          ISA{Name: "cpu-test", Major: 1, Minor: 2, Stepping: 3},
		Rounding:     RoundingNear,
		Profile:      ProfileFull,
		MachineModel: MachineLarge,
	}
	data := prog.Serialize()
	out, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, prog.ELF, out.ELF)
	require.Equal(t, prog.ISA, out.ISA)
	require.Equal(t, prog.Rounding, out.Rounding)
	require.Equal(t, prog.Profile, out.Profile)
	require.Equal(t, prog.MachineModel, out.MachineModel)
}

var _ = loader.KindKernel // keep loader import honest if fixture helper changes
