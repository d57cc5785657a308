package executable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/joeycumines/phsa/loader"
	"github.com/joeycumines/phsa/status"
)

// FinalizedProgram wraps a compiled-and-linked ELF blob plus its
// metadata (spec.md §3 "Finalized program"), and owns the loader.Image
// produced by parsing it. Grounded on
// original_source/src/Finalizer/GCC/DLFinalizedProgram.cc for the
// serialize/deserialize byte layout.
type FinalizedProgram struct {
	ELF          []byte
	ISA          ISA
	Rounding     RoundingMode
	Profile      Profile
	MachineModel MachineModel

	image       *loader.Image
	descriptors map[string]*loader.FunctionDescriptor
}

// load parses p.ELF, populating the owned loader.Image. Called from
// Executable.LoadCodeObject.
func (p *FinalizedProgram) load() error {
	img, err := loader.Load(p.ELF)
	if err != nil {
		return status.Wrap(status.ErrInvalidCodeObject, "finalized program: load code object", err)
	}
	p.image = img
	p.descriptors = make(map[string]*loader.FunctionDescriptor)
	for _, s := range img.Symbols {
		if s.Kind == loader.KindKernel && s.Descriptor != nil {
			p.descriptors[s.Name] = s.Descriptor
		}
	}
	return nil
}

// Image returns the parsed ELF image, or nil if load() has not run.
func (p *FinalizedProgram) Image() *loader.Image { return p.image }

// ControlDirectives mirrors the HSA control-directives structure
// merged into each kernel descriptor at load time (spec.md §4.3).
// Bounds fields use a "<" mismatch comparison; exact-match fields use
// "!=" — both verbatim from original_source/src/FinalizedProgram.cc's
// loadAndCheckControlDirectives.
type ControlDirectives struct {
	MaxDynamicGroupSize   uint32
	MaxFlatGridSize       uint32
	MaxFlatWorkgroupSize  uint32
	RequiredGridSize      [3]uint32
	RequiredWorkgroupSize [3]uint32
	RequiredDim           uint32
}

// checkAndMergeDirectives merges d into every kernel descriptor owned
// by this program, per spec.md §4.3's mismatch rules. On the first
// conflicting field it returns a DIRECTIVE_MISMATCH error (spec.md §8
// scenario E5) without partially applying the merge to that descriptor.
func (p *FinalizedProgram) checkAndMergeDirectives(d ControlDirectives) error {
	for name, desc := range p.descriptors {
		merged := *desc

		if err := mergeBound(&merged.MaxDynamicGroupSize, d.MaxDynamicGroupSize, name, "max_dynamic_group_size"); err != nil {
			return err
		}
		if err := mergeBound(&merged.MaxFlatGridSize, d.MaxFlatGridSize, name, "max_flat_grid_size"); err != nil {
			return err
		}
		if err := mergeBound(&merged.MaxFlatWorkgroupSize, d.MaxFlatWorkgroupSize, name, "max_flat_workgroup_size"); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := mergeExact(&merged.RequiredGridSize[i], d.RequiredGridSize[i], name, "required_grid_size"); err != nil {
				return err
			}
			if err := mergeExact(&merged.RequiredWorkgroupSize[i], d.RequiredWorkgroupSize[i], name, "required_workgroup_size"); err != nil {
				return err
			}
		}
		if err := mergeExact(&merged.RequiredDim, d.RequiredDim, name, "required_dim"); err != nil {
			return err
		}

		*desc = merged
	}
	return nil
}

// mergeBound applies a "bounds" control-directive field: a nonzero
// supplied value conflicts if the descriptor already carries a
// smaller nonzero value (spec.md §4.3: "`<` for bounds"), otherwise the
// field is overwritten.
func mergeBound(field *uint32, supplied uint32, symbol, fieldName string) error {
	if supplied == 0 {
		return nil
	}
	if *field != 0 && *field < supplied {
		return status.New(status.ErrDirectiveMismatch,
			fmt.Sprintf("finalized program: %s: directive %s=%d conflicts with descriptor value %d", symbol, fieldName, supplied, *field))
	}
	*field = supplied
	return nil
}

// mergeExact applies an "exact-match" control-directive field: a
// nonzero supplied value conflicts if the descriptor already carries a
// different nonzero value (spec.md §4.3: "`≠` for exact-match fields").
func mergeExact(field *uint32, supplied uint32, symbol, fieldName string) error {
	if supplied == 0 {
		return nil
	}
	if *field != 0 && *field != supplied {
		return status.New(status.ErrDirectiveMismatch,
			fmt.Sprintf("finalized program: %s: directive %s=%d conflicts with descriptor value %d", symbol, fieldName, supplied, *field))
	}
	*field = supplied
	return nil
}

// Serialize writes (size, elf_bytes, isa, rounding, profile,
// machine_model) as a flat byte stream (spec.md §4.3), grounded on
// DLFinalizedProgram.cc's serializedSize/serializeTo.
func (p *FinalizedProgram) Serialize() []byte {
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p.ELF)))
	buf.Write(lenBuf[:])
	buf.Write(p.ELF)

	writeStr := func(s string) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		buf.Write(n[:])
		buf.WriteString(s)
	}
	writeStr(p.ISA.Name)
	var meta [4 * 6]byte
	binary.LittleEndian.PutUint32(meta[0:4], uint32(p.ISA.Major))
	binary.LittleEndian.PutUint32(meta[4:8], uint32(p.ISA.Minor))
	binary.LittleEndian.PutUint32(meta[8:12], uint32(p.ISA.Stepping))
	binary.LittleEndian.PutUint32(meta[12:16], uint32(p.Rounding))
	binary.LittleEndian.PutUint32(meta[16:20], uint32(p.Profile))
	binary.LittleEndian.PutUint32(meta[20:24], uint32(p.MachineModel))
	buf.Write(meta[:])

	return buf.Bytes()
}

// Deserialize rematerialises a FinalizedProgram from Serialize's byte
// stream. The ELF blob is kept in memory only: Deserialize writes no
// temporary file, and nothing is dynamically loaded from it.
// WriteTempFile is the separate step that puts the blob on disk.
func Deserialize(data []byte) (*FinalizedProgram, error) {
	if len(data) < 8 {
		return nil, status.New(status.ErrInvalidProgram, "finalized program: truncated header")
	}
	elfLen := binary.LittleEndian.Uint64(data[0:8])
	data = data[8:]
	if uint64(len(data)) < elfLen {
		return nil, status.New(status.ErrInvalidProgram, "finalized program: truncated elf blob")
	}
	elfBytes := append([]byte(nil), data[:elfLen]...)
	data = data[elfLen:]

	if len(data) < 4 {
		return nil, status.New(status.ErrInvalidProgram, "finalized program: truncated isa name length")
	}
	nameLen := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	if uint64(len(data)) < uint64(nameLen)+24 {
		return nil, status.New(status.ErrInvalidProgram, "finalized program: truncated metadata")
	}
	name := string(data[:nameLen])
	data = data[nameLen:]

	p := &FinalizedProgram{
		ELF: elfBytes,
		ISA: ISA{
			Name:     name,
			Major:    int(binary.LittleEndian.Uint32(data[0:4])),
			Minor:    int(binary.LittleEndian.Uint32(data[4:8])),
			Stepping: int(binary.LittleEndian.Uint32(data[8:12])),
		},
		Rounding:     RoundingMode(binary.LittleEndian.Uint32(data[12:16])),
		Profile:      Profile(binary.LittleEndian.Uint32(data[16:20])),
		MachineModel: MachineModel(binary.LittleEndian.Uint32(data[20:24])),
	}
	return p, nil
}

// WriteTempFile writes the ELF blob to a fresh temp file, mirroring
// DLFinalizedProgram.cc's mkdtemp("/tmp/phsa-finalized-program-XXXXXX")
// step, and returns its path. Callers are responsible for removing the
// file and its directory; no code in this module applies a
// PHSA_DEBUG_MODE retention rule to it.
func (p *FinalizedProgram) WriteTempFile() (string, error) {
	dir, err := os.MkdirTemp("", "phsa-finalized-program-")
	if err != nil {
		return "", fmt.Errorf("finalized program: create temp dir: %w", err)
	}
	path := dir + "/code_object.elf"
	if err := os.WriteFile(path, p.ELF, 0o600); err != nil {
		return "", fmt.Errorf("finalized program: write temp file: %w", err)
	}
	return path, nil
}
