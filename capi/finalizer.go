package capi

import (
	"os"

	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/status"
)

// FinalizerEnv mirrors the environment variables spec.md §6 assigns to
// the finalizer external collaborator. Read once via NewFinalizerEnv,
// never by the core packages (spec.md §6: "all consumed only by the
// finalizer external collaborator").
type FinalizerEnv struct {
	DebugMode       bool
	CompilerTempDir string
	GccbrigBuildDir string
	RuntimeIncDir   string
	CompilerFlags   string
	LDFlags         string
}

// NewFinalizerEnv reads PHSA_DEBUG_MODE, PHSA_COMPILER_TEMP_DIR,
// PHSA_GCCBRIG_BUILD_DIR, PHSA_RUNTIME_INC_DIR, PHSA_COMPILER_FLAGS and
// LDFLAGS from the process environment.
func NewFinalizerEnv() FinalizerEnv {
	return FinalizerEnv{
		DebugMode:       os.Getenv("PHSA_DEBUG_MODE") == "1",
		CompilerTempDir: os.Getenv("PHSA_COMPILER_TEMP_DIR"),
		GccbrigBuildDir: os.Getenv("PHSA_GCCBRIG_BUILD_DIR"),
		RuntimeIncDir:   os.Getenv("PHSA_RUNTIME_INC_DIR"),
		CompilerFlags:   os.Getenv("PHSA_COMPILER_FLAGS"),
		LDFlags:         os.Getenv("LDFLAGS"),
	}
}

// Finalizer is the external-collaborator boundary spec.md's "External
// compilation" design note draws around the BRIG frontend compiler:
// accept a BRIG blob on input, never assume the compiler is in-process,
// and return an ELF FinalizedProgram. The core never depends on this
// interface; only capi callers that need to compile BRIG from source
// (as opposed to loading a pre-compiled ELF fixture directly through
// executable.LoadCodeObject) use it.
type Finalizer interface {
	Finalize(brig []byte, isa executable.ISA, env FinalizerEnv) (*executable.FinalizedProgram, error)
}

// FixtureFinalizer is a Finalizer backed by a fixed table of
// pre-compiled ELF blobs keyed by a caller-chosen fixture name, instead
// of an actual BRIG-to-ELF compiler invocation — matching spec.md's
// "tests supply pre-compiled ELF fixtures" guidance, generalized into a
// reusable default implementation rather than one-off test setup.
type FixtureFinalizer struct {
	Fixtures map[string][]byte
}

// NewFixtureFinalizer constructs a FixtureFinalizer with an empty
// fixture table.
func NewFixtureFinalizer() *FixtureFinalizer {
	return &FixtureFinalizer{Fixtures: make(map[string][]byte)}
}

// Register associates a fixture name with pre-compiled ELF bytes, for
// Finalize to return in place of a real compiler invocation.
func (f *FixtureFinalizer) Register(name string, elf []byte) {
	f.Fixtures[name] = elf
}

// Finalize looks up brig (interpreted as a fixture name rather than
// actual BRIG bytes, since no in-process BRIG compiler exists here) in
// the fixture table and wraps it as a FinalizedProgram. env is accepted
// to satisfy the Finalizer contract but otherwise unused: a fixture
// lookup has no compiler flags or temp directories to honor.
func (f *FixtureFinalizer) Finalize(brig []byte, isa executable.ISA, _ FinalizerEnv) (*executable.FinalizedProgram, error) {
	name := string(brig)
	elf, ok := f.Fixtures[name]
	if !ok {
		return nil, status.New(status.ErrFinalizationFailed, "finalizer: no fixture registered for "+name)
	}
	return &executable.FinalizedProgram{ELF: elf, ISA: isa}, nil
}
