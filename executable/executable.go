package executable

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/phsa/status"
)

// Executable is the frozen/unfrozen symbol-table container spec.md §3
// describes: an ordered symbol list, a name index for O(1) lookup, a
// one-way freeze transition, and a host-definition map applied to each
// loaded code object's image.
//
// Name-index locking mirrors eventloop.registry's read-mostly map
// shape, generalized from weak-pointer promise tracking to manually
// owned symbols; the frozen/unfrozen transition itself is a single
// atomic.Bool rather than eventloop.FastState's multi-state CAS machine,
// since Executable only ever has two states.
type Executable struct {
	mu             sync.RWMutex
	symbols        []Symbol
	byName         map[string]int // index into symbols
	definedSymbols map[string]uintptr
	frozen         atomic.Bool
}

// New creates an empty, unfrozen Executable.
func New() *Executable {
	return &Executable{
		byName:         make(map[string]int),
		definedSymbols: make(map[string]uintptr),
	}
}

// DefineGlobalSymbolAddress records addr under name, to be patched into
// the next LoadCodeObject call's image (spec.md §4.3, scenario E6).
// Legal at any time prior to freeze.
func (e *Executable) DefineGlobalSymbolAddress(name string, addr uintptr) error {
	if e.frozen.Load() {
		return status.New(status.ErrFrozenExecutable, "executable: defineGlobalSymbolAddress on frozen executable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definedSymbols[name] = addr
	return nil
}

// LoadCodeObject parses and registers the symbols in a code object
// (spec.md §4.4). Legal only on an unfrozen Executable. agentISA is the
// Agent's single supported ISA (spec.md's ISA-compatibility check,
// supplemented from original_source — see DESIGN.md Open Question 4);
// directives is merged into every kernel descriptor after loading
// (spec.md §4.3).
func (e *Executable) LoadCodeObject(agentISA ISA, codeObject *FinalizedProgram, directives ControlDirectives) error {
	if e.frozen.Load() {
		return status.New(status.ErrFrozenExecutable, "executable: loadCodeObject on frozen executable")
	}
	if !agentISA.Compatible(codeObject.ISA) {
		return status.New(status.ErrInvalidISA, "executable: code object isa "+codeObject.ISA.String()+" incompatible with agent isa "+agentISA.String())
	}

	if err := codeObject.load(); err != nil {
		return err
	}

	e.mu.Lock()
	for name, addr := range e.definedSymbols {
		codeObject.image.DefineGlobal(name, addr)
	}
	e.mu.Unlock()

	if err := codeObject.checkAndMergeDirectives(directives); err != nil {
		return err
	}

	loaderSymbols := codeObject.image.Symbols

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ls := range loaderSymbols {
		sym := fromLoaderSymbol(ls, codeObject)
		e.symbols = append(e.symbols, sym)
		// spec.md §8 invariant 6: "the first registered symbol with a
		// given name wins" — never overwrite an existing entry.
		if _, exists := e.byName[sym.Name]; !exists {
			e.byName[sym.Name] = len(e.symbols) - 1
		}
	}
	return nil
}

// Freeze transitions the Executable to FROZEN. One-way: a second call
// on an already-frozen Executable fails (spec.md §4.4).
func (e *Executable) Freeze() error {
	if !e.frozen.CompareAndSwap(false, true) {
		return status.New(status.ErrFrozenExecutable, "executable: already frozen")
	}
	return nil
}

// IsFrozen reports whether Freeze has been called.
func (e *Executable) IsFrozen() bool { return e.frozen.Load() }

// GetSymbol looks up a symbol by name in O(1) (spec.md §4.4). Safe to
// call before or after Freeze: reads are RWMutex-guarded before freeze,
// and the symbol table is immutable (and needs no lock) after — see
// SPEC_FULL.md §4.4.
func (e *Executable) GetSymbol(name string) (*Symbol, bool) {
	if e.frozen.Load() {
		i, ok := e.byName[name]
		if !ok {
			return nil, false
		}
		return &e.symbols[i], true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return &e.symbols[i], true
}

// Symbols returns a snapshot of the registered symbols in registration
// order, for iteration (spec.md §4.4: "symbol_begin/end iterators").
func (e *Executable) Symbols() []Symbol {
	if e.frozen.Load() {
		out := make([]Symbol, len(e.symbols))
		copy(out, e.symbols)
		return out
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Symbol, len(e.symbols))
	copy(out, e.symbols)
	return out
}
