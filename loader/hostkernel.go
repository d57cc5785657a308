package loader

import (
	"sync"

	"github.com/joeycumines/phsa/aql"
)

// hostKernels stands in for dlopen/dlsym resolution of a kernel's
// native entry point. A real BRIG-targeting backend would dlopen the
// code object's ELF shared object and dlsym each kernel symbol; Go's
// stdlib plugin.Open only loads Go-plugin .so files built with
// -buildmode=plugin, not arbitrary ELF objects with System V entry
// points (see DESIGN.md's go.mod note), so this module exposes
// RegisterHostKernel as the supported binding path for both test
// fixtures and any future plugin.Open-based resolver, which would
// populate this same registry after a successful plugin.Lookup.
var (
	hostKernelsMu sync.RWMutex
	hostKernels   = make(map[string]aql.KernelFunc)
)

// RegisterHostKernel binds a Go-native implementation to the ELF symbol
// name it stands in for. Subsequent Load calls resolve that symbol's
// Entry field from this registry.
func RegisterHostKernel(symbolName string, fn aql.KernelFunc) {
	hostKernelsMu.Lock()
	defer hostKernelsMu.Unlock()
	hostKernels[symbolName] = fn
}

// UnregisterHostKernel removes a binding, e.g. between test cases.
func UnregisterHostKernel(symbolName string) {
	hostKernelsMu.Lock()
	defer hostKernelsMu.Unlock()
	delete(hostKernels, symbolName)
}

func lookupHostKernel(symbolName string) aql.KernelFunc {
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	return hostKernels[symbolName]
}
