package capi

import (
	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/status"
)

func resolveExecutable(rt interface {
	Resolve(h aql.Handle) (any, bool)
}, h aql.Handle) (*executable.Executable, bool) {
	obj, ok := rt.Resolve(h)
	if !ok {
		return nil, false
	}
	e, ok := obj.(*executable.Executable)
	return e, ok
}

// HsaExecutableCreate registers a new, unfrozen Executable and returns
// its handle (spec.md §4.4).
func HsaExecutableCreate() (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	return rt.Execs.Allocate(executable.New()), Success
}

// HsaExecutableDefineGlobalSymbolAddress forwards to
// Executable.DefineGlobalSymbolAddress (spec.md §4.3, scenario E6).
func HsaExecutableDefineGlobalSymbolAddress(h aql.Handle, name string, addr uintptr) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	e, ok := resolveExecutable(rt.Execs, h)
	if !ok {
		return status.ErrInvalidExecutable
	}
	return statusOf(e.DefineGlobalSymbolAddress(name, addr))
}

// HsaExecutableLoadCodeObject forwards to Executable.LoadCodeObject
// (spec.md §4.4), resolving the owning agent for its ISA.
func HsaExecutableLoadCodeObject(h, agent aql.Handle, codeObject *executable.FinalizedProgram, directives executable.ControlDirectives) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	e, ok := resolveExecutable(rt.Execs, h)
	if !ok {
		return status.ErrInvalidExecutable
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return s
	}
	return statusOf(e.LoadCodeObject(a.ISA, codeObject, directives))
}

// HsaExecutableFreeze forwards to Executable.Freeze.
func HsaExecutableFreeze(h aql.Handle) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	e, ok := resolveExecutable(rt.Execs, h)
	if !ok {
		return status.ErrInvalidExecutable
	}
	return statusOf(e.Freeze())
}

// HsaExecutableGetSymbol forwards to Executable.GetSymbol.
func HsaExecutableGetSymbol(h aql.Handle, name string) (*executable.Symbol, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return nil, s
	}
	e, ok := resolveExecutable(rt.Execs, h)
	if !ok {
		return nil, status.ErrInvalidExecutable
	}
	sym, ok := e.GetSymbol(name)
	if !ok {
		return nil, status.ErrInvalidSymbolName
	}
	return sym, Success
}

// HsaAgentRegisterExecutable forwards to runtime.Agent.RegisterKernels,
// allocating a dispatch handle for every Kernel symbol in a frozen
// Executable. Callers use the returned name→handle map to populate a
// KERNEL_DISPATCH packet's kernel_object field.
func HsaAgentRegisterExecutable(agent, exec aql.Handle) (map[string]aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return nil, s
	}
	a, s := resolveAgent(rt, agent)
	if s != Success {
		return nil, s
	}
	e, ok := resolveExecutable(rt.Execs, exec)
	if !ok {
		return nil, status.ErrInvalidExecutable
	}
	if !e.IsFrozen() {
		return nil, status.ErrInvalidExecutable
	}
	return a.RegisterKernels(e), Success
}
