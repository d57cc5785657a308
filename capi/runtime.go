package capi

import (
	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/region"
	"github.com/joeycumines/phsa/runtime"
	"github.com/joeycumines/phsa/status"
)

// HsaInit and HsaShutDown wrap runtime.Init/runtime.ShutDown's
// refcounted singleton lifecycle (spec.md §4, §6: "validates the
// runtime is initialised, else returns NOT_INITIALIZED").
func HsaInit() Status {
	runtime.Init()
	return Success
}

func HsaShutDown() Status {
	return statusOf(runtime.ShutDown())
}

func currentRuntime() (*runtime.Runtime, Status) {
	rt := runtime.Current()
	if rt == nil {
		return nil, ErrNotInitialized
	}
	return rt, Success
}

func resolveAgent(rt *runtime.Runtime, h aql.Handle) (*runtime.Agent, Status) {
	obj, ok := rt.Agents.Resolve(h)
	if !ok {
		return nil, status.ErrInvalidAgent
	}
	a, ok := obj.(*runtime.Agent)
	if !ok {
		return nil, status.ErrInvalidAgent
	}
	return a, Success
}

// HsaAgentCreate constructs a CPU dispatch agent for the named ISA and
// registers it with the current runtime, returning its handle. Group
// memory for kernel dispatch is backed by a host-heap region (spec.md
// §3 GLOSSARY "Memory region"): this module supports exactly one
// backend, so there is no device-local allocator to choose between.
func HsaAgentCreate(isaName string) (aql.Handle, Status) {
	rt, s := currentRuntime()
	if s != Success {
		return 0, s
	}
	isa := executable.ISA{Name: isaName}
	a := runtime.NewAgent(rt, isa, region.NewHeapRegion(region.Group, 0))
	return rt.Agents.Allocate(a), Success
}

// HsaAgentDestroy shuts down the agent's dispatch worker and releases
// its handle.
func HsaAgentDestroy(h aql.Handle) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	a, s := resolveAgent(rt, h)
	if s != Success {
		return s
	}
	a.ShutDown()
	rt.Agents.Release(h)
	return Success
}

// HsaAgentIterateRegions calls fn for every memory region h owns,
// stopping early if fn returns false (spec.md §4: region iteration).
func HsaAgentIterateRegions(h aql.Handle, fn func(r aql.Handle, kind region.Kind) bool) Status {
	rt, s := currentRuntime()
	if s != Success {
		return s
	}
	a, s := resolveAgent(rt, h)
	if s != Success {
		return s
	}
	a.Iterate(func(rh aql.Handle, r region.Region) bool {
		return fn(rh, r.Kind())
	})
	return Success
}
