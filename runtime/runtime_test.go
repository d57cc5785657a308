package runtime

import (
	"testing"

	"github.com/joeycumines/phsa/aql"
	"github.com/joeycumines/phsa/executable"
	"github.com/joeycumines/phsa/region"
	"github.com/stretchr/testify/require"
)

func TestInitShutDownIsRefCounted(t *testing.T) {
	rt1 := Init()
	rt2 := Init()
	require.Same(t, rt1, rt2)

	require.NoError(t, ShutDown())
	require.NotNil(t, Current(), "first shut_down must not tear down a runtime with an outstanding reference")

	require.NoError(t, ShutDown())
	require.Nil(t, Current())
}

func TestShutDownWithoutInitFails(t *testing.T) {
	require.Nil(t, Current())
	err := ShutDown()
	require.Error(t, err)
}

func TestNewRuntimesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	require.NotSame(t, a, b)
	require.NotSame(t, a.Agents, b.Agents)
}

func TestIterateVisitsNoAgentsWhenEmpty(t *testing.T) {
	rt := New()
	var visited int
	rt.Iterate(func(h aql.Handle, a *Agent) bool {
		visited++
		return true
	})
	require.Zero(t, visited)
}

func TestIterateVisitsEveryRegisteredAgent(t *testing.T) {
	rt := New()
	isa := executable.ISA{Name: "cpu", Major: 1}
	a1 := NewAgent(rt, isa, region.NewHeapRegion(0, 0))
	defer a1.ShutDown()
	a2 := NewAgent(rt, isa, region.NewHeapRegion(0, 0))
	defer a2.ShutDown()
	h1 := rt.Agents.Allocate(a1)
	h2 := rt.Agents.Allocate(a2)

	seen := map[aql.Handle]*Agent{}
	rt.Iterate(func(h aql.Handle, a *Agent) bool {
		seen[h] = a
		return true
	})
	require.Equal(t, map[aql.Handle]*Agent{h1: a1, h2: a2}, seen)
}

func TestIterateStopsEarly(t *testing.T) {
	rt := New()
	isa := executable.ISA{Name: "cpu", Major: 1}
	a1 := NewAgent(rt, isa, region.NewHeapRegion(0, 0))
	defer a1.ShutDown()
	a2 := NewAgent(rt, isa, region.NewHeapRegion(0, 0))
	defer a2.ShutDown()
	rt.Agents.Allocate(a1)
	rt.Agents.Allocate(a2)

	var visited int
	rt.Iterate(func(h aql.Handle, a *Agent) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited)
}
