package handle

import (
	"testing"

	"github.com/joeycumines/phsa/aql"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndResolve(t *testing.T) {
	r := New()
	type obj struct{ n int }
	o := &obj{n: 42}

	h := r.Allocate(o)
	require.NotZero(t, h)

	got, ok := r.Resolve(h)
	require.True(t, ok)
	require.Same(t, o, got)
}

func TestAllocateDistinctHandles(t *testing.T) {
	r := New()
	h1 := r.Allocate(1)
	h2 := r.Allocate(2)
	require.NotEqual(t, h1, h2)
}

func TestRegisterExplicitHandle(t *testing.T) {
	r := New()
	var cell int64 = 7
	h := aql.Handle(uintptr(1234))
	r.Register(h, &cell)

	got, ok := r.Resolve(h)
	require.True(t, ok)
	require.Same(t, &cell, got)
}

func TestRelease(t *testing.T) {
	r := New()
	h := r.Allocate("x")
	require.Equal(t, 1, r.Len())
	r.Release(h)
	require.Equal(t, 0, r.Len())
	_, ok := r.Resolve(h)
	require.False(t, ok)
}

func TestResolveMissing(t *testing.T) {
	r := New()
	_, ok := r.Resolve(aql.Handle(999))
	require.False(t, ok)
}

func TestEachVisitsEveryEntry(t *testing.T) {
	r := New()
	h1 := r.Allocate("a")
	h2 := r.Allocate("b")
	h3 := r.Allocate("c")
	r.Release(h2)

	seen := map[aql.Handle]any{}
	r.Each(func(h aql.Handle, object any) bool {
		seen[h] = object
		return true
	})

	require.Equal(t, map[aql.Handle]any{h1: "a", h3: "c"}, seen)
}

func TestEachStopsEarly(t *testing.T) {
	r := New()
	r.Allocate("a")
	r.Allocate("b")
	r.Allocate("c")

	var visited int
	r.Each(func(h aql.Handle, object any) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited)
}
