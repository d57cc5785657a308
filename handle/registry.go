// Package handle implements the opaque 64-bit handle ↔ object registry
// (spec.md §3 "Handle"). Grounded on eventloop/registry.go's
// map[uint64]->value registry shape, generalized from GC-tracked weak
// pointers (appropriate for JS-visible promises) to manually-released
// strong references, since HSA objects live until an explicit destroy
// call rather than until the garbage collector notices them (see
// DESIGN.md Open Question 3).
package handle

import (
	"sync"

	"github.com/joeycumines/phsa/aql"
)

// By default an object's handle is its registry-assigned ID; some
// objects (Signal) must hand out a handle that dereferences directly to
// an embedded value, so the registry also lets the caller supply the
// handle rather than have one assigned — see Register.
type entry struct {
	object any
}

// Registry maps opaque handles to arbitrary registered objects.
type Registry struct {
	mu     sync.RWMutex
	data   map[aql.Handle]entry
	nextID uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		data:   make(map[aql.Handle]entry),
		nextID: 1, // 0 is reserved as the null handle
	}
}

// Allocate assigns a fresh handle and registers object under it,
// returning the assigned handle. Use this for objects with no natural
// embedded-value handle (Queue, Region, Executable, ...).
func (r *Registry) Allocate(object any) aql.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := aql.Handle(r.nextID)
	r.nextID++
	r.data[h] = entry{object: object}
	return h
}

// Register stores object under an explicitly supplied handle, for
// objects (Signal) whose handle must materialize to an embedded value
// rather than an opaque counter. The caller is responsible for ensuring
// h is unique within this registry.
func (r *Registry) Register(h aql.Handle, object any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[h] = entry{object: object}
}

// Resolve returns the object registered under h, and whether it was
// found.
func (r *Registry) Resolve(h aql.Handle) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.data[h]
	return e.object, ok
}

// Release removes h from the registry. It does not touch the
// underlying object's own lifecycle (e.g. Signal.Destroy) — callers
// must do that themselves, per spec.md §3's ownership rules.
func (r *Registry) Release(h aql.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, h)
}

// Len returns the number of currently registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Each calls fn for every currently registered handle, stopping early
// if fn returns false. The walk runs over a snapshot taken under the
// read lock, so fn is free to call back into the registry (Release,
// Allocate, ...) without deadlocking.
func (r *Registry) Each(fn func(h aql.Handle, object any) bool) {
	r.mu.RLock()
	snapshot := make(map[aql.Handle]any, len(r.data))
	for h, e := range r.data {
		snapshot[h] = e.object
	}
	r.mu.RUnlock()
	for h, object := range snapshot {
		if !fn(h, object) {
			return
		}
	}
}
