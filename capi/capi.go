// Package capi is the mechanical external-collaborator shim spec.md §6
// describes: each exported function validates the runtime is
// initialised, resolves opaque handles through the core's handle
// registries, forwards to the corresponding core package, and
// translates any error into a status.Status. No entry point here holds
// business logic of its own — that all lives in the core packages this
// one forwards to.
//
// Style grounded on inprocgrpc's channel dispatch (validate the method,
// resolve the handler, forward the call, translate the result), carried
// over from a distributed-call shape to a local handle-resolution one.
package capi

import (
	"github.com/joeycumines/phsa/status"
)

// Status re-exports status.Status as the public-facing alias a C
// caller's binding layer would see, following this package's narrow
// mandate to translate, never redefine, the core's error vocabulary.
type Status = status.Status

// Re-exported for callers that only import capi.
const (
	Success           = status.Success
	ErrNotInitialized = status.ErrNotInitialized
)

func statusOf(err error) Status {
	if err == nil {
		return Success
	}
	if se, ok := err.(*status.Error); ok {
		return se.Status
	}
	return status.ErrInvalidArgument
}
