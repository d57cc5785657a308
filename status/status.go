// Package status defines the HSA status codes the core must distinguish
// (spec.md §7), and the error type that carries them.
package status

// Status is one of the HSA status codes, grouped by the error kinds
// spec.md §7 enumerates: lifecycle, validation, packet processing and
// finalisation. Status zero is reserved for "success" so a Status can
// double as a plain comparable return value where that's convenient.
type Status int

const (
	Success Status = iota

	// lifecycle
	ErrNotInitialized
	ErrRefCountOverflow
	ErrFrozenExecutable

	// validation
	ErrInvalidAgent
	ErrInvalidQueue
	ErrInvalidSignal
	ErrInvalidRegion
	ErrInvalidExecutable
	ErrInvalidCodeObject
	ErrInvalidISA
	ErrInvalidSymbolName
	ErrInvalidArgument
	ErrInvalidIndex
	ErrInvalidAllocation
	ErrOutOfResources
	ErrInvalidQueueCreation

	// packet processing
	ErrInvalidPacketFormat
	ErrIncompatibleArguments
	// ErrInvalidCodeObjectPacket reuses ErrInvalidCodeObject; a kernel
	// handle that fails to resolve during dispatch surfaces that code.

	// finalisation
	ErrInvalidProgram
	ErrInvalidModule
	ErrModuleAlreadyIncluded
	ErrSymbolMismatch
	ErrDirectiveMismatch
	ErrFinalizationFailed
)

var names = map[Status]string{
	Success:                  "SUCCESS",
	ErrNotInitialized:        "NOT_INITIALIZED",
	ErrRefCountOverflow:      "REFERENCE_COUNT_OVERFLOW",
	ErrFrozenExecutable:      "FROZEN_EXECUTABLE",
	ErrInvalidAgent:          "INVALID_AGENT",
	ErrInvalidQueue:          "INVALID_QUEUE",
	ErrInvalidSignal:         "INVALID_SIGNAL",
	ErrInvalidRegion:         "INVALID_REGION",
	ErrInvalidExecutable:     "INVALID_EXECUTABLE",
	ErrInvalidCodeObject:     "INVALID_CODE_OBJECT",
	ErrInvalidISA:            "INVALID_ISA",
	ErrInvalidSymbolName:     "INVALID_SYMBOL_NAME",
	ErrInvalidArgument:       "INVALID_ARGUMENT",
	ErrInvalidIndex:          "INVALID_INDEX",
	ErrInvalidAllocation:     "INVALID_ALLOCATION",
	ErrOutOfResources:        "OUT_OF_RESOURCES",
	ErrInvalidQueueCreation:  "INVALID_QUEUE_CREATION",
	ErrInvalidPacketFormat:   "INVALID_PACKET_FORMAT",
	ErrIncompatibleArguments: "INCOMPATIBLE_ARGUMENTS",
	ErrInvalidProgram:        "INVALID_PROGRAM",
	ErrInvalidModule:         "INVALID_MODULE",
	ErrModuleAlreadyIncluded: "MODULE_ALREADY_INCLUDED",
	ErrSymbolMismatch:        "SYMBOL_MISMATCH",
	ErrDirectiveMismatch:     "DIRECTIVE_MISMATCH",
	ErrFinalizationFailed:    "FINALIZATION_FAILED",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "UNKNOWN_STATUS"
}

// Error represents a status-carrying error, generalizing the teacher's
// TypeError/RangeError/TimeoutError shape (Cause + Message + Unwrap) to
// a single type parameterized by Status rather than three fixed kinds.
type Error struct {
	Status  Status
	Message string
	Cause   error
}

// New builds an *Error with no wrapped cause.
func New(s Status, message string) *Error {
	return &Error{Status: s, Message: message}
}

// Wrap builds an *Error that wraps cause.
func Wrap(s Status, message string, cause error) *Error {
	return &Error{Status: s, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Message
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}
