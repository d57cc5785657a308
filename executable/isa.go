// Package executable implements spec.md §3/§4.4 "Executable" and
// "Finalized program": the frozen/unfrozen symbol-table state machine,
// and the ISA/profile/rounding-mode/machine-model metadata supplemented
// from original_source (spec.md names these fields but leaves their
// value sets and compatibility rules unspecified — see SPEC_FULL.md §8
// and DESIGN.md Open Question 4).
package executable

import "fmt"

// ISA identifies an instruction-set architecture and the calling
// conventions available on it (spec.md GLOSSARY "ISA"). Supplemented
// from original_source/include/ISA.hh, which models an ISA as a small
// value type checked against an Agent's supported ISA at load time.
type ISA struct {
	Name     string
	Major    int
	Minor    int
	Stepping int
}

// String implements fmt.Stringer.
func (i ISA) String() string {
	return fmt.Sprintf("%s-%d.%d.%d", i.Name, i.Major, i.Minor, i.Stepping)
}

// Compatible reports whether a code object built for want can run on an
// agent whose supported ISA is have. This module supports exactly one
// backend (CPU), so compatibility is name equality — matching
// CPUKernelAgent's single "host-isa" constructor argument in
// original_source.
func (have ISA) Compatible(want ISA) bool {
	return have.Name == want.Name
}

// RoundingMode is hsa_default_float_rounding_mode_t, reproduced
// verbatim in meaning from original_source/include/Finalizer.hh.
type RoundingMode int

const (
	RoundingDefault RoundingMode = iota
	RoundingZero
	RoundingNear
)

// MachineModel is hsa_machine_model_t.
type MachineModel int

const (
	MachineSmall MachineModel = iota
	MachineLarge
)

// Profile is hsa_profile_t.
type Profile int

const (
	ProfileBase Profile = iota
	ProfileFull
)
