// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package instrument

// Capability is the derived tag describing what an instrument can do.
// It is computed once, via Classify, never by matching type names.
type Capability int

const (
	// CapabilityUnknown marks an instrument that is neither a Movement nor a
	// Measurement.
	CapabilityUnknown Capability = iota
	// CapabilityMovement marks an instrument with a drivable position.
	CapabilityMovement
	// CapabilityMeasurement marks an instrument that produces data rows.
	CapabilityMeasurement
)

const (
	capMovementStr    = "Movement"
	capMeasurementStr = "Measurement"
	capUnknownStr     = "Unknown"
)

// String returns the capability tag used in batching and serialization.
func (c Capability) String() string {
	switch c {
	case CapabilityMovement:
		return capMovementStr
	case CapabilityMeasurement:
		return capMeasurementStr
	default:
		return capUnknownStr
	}
}

// ParseCapability converts a tag string back into a Capability.
// Unrecognised tags map to CapabilityUnknown.
func ParseCapability(s string) Capability {
	switch s {
	case capMovementStr:
		return CapabilityMovement
	case capMeasurementStr:
		return CapabilityMeasurement
	default:
		return CapabilityUnknown
	}
}

// Classify determines an instrument's capability with an interface check.
// A driver implementing both Movement and Measurement classifies as Movement;
// drivers should not do that.
func Classify(instr any) Capability {
	switch instr.(type) {
	case Movement:
		return CapabilityMovement
	case Measurement:
		return CapabilityMeasurement
	default:
		return CapabilityUnknown
	}
}
