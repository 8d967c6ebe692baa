// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package instrument defines the capability interfaces the scheduler consumes.
// An instrument driver is an external collaborator: the scheduler never speaks
// a wire protocol itself, it only calls the methods declared here.
package instrument

// Instrument is the base capability shared by every driver.
type Instrument interface {
	// Name returns the driver's display name, e.g. "XStage".
	Name() string
	// Adapter returns the connection address string, e.g. "visa://GPIB0::12".
	// Two drivers sharing an adapter share a physical connection.
	Adapter() string
	// Connect establishes the connection to the physical device.
	Connect() error
	// Initialize puts the device into a known default state.
	Initialize() error
	// Shutdown releases the device.
	Shutdown() error
	// CheckConnection reports whether the device is reachable.
	CheckConnection() bool
	// Settings returns the driver's current settings.
	Settings() map[string]any
	// ApplySettings replaces the driver's settings.
	ApplySettings(settings map[string]any) error
}

// Movement is an instrument that can be driven to a position, such as a
// stage, a current source or a temperature controller.
type Movement interface {
	Instrument

	// Position returns the current position.
	Position() (float64, error)
	// SetPosition moves to the target position, blocking until the motion
	// completes.
	SetPosition(value float64) error
	// PositionUnits returns the unit suffix for positions, e.g. "um".
	PositionUnits() string
	// PositionColumn returns the column name used when positions are
	// attached to measurement tables, e.g. "X Position".
	PositionColumn() string
}

// Measurement is an instrument that produces rows of numeric data, such as a
// lock-in amplifier or a voltage meter.
type Measurement interface {
	Instrument

	// PerformMeasurement acquires one measurement and returns it as rows of
	// numeric values, one value per data column.
	PerformMeasurement() ([][]float64, error)
	// DataColumns returns the column names, in row order.
	DataColumns() []string
	// DataUnits returns the unit suffix per column, aligned with DataColumns.
	DataUnits() []string
}
