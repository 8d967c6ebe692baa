// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package sim provides deterministic simulated instruments. They back the
// built-in plan item types and the test suites; no hardware is touched.
package sim

import (
	"errors"
	"maps"
	"math"
	"sync"
	"time"
)

// ErrNotConnected is returned when an operation is attempted before Connect.
var ErrNotConnected = errors.New("sim: instrument is not connected")

// Stage is a simulated single-axis movement instrument.
type Stage struct {
	mu        sync.Mutex
	name      string
	adapter   string
	units     string
	column    string
	position  float64
	travel    time.Duration
	connected bool
	settings  map[string]any

	// Moves records every position set, in order. Tests assert on it.
	Moves []float64
}

// NewStage creates a simulated stage. travel is the simulated time one
// SetPosition call takes.
func NewStage(name, adapter string, travel time.Duration) *Stage {
	return &Stage{
		name:     name,
		adapter:  adapter,
		units:    "um",
		column:   name + " Position",
		travel:   travel,
		settings: map[string]any{},
	}
}

// Name implements instrument.Instrument.
func (s *Stage) Name() string { return s.name }

// Adapter implements instrument.Instrument.
func (s *Stage) Adapter() string { return s.adapter }

// Connect implements instrument.Instrument.
func (s *Stage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true

	return nil
}

// Initialize implements instrument.Instrument.
func (s *Stage) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}

	s.position = 0

	return nil
}

// Shutdown implements instrument.Instrument.
func (s *Stage) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false

	return nil
}

// CheckConnection implements instrument.Instrument.
func (s *Stage) CheckConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

// Settings implements instrument.Instrument.
func (s *Stage) Settings() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.settings)
}

// ApplySettings implements instrument.Instrument.
func (s *Stage) ApplySettings(settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = maps.Clone(settings)

	return nil
}

// Position implements instrument.Movement.
func (s *Stage) Position() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return 0, ErrNotConnected
	}

	return s.position, nil
}

// SetPosition implements instrument.Movement.
func (s *Stage) SetPosition(value float64) error {
	s.mu.Lock()

	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}

	s.mu.Unlock()

	// Simulated motion happens outside the lock so concurrent position reads
	// behave like a real controller.
	if s.travel > 0 {
		time.Sleep(s.travel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = value
	s.Moves = append(s.Moves, value)

	return nil
}

// PositionUnits implements instrument.Movement.
func (s *Stage) PositionUnits() string { return s.units }

// PositionColumn implements instrument.Movement.
func (s *Stage) PositionColumn() string { return s.column }

// Meter is a simulated measurement instrument producing one row of
// deterministic data per acquisition.
type Meter struct {
	mu        sync.Mutex
	name      string
	adapter   string
	connected bool
	settings  map[string]any
	count     int
}

// NewMeter creates a simulated meter.
func NewMeter(name, adapter string) *Meter {
	return &Meter{
		name:     name,
		adapter:  adapter,
		settings: map[string]any{},
	}
}

// Name implements instrument.Instrument.
func (m *Meter) Name() string { return m.name }

// Adapter implements instrument.Instrument.
func (m *Meter) Adapter() string { return m.adapter }

// Connect implements instrument.Instrument.
func (m *Meter) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true

	return nil
}

// Initialize implements instrument.Instrument.
func (m *Meter) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	return nil
}

// Shutdown implements instrument.Instrument.
func (m *Meter) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false

	return nil
}

// CheckConnection implements instrument.Instrument.
func (m *Meter) CheckConnection() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connected
}

// Settings implements instrument.Instrument.
func (m *Meter) Settings() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return maps.Clone(m.settings)
}

// ApplySettings implements instrument.Instrument.
func (m *Meter) ApplySettings(settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = maps.Clone(settings)

	return nil
}

// MeasurementCount returns how many acquisitions have been performed.
func (m *Meter) MeasurementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.count
}

// PerformMeasurement implements instrument.Measurement. The values are a
// function of the acquisition count, so repeated runs are reproducible.
func (m *Meter) PerformMeasurement() ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}

	m.count++
	n := float64(m.count)

	return [][]float64{{math.Sin(n), math.Cos(n)}}, nil
}

// DataColumns implements instrument.Measurement.
func (m *Meter) DataColumns() []string { return []string{"X", "Y"} }

// DataUnits implements instrument.Measurement.
func (m *Meter) DataUnits() []string { return []string{"V", "V"} }
