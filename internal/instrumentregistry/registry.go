// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package instrumentregistry maps instrument type strings, as written in
// plan files, to the factories that build the drivers.
package instrumentregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/oscilla-lab/scantree/internal/instrument"
)

var (
	// ErrUnknownInstrumentType is returned when a type is not registered.
	ErrUnknownInstrumentType = errors.New("unknown instrument type")
	// ErrInstrumentCreation is returned when a factory fails.
	ErrInstrumentCreation = errors.New("failed to create instrument")
	// ErrInstrumentUnmarshal is returned when a definition cannot be
	// unmarshaled.
	ErrInstrumentUnmarshal = errors.New("failed to unmarshal instrument definition")
)

// Definition is the plan-file description of one instrument.
type Definition struct {
	Type     string         `yaml:"type"`
	Name     string         `yaml:"name"`
	Adapter  string         `yaml:"adapter"`
	Settings map[string]any `yaml:"settings"`
}

// Factory builds an instrument driver from its plan definition.
type Factory interface {
	Create(ctx context.Context, def Definition) (instrument.Instrument, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, def Definition) (instrument.Instrument, error)

// Create implements Factory.
func (f FactoryFunc) Create(ctx context.Context, def Definition) (instrument.Instrument, error) {
	return f(ctx, def)
}

// Registry holds the mapping between instrument types and their factories.
type Registry map[string]Factory

// DefaultRegistry is the process-wide registry. Driver packages add
// themselves to it from init functions; importing the allinstruments
// package pulls all of them in.
var DefaultRegistry = make(Registry)

// Register adds an instrument type to the default registry.
func Register(instrumentType string, factory Factory) {
	DefaultRegistry[instrumentType] = factory
}

// Create builds an instrument from a parsed definition.
func Create(ctx context.Context, def Definition) (instrument.Instrument, error) {
	factory, exists := DefaultRegistry[def.Type]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrumentType, def.Type)
	}

	instr, err := factory.Create(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInstrumentCreation, def.Type, err)
	}

	return instr, nil
}

// CreateFromYAML builds an instrument from one YAML definition node.
func CreateFromYAML(ctx context.Context, yamlData []byte) (instrument.Instrument, error) {
	var def Definition
	if err := yaml.Unmarshal(yamlData, &def); err != nil {
		return nil, errors.Join(ErrInstrumentUnmarshal, err)
	}

	return Create(ctx, def)
}
