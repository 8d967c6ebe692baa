// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/instrumentregistry"
)

// Plan-file type strings for the simulated drivers.
const (
	TypeStage = "sim.stage"
	TypeMeter = "sim.meter"
)

func init() {
	instrumentregistry.Register(TypeStage, instrumentregistry.FactoryFunc(createStage))
	instrumentregistry.Register(TypeMeter, instrumentregistry.FactoryFunc(createMeter))
}

func createStage(_ context.Context, def instrumentregistry.Definition) (instrument.Instrument, error) {
	travel := time.Duration(0)

	if raw, ok := def.Settings["travel_ms"]; ok {
		ms, err := toMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("travel_ms: %w", err)
		}

		travel = ms
	}

	stage := NewStage(def.Name, def.Adapter, travel)

	if len(def.Settings) > 0 {
		if err := stage.ApplySettings(def.Settings); err != nil {
			return nil, err
		}
	}

	return stage, nil
}

func createMeter(_ context.Context, def instrumentregistry.Definition) (instrument.Instrument, error) {
	meter := NewMeter(def.Name, def.Adapter)

	if len(def.Settings) > 0 {
		if err := meter.ApplySettings(def.Settings); err != nil {
			return nil, err
		}
	}

	return meter, nil
}

func toMillis(v any) (time.Duration, error) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Millisecond, nil
	case int64:
		return time.Duration(n) * time.Millisecond, nil
	case uint64:
		return time.Duration(n) * time.Millisecond, nil //nolint:gosec
	case float64:
		return time.Duration(n * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
