// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package scantree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/oscilla-lab/scantree/internal/instrument"
)

// ErrSerializationInvariant is returned when a value that is not a plain
// primitive (or a container of primitives) would leak into serialized plan
// state. Coercing such a value silently could hide data loss, so the whole
// serialization fails instead.
var ErrSerializationInvariant = errors.New("non-primitive value in serialized state")

// InstrumentResolver reconstructs an instrument driver from its serialized
// identity. The capability string is the tag recorded at save time; settings
// and positions are the saved values for the node.
type InstrumentResolver func(capability, name, adapter string, settings map[string]any, positions []float64) (instrument.Instrument, error)

// Serialize renders the subtree as nested maps of primitives, suitable for
// YAML or JSON encoding. Instrument settings are validated against the
// primitive-only invariant.
func (it *Item) Serialize() (map[string]any, error) {
	data := map[string]any{
		"name":          it.name,
		"semaphore":     it.semaphore,
		"checked":       it.checked,
		"item_indices":  slices.Clone(it.indices),
		"final_indices": slices.Clone(it.final),
	}

	if it.binding != nil {
		if err := checkPrimitiveMap(it.binding.Settings, "settings"); err != nil {
			return nil, err
		}

		data["instrument"] = map[string]any{
			"name":       it.binding.Instrument.Name(),
			"adapter":    it.binding.Instrument.Adapter(),
			"capability": it.binding.Capability.String(),
			"settings":   it.binding.Settings,
			"positions":  slices.Clone(it.binding.Positions),
		}
	}

	if len(it.children) > 0 {
		children := make([]any, 0, len(it.children))

		for _, child := range it.children {
			cd, err := child.Serialize()
			if err != nil {
				return nil, err
			}

			children = append(children, cd)
		}

		data["child_items"] = children
	}

	return data, nil
}

// Deserialize rebuilds a subtree from the output of Serialize. Instrument
// nodes are resolved through the given resolver; a nil resolver fails on the
// first instrument node encountered.
func Deserialize(data map[string]any, resolve InstrumentResolver) (*Item, error) {
	it := NewItem(asString(data["name"]))
	it.semaphore = asString(data["semaphore"])
	it.checked, _ = data["checked"].(bool)

	indices, err := asIntSlice(data["item_indices"])
	if err != nil {
		return nil, fmt.Errorf("item_indices of %q: %w", it.name, err)
	}

	final, err := asIntSlice(data["final_indices"])
	if err != nil {
		return nil, fmt.Errorf("final_indices of %q: %w", it.name, err)
	}

	it.indices = indices
	it.final = final

	if raw, ok := data["instrument"].(map[string]any); ok {
		if resolve == nil {
			return nil, fmt.Errorf("node %q carries an instrument but no resolver was given", it.name)
		}

		positions, err := asFloatSlice(raw["positions"])
		if err != nil {
			return nil, fmt.Errorf("positions of %q: %w", it.name, err)
		}

		settings, _ := raw["settings"].(map[string]any)

		instr, err := resolve(asString(raw["capability"]), asString(raw["name"]), asString(raw["adapter"]), settings, positions)
		if err != nil {
			return nil, fmt.Errorf("resolving instrument for %q: %w", it.name, err)
		}

		it.binding = &Binding{
			Instrument: instr,
			Capability: instrument.Classify(instr),
			Positions:  positions,
			Settings:   settings,
		}
	}

	if rawChildren, ok := data["child_items"].([]any); ok {
		for i, rc := range rawChildren {
			cd, ok := rc.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("child %d of %q is not a map", i, it.name)
			}

			child, err := Deserialize(cd, resolve)
			if err != nil {
				return nil, err
			}

			it.AddChild(child)
		}
	}

	return it, nil
}

// checkPrimitive accepts plain scalars and containers of plain scalars.
// Anything else, a struct, a typed array, a channel, fails the invariant.
func checkPrimitive(v any, path string) error {
	switch tv := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []string, []int, []int64, []float64, []bool:
		return nil
	case []any:
		for i, e := range tv {
			if err := checkPrimitive(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}

		return nil
	case map[string]any:
		return checkPrimitiveMap(tv, path)
	default:
		return fmt.Errorf("%w: %s holds %T", ErrSerializationInvariant, path, v)
	}
}

func checkPrimitiveMap(m map[string]any, path string) error {
	for k, v := range m {
		if err := checkPrimitive(v, path+"."+k); err != nil {
			return err
		}
	}

	return nil
}

func asString(v any) string {
	s, _ := v.(string)

	return s
}

func asIntSlice(v any) ([]int, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return slices.Clone(tv), nil
	case []any:
		out := make([]int, len(tv))

		for i, e := range tv {
			n, err := asInt(e)
			if err != nil {
				return nil, err
			}

			out[i] = n
		}

		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of integers, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch tv := v.(type) {
	case int:
		return tv, nil
	case int64:
		return int(tv), nil
	case uint64:
		return int(tv), nil
	case float64:
		return int(tv), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func asFloatSlice(v any) ([]float64, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return slices.Clone(tv), nil
	case []any:
		out := make([]float64, len(tv))

		for i, e := range tv {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			case int64:
				out[i] = float64(n)
			case uint64:
				out[i] = float64(n)
			default:
				return nil, fmt.Errorf("expected a number, got %T", e)
			}
		}

		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of numbers, got %T", v)
	}
}
