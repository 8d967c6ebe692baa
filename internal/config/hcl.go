// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/oscilla-lab/scantree/internal/instrumentregistry"
)

// ErrInvalidHCL is returned when a plan file cannot be parsed as HCL.
var ErrInvalidHCL = errors.New("invalid HCL")

type hclFile struct {
	Scans []*hclScan `hcl:"scan,block"`
}

type hclScan struct {
	Name        string            `hcl:"name,label"`
	Metadata    map[string]string `hcl:"metadata,optional"`
	Instruments []*hclInstrument  `hcl:"instrument,block"`
	Items       []*hclItem        `hcl:"item,block"`
}

type hclInstrument struct {
	ID       string    `hcl:"id,label"`
	Type     string    `hcl:"type"`
	Name     string    `hcl:"name,optional"`
	Adapter  string    `hcl:"adapter,optional"`
	Settings cty.Value `hcl:"settings,optional"`
}

type hclItem struct {
	Name       string     `hcl:"name,label"`
	Instrument string     `hcl:"instrument,optional"`
	Semaphore  string     `hcl:"semaphore,optional"`
	Positions  []float64  `hcl:"positions,optional"`
	Checked    bool       `hcl:"checked,optional"`
	Items      []*hclItem `hcl:"item,block"`
}

// ParseHCL decodes one plan from HCL text. filename is used in diagnostics
// only.
func ParseHCL(filename string, data []byte) (*Plan, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHCL, diags.Error())
	}

	var parsed hclFile

	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHCL, diags.Error())
	}

	switch len(parsed.Scans) {
	case 0:
		return nil, ErrNoScan
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s defines %d", ErrTooManyScans, filename, len(parsed.Scans))
	}

	hs := parsed.Scans[0]

	plan := &Plan{
		Name:     hs.Name,
		Metadata: hs.Metadata,
	}

	for _, hi := range hs.Instruments {
		settings, err := ctyToSettings(hi.Settings)
		if err != nil {
			return nil, fmt.Errorf("instrument %q settings: %w", hi.ID, err)
		}

		plan.Instruments = append(plan.Instruments, InstrumentDecl{
			ID: hi.ID,
			Definition: instrumentregistry.Definition{
				Type:     hi.Type,
				Name:     hi.Name,
				Adapter:  hi.Adapter,
				Settings: settings,
			},
		})
	}

	for _, hi := range hs.Items {
		plan.Items = append(plan.Items, convertHCLItem(hi))
	}

	return plan, nil
}

func convertHCLItem(hi *hclItem) *ItemDecl {
	decl := &ItemDecl{
		Name:       hi.Name,
		Instrument: hi.Instrument,
		Semaphore:  hi.Semaphore,
		Positions:  hi.Positions,
		Checked:    hi.Checked,
	}

	for _, child := range hi.Items {
		decl.Items = append(decl.Items, convertHCLItem(child))
	}

	return decl
}

// ctyToSettings converts a decoded settings expression into the plain
// map the instrument factories expect.
func ctyToSettings(v cty.Value) (map[string]any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}

	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}

	out := map[string]any{}

	for key, elem := range v.AsValueMap() {
		gv, err := ctyToGo(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		out[key] = gv
	}

	return out, nil
}

func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	t := v.Type()

	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()

			return int(i), nil
		}

		f, _ := bf.Float64()

		return f, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var out []any

		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()

			gv, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}

			out = append(out, gv)
		}

		return out, nil
	case t.IsObjectType() || t.IsMapType():
		out := map[string]any{}

		for key, elem := range v.AsValueMap() {
			gv, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}

			out[key] = gv
		}

		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
	}
}
