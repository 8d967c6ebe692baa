// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config loads scan plans from YAML or HCL files and builds the
// executable tree out of them. Instruments are declared once, with a
// registry type string, and referenced by id from the items that use them,
// so several items can share one driver instance.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/instrumentregistry"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

var (
	// ErrNoScan is returned when a plan file contains no scan definition.
	ErrNoScan = errors.New("no scan defined")
	// ErrTooManyScans is returned when a plan file defines more than one scan.
	ErrTooManyScans = errors.New("more than one scan defined")
	// ErrUnknownInstrumentRef is returned when an item references an
	// instrument id that is not declared.
	ErrUnknownInstrumentRef = errors.New("unknown instrument reference")
	// ErrDuplicateInstrumentID is returned when two instrument declarations
	// share an id.
	ErrDuplicateInstrumentID = errors.New("duplicate instrument id")
	// ErrPositionsWithoutInstrument is returned when an item has a position
	// sequence but nothing to move.
	ErrPositionsWithoutInstrument = errors.New("positions given without an instrument")
)

// Plan is the format-agnostic representation of one scan plan file.
type Plan struct {
	Name        string
	Metadata    map[string]string
	Instruments []InstrumentDecl
	Items       []*ItemDecl
}

// InstrumentDecl declares one instrument and the id items refer to it by.
type InstrumentDecl struct {
	ID         string
	Definition instrumentregistry.Definition
}

// ItemDecl declares one tree node.
type ItemDecl struct {
	Name       string
	Instrument string
	Semaphore  string
	Positions  []float64
	Checked    bool
	Items      []*ItemDecl
}

// Validate checks referential integrity and collects every problem found,
// not just the first.
func (p *Plan) Validate() error {
	var merr *multierror.Error

	ids := map[string]bool{}

	for _, decl := range p.Instruments {
		if ids[decl.ID] {
			merr = multierror.Append(merr, fmt.Errorf("%w: %q", ErrDuplicateInstrumentID, decl.ID))
		}

		ids[decl.ID] = true
	}

	var walk func(items []*ItemDecl)
	walk = func(items []*ItemDecl) {
		for _, item := range items {
			if item.Instrument != "" && !ids[item.Instrument] {
				merr = multierror.Append(merr, fmt.Errorf("%w: item %q refers to %q", ErrUnknownInstrumentRef, item.Name, item.Instrument))
			}

			if item.Instrument == "" && len(item.Positions) > 0 {
				merr = multierror.Append(merr, fmt.Errorf("%w: item %q", ErrPositionsWithoutInstrument, item.Name))
			}

			walk(item.Items)
		}
	}

	walk(p.Items)

	return merr.ErrorOrNil()
}

// BuildTree validates the plan, creates each declared instrument once
// through the registry, and assembles the scan tree. Items referencing the
// same instrument id share the driver instance.
func (p *Plan) BuildTree(ctx context.Context) (*scantree.Item, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	instruments := make(map[string]instrument.Instrument, len(p.Instruments))

	for _, decl := range p.Instruments {
		instr, err := instrumentregistry.Create(ctx, decl.Definition)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", decl.ID, err)
		}

		instruments[decl.ID] = instr
	}

	rootName := p.Name
	if rootName == "" {
		rootName = "scan"
	}

	root := scantree.NewItem(rootName)

	for _, decl := range p.Items {
		child, err := buildItem(decl, instruments)
		if err != nil {
			return nil, err
		}

		root.AddChild(child)
	}

	return root, nil
}

func buildItem(decl *ItemDecl, instruments map[string]instrument.Instrument) (*scantree.Item, error) {
	var item *scantree.Item

	if decl.Instrument != "" {
		item = scantree.NewInstrumentItem(instruments[decl.Instrument], decl.Positions)

		if decl.Name != "" {
			item.SetName(decl.Name)
		}
	} else {
		item = scantree.NewItem(decl.Name)
	}

	item.SetSemaphore(decl.Semaphore)

	if decl.Checked {
		item.SetChecked(true, false, false)
	}

	for _, childDecl := range decl.Items {
		child, err := buildItem(childDecl, instruments)
		if err != nil {
			return nil, err
		}

		item.AddChild(child)
	}

	return item, nil
}
