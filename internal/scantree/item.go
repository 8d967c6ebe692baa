// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package scantree

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/instrument"
)

// ErrPositionOutOfRange is returned when a movement's index sequence points
// past the end of its position list, which only happens when indices were
// restored from an inconsistent saved plan.
var ErrPositionOutOfRange = errors.New("position index out of range")

// Binding attaches one instrument driver to a tree item, together with the
// position sequence a Movement steps through and the settings applied to the
// driver on first execution.
type Binding struct {
	Instrument instrument.Instrument
	Capability instrument.Capability
	Positions  []float64
	Settings   map[string]any
}

// NewBinding classifies the instrument once and snapshots its settings.
func NewBinding(instr instrument.Instrument, positions []float64) *Binding {
	return &Binding{
		Instrument: instr,
		Capability: instrument.Classify(instr),
		Positions:  slices.Clone(positions),
		Settings:   instr.Settings(),
	}
}

// Item is one node of a scan plan. An item without a binding is a container:
// it executes nothing itself and its completeness is derived from its
// children. An item with a binding executes its instrument when scheduled.
//
// Items are not safe for concurrent mutation. The execution driver only
// mutates the tree structure between batches, and the compatibility rules
// guarantee each item is driven by at most one worker at a time.
type Item struct {
	name      string
	semaphore string
	checked   bool
	nodeID    string

	parent   *Item
	children []*Item

	binding *Binding

	indices     []int
	final       []int
	initialized bool
}

// NewItem creates a container item.
func NewItem(name string, children ...*Item) *Item {
	it := &Item{
		name:   name,
		nodeID: uuid.NewString(),
	}
	it.InsertChildren(0, children...)

	return it
}

// NewInstrumentItem creates an item executing the given instrument. For a
// Movement the positions sequence is the path it steps through; for other
// capabilities positions may be nil.
func NewInstrumentItem(instr instrument.Instrument, positions []float64) *Item {
	it := &Item{
		name:    instr.Name(),
		nodeID:  uuid.NewString(),
		binding: NewBinding(instr, positions),
	}

	switch it.binding.Capability {
	case instrument.CapabilityMovement:
		it.indices = []int{0}
		it.final = []int{max(len(positions)-1, 0)}
	case instrument.CapabilityMeasurement:
		it.indices = []int{0}
		it.final = []int{1}
	}

	return it
}

// Name returns the item's display name.
func (it *Item) Name() string { return it.name }

// SetName replaces the item's display name.
func (it *Item) SetName(name string) { it.name = name }

// Semaphore returns the item's compatibility label, empty when unset.
func (it *Item) Semaphore() string { return it.semaphore }

// SetSemaphore assigns the compatibility label. Items sharing a label are
// explicitly co-scheduled even across capability boundaries.
func (it *Item) SetSemaphore(label string) { it.semaphore = label }

// Binding returns the attached instrument binding, nil for containers.
func (it *Item) Binding() *Binding { return it.binding }

// TypeTag returns the capability tag used by the batching rules. Containers
// have no tag and are transparent to the type-conflict rule.
func (it *Item) TypeTag() string {
	if it.binding == nil {
		return ""
	}

	return it.binding.Capability.String()
}

// AdapterID returns the bound instrument's connection address, empty for
// containers.
func (it *Item) AdapterID() string {
	if it.binding == nil {
		return ""
	}

	return it.binding.Instrument.Adapter()
}

// UniqueID identifies the item within one scheduling round. It embeds the
// instrument name and adapter so log lines stay readable.
func (it *Item) UniqueID() string {
	if it.binding == nil {
		return fmt.Sprintf("%s #%s", it.name, it.nodeID)
	}

	return fmt.Sprintf("%s (%s) #%s", it.binding.Instrument.Name(), it.binding.Instrument.Adapter(), it.nodeID)
}

// Parent returns the item's parent, nil for the root.
func (it *Item) Parent() *Item { return it.parent }

// ChildCount returns the number of direct children.
func (it *Item) ChildCount() int { return len(it.children) }

// Child returns the child at the given row, or nil when out of range.
func (it *Item) Child(row int) *Item {
	if row < 0 || row >= len(it.children) {
		return nil
	}

	return it.children[row]
}

// Children returns the direct children in order.
func (it *Item) Children() []*Item { return slices.Clone(it.children) }

// LastChild returns the final child, or nil when the item has none.
func (it *Item) LastChild() *Item {
	if len(it.children) == 0 {
		return nil
	}

	return it.children[len(it.children)-1]
}

// ChildNumber returns the item's row within its parent, zero for the root.
func (it *Item) ChildNumber() int {
	if it.parent == nil {
		return 0
	}

	return slices.Index(it.parent.children, it)
}

// InsertChildren inserts items at the given row. It returns false, changing
// nothing, when the row is out of bounds.
func (it *Item) InsertChildren(row int, items ...*Item) bool {
	if row < 0 || row > len(it.children) {
		return false
	}

	for _, child := range items {
		child.parent = it
	}

	it.children = slices.Insert(it.children, row, items...)

	return true
}

// AddChild appends one child.
func (it *Item) AddChild(child *Item) bool {
	return it.InsertChildren(len(it.children), child)
}

// RemoveChildren detaches count children starting at row. It returns false,
// changing nothing, when the range is out of bounds.
func (it *Item) RemoveChildren(row, count int) bool {
	if row < 0 || count < 0 || row+count > len(it.children) {
		return false
	}

	for _, child := range it.children[row : row+count] {
		child.parent = nil
	}

	it.children = slices.Delete(it.children, row, row+count)

	return true
}

// IsAncestorOf reports whether the item appears on other's parent chain.
func (it *Item) IsAncestorOf(other *Item) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == it {
			return true
		}
	}

	return false
}

// ItemIndices returns a copy of the current progress indices.
func (it *Item) ItemIndices() []int { return slices.Clone(it.indices) }

// FinalIndices returns a copy of the indices at which the item is complete.
func (it *Item) FinalIndices() []int { return slices.Clone(it.final) }

// SetIndices replaces both index vectors, used when restoring saved state.
func (it *Item) SetIndices(indices, final []int) {
	it.indices = slices.Clone(indices)
	it.final = slices.Clone(final)
}

// ResetIndices rewinds the item and, recursively, all of its children to the
// start of their position sequences.
func (it *Item) ResetIndices() {
	for i := range it.indices {
		it.indices[i] = 0
	}

	for _, child := range it.children {
		child.ResetIndices()
	}
}

// Finished reports whether the item has completed all of its execution
// steps. A container is finished when every child is finished. An instrument
// item is finished once its instrument has been initialized at runtime and
// its indices have reached the final indices; its children are deliberately
// not considered.
func (it *Item) Finished() bool {
	if it.binding == nil {
		for _, child := range it.children {
			if !child.Finished() {
				return false
			}
		}

		return true
	}

	return it.initialized && slices.Equal(it.indices, it.final)
}

func (it *Item) firstUnfinishedChild() *Item {
	for _, child := range it.children {
		if !child.Finished() {
			return child
		}
	}

	return nil
}

// MoveNext advances the item by one execution step.
//
// On the first call for an instrument item the instrument is initialized and
// the item's stored settings are applied. A Movement then advances its index
// odometer and drives the instrument to the corresponding position; when the
// odometer wraps, the indices return to zero and MoveNext reports false
// without moving. A Measurement performs one acquisition and returns the
// resulting table.
//
// An item with no instrument has nothing to execute: MoveNext logs a warning
// and reports false. That is not an error; the driver decides what it means.
func (it *Item) MoveNext(ctx context.Context) (*instrument.Table, bool, error) {
	log := ctxlog.Logger(ctx)

	if it.binding == nil {
		log.Warn("item has no instrument to execute", "item", it.UniqueID())

		return nil, false, nil
	}

	if !it.initialized {
		if err := it.binding.Instrument.Initialize(); err != nil {
			return nil, false, fmt.Errorf("initializing %q: %w", it.UniqueID(), err)
		}

		if len(it.binding.Settings) > 0 {
			if err := it.binding.Instrument.ApplySettings(it.binding.Settings); err != nil {
				return nil, false, fmt.Errorf("applying settings to %q: %w", it.UniqueID(), err)
			}
		}

		it.initialized = true
	}

	switch it.binding.Capability {
	case instrument.CapabilityMovement:
		advanced, err := it.advanceMovement(ctx)

		return nil, advanced, err
	case instrument.CapabilityMeasurement:
		table, err := it.performMeasurement()
		if err != nil {
			return nil, false, err
		}

		return table, true, nil
	default:
		log.Warn("instrument has no executable capability", "item", it.UniqueID())

		return nil, false, nil
	}
}

// advanceMovement steps the index odometer from the last axis towards the
// first. The increment returns after the first axis that advances, so with
// the position lookup keyed on that axis the pattern is effectively
// single-axis. This mirrors long-standing behaviour that saved plans depend
// on; do not rewrite it as a conventional least-significant-first carry.
func (it *Item) advanceMovement(ctx context.Context) (bool, error) {
	mov := it.binding.Instrument.(instrument.Movement)

	if len(it.indices) == 0 {
		return false, nil
	}

	for i := len(it.indices) - 1; i >= 0; i-- {
		if it.indices[i] < it.final[i] {
			it.indices[i]++

			if it.indices[i] >= len(it.binding.Positions) {
				return false, fmt.Errorf("%w: %q index %d with %d positions",
					ErrPositionOutOfRange, it.UniqueID(), it.indices[i], len(it.binding.Positions))
			}

			pos := it.binding.Positions[it.indices[i]]

			ctxlog.Debug(ctx, "moving", "item", it.UniqueID(), "position", pos)

			if err := mov.SetPosition(pos); err != nil {
				return false, fmt.Errorf("moving %q: %w", it.UniqueID(), err)
			}

			// Children execute once per parent position: a successful move
			// re-arms the whole subtree below this item.
			for _, child := range it.children {
				child.ResetIndices()
			}

			return true, nil
		}

		it.indices[i] = 0
	}

	return false, nil
}

func (it *Item) performMeasurement() (*instrument.Table, error) {
	meas := it.binding.Instrument.(instrument.Measurement)

	rows, err := meas.PerformMeasurement()
	if err != nil {
		return nil, fmt.Errorf("measuring %q: %w", it.UniqueID(), err)
	}

	table, err := instrument.NewTable(meas.DataColumns(), meas.DataUnits(), rows)
	if err != nil {
		return nil, fmt.Errorf("tabulating %q: %w", it.UniqueID(), err)
	}

	if len(it.indices) > 0 {
		it.indices[len(it.indices)-1] = 1
	}

	return table, nil
}
