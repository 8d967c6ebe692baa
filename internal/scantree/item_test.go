// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package scantree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/instrument/sim"
)

func newConnectedStage(t *testing.T, name, adapter string) *sim.Stage {
	t.Helper()

	stage := sim.NewStage(name, adapter, 0)
	require.NoError(t, stage.Connect())

	return stage
}

func newConnectedMeter(t *testing.T, name, adapter string) *sim.Meter {
	t.Helper()

	meter := sim.NewMeter(name, adapter)
	require.NoError(t, meter.Connect())

	return meter
}

func TestItemStructure_InsertRemove(t *testing.T) {
	root := NewItem("root")
	a := NewItem("a")
	b := NewItem("b")
	c := NewItem("c")

	assert.True(t, root.InsertChildren(0, a, b))
	assert.True(t, root.InsertChildren(1, c))
	assert.Equal(t, 3, root.ChildCount())
	assert.Same(t, c, root.Child(1))
	assert.Same(t, b, root.LastChild())
	assert.Equal(t, 1, c.ChildNumber())
	assert.Same(t, root, c.Parent())

	// Out-of-bounds edits change nothing and report false.
	assert.False(t, root.InsertChildren(4, NewItem("x")))
	assert.False(t, root.InsertChildren(-1, NewItem("x")))
	assert.False(t, root.RemoveChildren(2, 2))
	assert.False(t, root.RemoveChildren(-1, 1))
	assert.Equal(t, 3, root.ChildCount())

	assert.True(t, root.RemoveChildren(1, 1))
	assert.Equal(t, 2, root.ChildCount())
	assert.Nil(t, c.Parent())
	assert.Nil(t, root.Child(5))
}

func TestItemIsAncestorOf(t *testing.T) {
	leaf := NewItem("leaf")
	mid := NewItem("mid", leaf)
	root := NewItem("root", mid)

	assert.True(t, root.IsAncestorOf(leaf))
	assert.True(t, mid.IsAncestorOf(leaf))
	assert.False(t, leaf.IsAncestorOf(root))
	assert.False(t, root.IsAncestorOf(root))
}

func TestMovementOdometer_WrapsToZero(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	item := NewInstrumentItem(stage, []float64{0, 5, 10})
	ctx := context.Background()

	require.Equal(t, []int{0}, item.ItemIndices())
	require.Equal(t, []int{2}, item.FinalIndices())

	// The increment runs before the position lookup, so the first call
	// lands on positions[1]; positions[0] is never visited.
	_, ok, err := item.MoveNext(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1}, item.ItemIndices())

	_, ok, err = item.MoveNext(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{2}, item.ItemIndices())
	assert.True(t, item.Finished())

	pos, err := stage.Position()
	require.NoError(t, err)
	assert.InDelta(t, 10, pos, 1e-9)

	// One more call wraps the odometer back to zero and reports false
	// without moving the stage.
	_, ok, err = item.MoveNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int{0}, item.ItemIndices())
	assert.False(t, item.Finished())
	assert.Equal(t, []float64{5, 10}, stage.Moves)
}

func TestMeasurementMoveNext_ReturnsTable(t *testing.T) {
	defer goleak.VerifyNone(t)

	meter := newConnectedMeter(t, "LockIn", "visa://GPIB0::12")
	item := NewInstrumentItem(meter, nil)

	assert.False(t, item.Finished())

	table, ok, err := item.MoveNext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, table)
	assert.Equal(t, []string{"X (V)", "Y (V)"}, table.Columns)
	assert.Equal(t, 1, table.NumRows())
	assert.Equal(t, []int{1}, item.ItemIndices())
	assert.True(t, item.Finished())
}

func TestMoveNext_NoInstrumentReportsFalse(t *testing.T) {
	item := NewItem("group")

	table, ok, err := item.MoveNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, table)
}

func TestMoveNext_LazyInitAppliesSettings(t *testing.T) {
	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	require.NoError(t, stage.ApplySettings(map[string]any{"speed": 2.5}))

	item := NewInstrumentItem(stage, []float64{0, 1})

	// Drift the live settings after the item snapshotted them; the first
	// MoveNext restores the snapshot.
	require.NoError(t, stage.ApplySettings(map[string]any{"speed": 99.0}))

	_, ok, err := item.MoveNext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"speed": 2.5}, stage.Settings())
}

func TestMoveNext_InitializeFailureSurfaces(t *testing.T) {
	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	item := NewInstrumentItem(stage, []float64{0, 1})

	_, ok, err := item.MoveNext(context.Background())
	require.ErrorIs(t, err, sim.ErrNotConnected)
	assert.False(t, ok)
	assert.False(t, item.Finished())
}

func TestFinished_ContainerDerivesFromChildren(t *testing.T) {
	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	moveItem := NewInstrumentItem(stage, []float64{0, 5, 10})
	group := NewItem("group", moveItem)
	root := NewItem("root", group)

	// Empty containers count as finished; unfinished descendants do not.
	assert.True(t, NewItem("empty").Finished())
	assert.False(t, group.Finished())
	assert.False(t, root.Finished())

	ctx := context.Background()
	_, _, err := moveItem.MoveNext(ctx)
	require.NoError(t, err)
	assert.False(t, root.Finished())

	_, _, err = moveItem.MoveNext(ctx)
	require.NoError(t, err)
	assert.True(t, moveItem.Finished())
	assert.True(t, group.Finished())
	assert.True(t, root.Finished())
}

func TestResetIndices_Recursive(t *testing.T) {
	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	meter := newConnectedMeter(t, "LockIn", "visa://GPIB0::12")
	measItem := NewInstrumentItem(meter, nil)
	moveItem := NewInstrumentItem(stage, []float64{0, 5})
	moveItem.AddChild(measItem)
	root := NewItem("root", moveItem)

	ctx := context.Background()
	_, _, err := moveItem.MoveNext(ctx)
	require.NoError(t, err)
	_, _, err = measItem.MoveNext(ctx)
	require.NoError(t, err)

	root.ResetIndices()
	assert.Equal(t, []int{0}, moveItem.ItemIndices())
	assert.Equal(t, []int{0}, measItem.ItemIndices())
	assert.False(t, moveItem.Finished())
}

func TestMovementAdvance_ReArmsChildren(t *testing.T) {
	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	meter := newConnectedMeter(t, "LockIn", "visa://GPIB0::12")
	measItem := NewInstrumentItem(meter, nil)
	moveItem := NewInstrumentItem(stage, []float64{0, 5})
	moveItem.AddChild(measItem)

	ctx := context.Background()
	_, _, err := measItem.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, measItem.Finished())

	// Advancing the parent movement re-arms the subtree below it, so
	// the measurement runs again at the new position.
	_, ok, err := moveItem.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{0}, measItem.ItemIndices())
	assert.False(t, measItem.Finished())
}

func TestCheckedState_TriState(t *testing.T) {
	a := NewItem("a")
	b := NewItem("b")
	group := NewItem("group", a, b)

	assert.Equal(t, Unchecked, group.GetCheckState())

	a.SetChecked(true, false, true)
	assert.Equal(t, PartiallyChecked, group.GetCheckState())
	assert.True(t, group.IsChecked(), "checking a child selects the path to it")

	b.SetChecked(true, false, false)
	assert.Equal(t, Checked, group.GetCheckState())

	group.SetChecked(false, true, false)
	assert.Equal(t, Unchecked, group.GetCheckState())
	assert.False(t, a.IsChecked())
	assert.False(t, b.IsChecked())
}

func TestCheckedState_UncheckNeverPropagatesUp(t *testing.T) {
	leaf := NewItem("leaf")
	group := NewItem("group", leaf)

	leaf.SetChecked(true, false, true)
	require.True(t, group.IsChecked())

	// Clearing the last checked child leaves the parent's own flag set.
	leaf.SetChecked(false, false, true)
	assert.True(t, group.IsChecked())
	assert.Equal(t, Unchecked, group.GetCheckState(), "derived state still follows the children")
}

func TestSerializeRoundTrip(t *testing.T) {
	stage := newConnectedStage(t, "XStage", "visa://GPIB0::10")
	meter := newConnectedMeter(t, "LockIn", "visa://GPIB0::12")

	measItem := NewInstrumentItem(meter, nil)
	moveItem := NewInstrumentItem(stage, []float64{0, 5, 10})
	moveItem.SetSemaphore("pair")
	moveItem.AddChild(measItem)
	root := NewItem("root", moveItem)
	moveItem.SetChecked(true, true, false)

	_, _, err := moveItem.MoveNext(context.Background())
	require.NoError(t, err)

	data, err := root.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data, func(capability, name, adapter string, settings map[string]any, positions []float64) (instrument.Instrument, error) {
		if capability == instrument.CapabilityMovement.String() {
			return sim.NewStage(name, adapter, 0), nil
		}

		return sim.NewMeter(name, adapter), nil
	})
	require.NoError(t, err)

	assert.Equal(t, "root", restored.Name())
	require.Equal(t, 1, restored.ChildCount())

	rm := restored.Child(0)
	assert.Equal(t, "XStage", rm.Name())
	assert.Equal(t, "pair", rm.Semaphore())
	assert.True(t, rm.IsChecked())
	assert.Equal(t, []int{1}, rm.ItemIndices())
	assert.Equal(t, []int{2}, rm.FinalIndices())
	assert.Equal(t, instrument.CapabilityMovement.String(), rm.TypeTag())
	assert.Equal(t, []float64{0, 5, 10}, rm.Binding().Positions)

	require.Equal(t, 1, rm.ChildCount())
	assert.Equal(t, instrument.CapabilityMeasurement.String(), rm.Child(0).TypeTag())
	assert.Equal(t, "visa://GPIB0::12", rm.Child(0).AdapterID())
}

func TestMovementAdvance_RestoredIndicesOutOfRange(t *testing.T) {
	// A saved plan can carry final_indices pointing past the position
	// list. Advancing such an item must surface an error instead of
	// indexing past the end.
	data := map[string]any{
		"name":          "XStage",
		"item_indices":  []any{0},
		"final_indices": []any{5},
		"instrument": map[string]any{
			"name":       "XStage",
			"adapter":    "visa://GPIB0::10",
			"capability": instrument.CapabilityMovement.String(),
			"positions":  []any{0.0, 5.0, 10.0},
		},
	}

	item, err := Deserialize(data, func(capability, name, adapter string, settings map[string]any, positions []float64) (instrument.Instrument, error) {
		stage := sim.NewStage(name, adapter, 0)
		if err := stage.Connect(); err != nil {
			return nil, err
		}

		return stage, nil
	})
	require.NoError(t, err)

	ctx := context.Background()

	// Positions 5 and 10 are still reachable.
	for range 2 {
		_, ok, err := item.MoveNext(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, ok, err := item.MoveNext(ctx)
	require.ErrorIs(t, err, ErrPositionOutOfRange)
	assert.False(t, ok)
	assert.Equal(t, []int{3}, item.ItemIndices())
}

type arrayReportingStage struct {
	*sim.Stage
}

func (a *arrayReportingStage) Settings() map[string]any {
	return map[string]any{"calibration": [3]float64{1, 2, 3}}
}

func TestSerialize_RejectsNonPrimitiveSettings(t *testing.T) {
	stage := &arrayReportingStage{Stage: sim.NewStage("XStage", "visa://GPIB0::10", 0)}
	item := NewInstrumentItem(stage, []float64{0, 1})
	root := NewItem("root", item)

	_, err := root.Serialize()
	require.ErrorIs(t, err, ErrSerializationInvariant)
}
