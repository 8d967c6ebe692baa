// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/instrument/sim"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

func TestScanRun_MovementAndMeasurementSiblings(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	meter := sim.NewMeter("LockIn", "visa://GPIB0::12")

	moveItem := scantree.NewInstrumentItem(stage, []float64{0, 5, 10})
	measItem := scantree.NewInstrumentItem(meter, nil)
	root := scantree.NewItem("root", moveItem, measItem)

	sink := NewMemorySink()
	scan := NewScan("siblings", root, WithDriverOptions(WithSink(sink)))

	require.NoError(t, scan.Run(context.Background()))
	assert.Equal(t, ScanCompleted, scan.State())

	// The type-conflict rule keeps the movement and the measurement in
	// separate batches, yet both run to completion.
	assert.True(t, moveItem.Finished())
	assert.True(t, measItem.Finished())
	assert.Equal(t, []float64{5, 10}, stage.Moves)
	assert.Equal(t, 1, meter.MeasurementCount())

	tables := sink.TablesFor(measItem)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"X (V)", "Y (V)"}, tables[0].Table.Columns)
}

func TestScanRun_MeasurementNestedUnderMovement(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	meter := sim.NewMeter("LockIn", "visa://GPIB0::12")

	measItem := scantree.NewInstrumentItem(meter, nil)
	moveItem := scantree.NewInstrumentItem(stage, []float64{0, 2, 4})
	moveItem.AddChild(measItem)
	root := scantree.NewItem("root", moveItem)

	sink := NewMemorySink()
	scan := NewScan("nested", root, WithDriverOptions(WithSink(sink)))

	require.NoError(t, scan.Run(context.Background()))
	assert.Equal(t, ScanCompleted, scan.State())
	assert.True(t, root.Finished())

	// Each movement step re-arms the subtree below it, so the nested
	// measurement acquires once at every visited position.
	assert.Equal(t, []float64{2, 4}, stage.Moves)
	assert.Equal(t, 2, meter.MeasurementCount())

	tables := sink.TablesFor(measItem)
	require.Len(t, tables, 2)

	for i, want := range []float64{2, 4} {
		table := tables[i].Table
		require.Equal(t, []string{"X (V)", "Y (V)", "XStage Position (um)"}, table.Columns)
		require.Equal(t, 1, table.NumRows())

		// The row carries the enclosing movement's position at
		// acquisition time.
		assert.InDelta(t, want, table.Rows[0][2], 1e-9)
		assert.Equal(t, []string{"root", "XStage", "LockIn"}, tables[i].ItemPath)
	}
}

func TestScanRun_SemaphorePairsRunInOneBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	meter := sim.NewMeter("LockIn", "visa://GPIB0::12")

	moveItem := scantree.NewInstrumentItem(stage, []float64{0, 5})
	measItem := scantree.NewInstrumentItem(meter, nil)
	moveItem.SetSemaphore("pair")
	measItem.SetSemaphore("pair")
	root := scantree.NewItem("root", moveItem, measItem)

	scan := NewScan("paired", root)

	require.NoError(t, scan.Run(context.Background()))
	assert.True(t, moveItem.Finished())
	assert.True(t, measItem.Finished())
}

func TestScanRun_PauseHoldsBetweenBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	moveItem := scantree.NewInstrumentItem(stage, []float64{0, 5, 10})
	root := scantree.NewItem("root", moveItem)

	scan := NewScan("pausable", root)
	scan.Pause()

	done := make(chan error, 1)

	go func() {
		done <- scan.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return scan.State() == ScanPaused
	}, time.Second, 5*time.Millisecond)

	// Paused before the first batch: nothing has moved.
	assert.Empty(t, stage.Moves)

	scan.Resume()

	require.NoError(t, <-done)
	assert.Equal(t, ScanCompleted, scan.State())
	assert.Equal(t, []float64{5, 10}, stage.Moves)
}

func TestScanRun_AbortWhilePaused(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	root := scantree.NewItem("root", scantree.NewInstrumentItem(stage, []float64{0, 5}))

	scan := NewScan("abortable", root)
	scan.Pause()

	done := make(chan error, 1)

	go func() {
		done <- scan.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return scan.State() == ScanPaused
	}, time.Second, 5*time.Millisecond)

	scan.Abort("operator stop", cancellation.Hard)

	err := <-done

	var cerr *cancellation.CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "operator stop", cerr.Reason)
	assert.Equal(t, ScanAborted, scan.State())
}

func TestScanRun_AbortBeforeStartSkipsAllBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	root := scantree.NewItem("root", scantree.NewInstrumentItem(stage, []float64{0, 5}))

	scan := NewScan("never-runs", root)
	scan.Abort("queue torn down", cancellation.Soft)

	err := scan.Run(context.Background())

	var cerr *cancellation.CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ScanAborted, scan.State())
	assert.Empty(t, stage.Moves)
}

type failingMeter struct {
	*sim.Meter
}

func (f *failingMeter) PerformMeasurement() ([][]float64, error) {
	return nil, errors.New("detector saturated")
}

func TestScanRun_OperationFailureKeepsSiblingData(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := sim.NewMeter("GoodMeter", "visa://GPIB0::12")
	bad := &failingMeter{Meter: sim.NewMeter("BadMeter", "visa://GPIB0::13")}

	goodItem := scantree.NewInstrumentItem(good, nil)
	badItem := scantree.NewInstrumentItem(bad, nil)
	root := scantree.NewItem("root", goodItem, badItem)

	sink := NewMemorySink()
	scan := NewScan("partial", root, WithDriverOptions(WithSink(sink)))

	err := scan.Run(context.Background())
	require.ErrorContains(t, err, "detector saturated")
	assert.Equal(t, ScanFailed, scan.State())

	// Both meters share a batch; the good one's data survives the
	// sibling's failure.
	require.Len(t, sink.TablesFor(goodItem), 1)
	assert.Empty(t, sink.TablesFor(badItem))
}

func TestScanRun_ConnectFailureFailsBeforeBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	unreachable := &disconnectedMeter{Meter: sim.NewMeter("Ghost", "visa://GPIB0::9")}
	root := scantree.NewItem("root", scantree.NewInstrumentItem(unreachable, nil))

	scan := NewScan("unreachable", root)

	err := scan.Run(context.Background())
	require.ErrorContains(t, err, "Ghost")
	assert.Equal(t, ScanFailed, scan.State())
}

type disconnectedMeter struct {
	*sim.Meter
}

func (d *disconnectedMeter) Connect() error { return nil }

func (d *disconnectedMeter) CheckConnection() bool { return false }

func TestDriverRun_EmptyTreeCompletesImmediately(t *testing.T) {
	root := scantree.NewItem("root")
	d := NewDriver(root)

	completed, err := d.Run(context.Background(), cancellation.NewToken())
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestDriverRun_TracksItemStates(t *testing.T) {
	stage := sim.NewStage("XStage", "visa://GPIB0::10", 0)
	require.NoError(t, stage.Connect())

	moveItem := scantree.NewInstrumentItem(stage, []float64{0, 5, 10})
	root := scantree.NewItem("root", moveItem)

	d := NewDriver(root)
	token := cancellation.NewToken()

	assert.Equal(t, ItemPending, d.ItemState(moveItem))

	completed, err := d.Run(context.Background(), token)
	require.NoError(t, err)
	require.True(t, completed)
	assert.Equal(t, ItemCompleted, d.ItemState(moveItem))
}

func TestQueueRun_SerialScansComplete(t *testing.T) {
	defer goleak.VerifyNone(t)

	stageA := sim.NewStage("A", "visa://GPIB0::1", 0)
	stageB := sim.NewStage("B", "visa://GPIB0::2", 0)

	q := NewQueue()
	scanA := q.NewScan("first", scantree.NewItem("root", scantree.NewInstrumentItem(stageA, []float64{0, 1})))
	scanB := q.NewScan("second", scantree.NewItem("root", scantree.NewInstrumentItem(stageB, []float64{0, 1})))

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, ScanCompleted, scanA.State())
	assert.Equal(t, ScanCompleted, scanB.State())
}

func TestQueueAbort_ReachesEveryScan(t *testing.T) {
	defer goleak.VerifyNone(t)

	stage := sim.NewStage("A", "visa://GPIB0::1", 0)

	q := NewQueue()
	scan := q.NewScan("doomed", scantree.NewItem("root", scantree.NewInstrumentItem(stage, []float64{0, 1})))

	q.Abort("shift over", cancellation.Hard)

	err := q.Run(context.Background())
	require.Error(t, err)
	assert.True(t, scan.Token().IsCancelled())
}

func TestQueueRun_OneFailureDoesNotStopTheOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bad := &failingMeter{Meter: sim.NewMeter("BadMeter", "visa://GPIB0::13")}
	goodStage := sim.NewStage("Good", "visa://GPIB0::1", 0)

	q := NewQueue()
	badScan := q.NewScan("bad", scantree.NewItem("root", scantree.NewInstrumentItem(bad, nil)))
	goodScan := q.NewScan("good", scantree.NewItem("root", scantree.NewInstrumentItem(goodStage, []float64{0, 1})))

	err := q.Run(context.Background())
	require.ErrorContains(t, err, "detector saturated")
	assert.Equal(t, ScanFailed, badScan.State())
	assert.Equal(t, ScanCompleted, goodScan.State())
}
