// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package instrument_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/instrument/sim"
)

func TestColumnName(t *testing.T) {
	assert.Equal(t, "X (V)", instrument.ColumnName("X", "V"))
	assert.Equal(t, "X", instrument.ColumnName("X", ""))
}

func TestNewTable_ComposesHeaders(t *testing.T) {
	table, err := instrument.NewTable(
		[]string{"X", "Y", "Phase"},
		[]string{"V", "V"},
		[][]float64{{1, 2, 3}},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"X (V)", "Y (V)", "Phase"}, table.Columns)
	assert.Equal(t, 1, table.NumRows())
}

func TestNewTable_RejectsRaggedRows(t *testing.T) {
	_, err := instrument.NewTable(
		[]string{"X", "Y"},
		[]string{"V", "V"},
		[][]float64{{1, 2}, {3}},
	)
	require.ErrorIs(t, err, instrument.ErrColumnMismatch)
}

func TestTable_AddConstColumn(t *testing.T) {
	table, err := instrument.NewTable(
		[]string{"X"},
		[]string{"V"},
		[][]float64{{1}, {2}},
	)
	require.NoError(t, err)

	table.AddConstColumn("XStage Position (um)", 5)

	assert.Equal(t, []string{"X (V)", "XStage Position (um)"}, table.Columns)
	assert.Equal(t, [][]float64{{1, 5}, {2, 5}}, table.Rows)
}

func TestTable_CSV(t *testing.T) {
	table, err := instrument.NewTable(
		[]string{"X", "Y"},
		[]string{"V", "V"},
		[][]float64{{1, 2}, {3.5, 4}},
	)
	require.NoError(t, err)

	assert.Equal(t, "X (V),Y (V)\n1,2\n3.5,4\n", table.CSV())
}

func TestClassify(t *testing.T) {
	stage := sim.NewStage("XStage", "visa://GPIB0::10", time.Millisecond)
	meter := sim.NewMeter("LockIn", "visa://GPIB0::12")

	assert.Equal(t, instrument.CapabilityMovement, instrument.Classify(stage))
	assert.Equal(t, instrument.CapabilityMeasurement, instrument.Classify(meter))
	assert.Equal(t, instrument.CapabilityUnknown, instrument.Classify(nil))
}
