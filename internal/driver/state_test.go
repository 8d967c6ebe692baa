// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMachine_HappyPath(t *testing.T) {
	m := NewScanMachine(nil)

	require.NoError(t, m.Transition(ScanStarting))
	require.NoError(t, m.Transition(ScanRunning))
	require.NoError(t, m.Transition(ScanPaused))
	require.NoError(t, m.Transition(ScanRunning))
	require.NoError(t, m.Transition(ScanCompleting))
	require.NoError(t, m.Transition(ScanCompleted))

	assert.True(t, m.Current().IsTerminal())

	history := m.History()
	require.Len(t, history, 6)
	assert.Equal(t, ScanQueued, history[0].From)
	assert.Equal(t, ScanCompleted, history[5].To)
}

func TestScanMachine_RejectsIllegalTransitions(t *testing.T) {
	m := NewScanMachine(nil)

	err := m.Transition(ScanCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ScanQueued, m.Current())

	require.NoError(t, m.Transition(ScanAborted))
	assert.ErrorIs(t, m.Transition(ScanRunning), ErrInvalidTransition)
}

func TestScanMachine_NotifiesOnChange(t *testing.T) {
	var got []ScanState

	m := NewScanMachine(func(_, to ScanState) {
		got = append(got, to)
	})

	require.NoError(t, m.Transition(ScanStarting))
	require.NoError(t, m.Transition(ScanFailed))

	assert.Equal(t, []ScanState{ScanStarting, ScanFailed}, got)
}

func TestItemMachine_StepCycle(t *testing.T) {
	m := NewItemMachine(nil)

	// One batch advances the item a single step; it goes back to pending
	// until a later batch completes it.
	require.NoError(t, m.Transition(ItemInProgress))
	require.NoError(t, m.Transition(ItemPending))
	require.NoError(t, m.Transition(ItemInProgress))
	require.NoError(t, m.Transition(ItemCompleted))

	assert.ErrorIs(t, m.Transition(ItemInProgress), ErrInvalidTransition)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "running", ScanRunning.String())
	assert.Equal(t, "aborted", ScanAborted.String())
	assert.Equal(t, "in_progress", ItemInProgress.String())
	assert.Equal(t, "unknown", ScanState(42).String())
}
