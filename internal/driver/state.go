// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when a state change is not allowed by the
// machine's transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// ScanState is the lifecycle state of one scan.
type ScanState int

const (
	// ScanQueued means the scan is registered but not started.
	ScanQueued ScanState = iota
	// ScanStarting means instruments are being connected.
	ScanStarting
	// ScanRunning means the batch loop is executing.
	ScanRunning
	// ScanPaused means the loop is suspended between batches.
	ScanPaused
	// ScanCompleting means the tree is exhausted and instruments are being
	// shut down.
	ScanCompleting
	// ScanCompleted is terminal: every item ran to its final indices.
	ScanCompleted
	// ScanAborted is terminal: stopped by a cancellation token.
	ScanAborted
	// ScanFailed is terminal: an operation raised an error.
	ScanFailed
)

// String returns the state's display name.
func (s ScanState) String() string {
	switch s {
	case ScanQueued:
		return "queued"
	case ScanStarting:
		return "starting"
	case ScanRunning:
		return "running"
	case ScanPaused:
		return "paused"
	case ScanCompleting:
		return "completing"
	case ScanCompleted:
		return "completed"
	case ScanAborted:
		return "aborted"
	case ScanFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s ScanState) IsTerminal() bool {
	return s == ScanCompleted || s == ScanAborted || s == ScanFailed
}

var scanTransitions = map[ScanState][]ScanState{
	ScanQueued:     {ScanStarting, ScanAborted, ScanFailed},
	ScanStarting:   {ScanRunning, ScanAborted, ScanFailed},
	ScanRunning:    {ScanPaused, ScanCompleting, ScanAborted, ScanFailed},
	ScanPaused:     {ScanRunning, ScanAborted, ScanFailed},
	ScanCompleting: {ScanCompleted, ScanAborted, ScanFailed},
}

// ItemState is the lifecycle state of one tree item within a scan.
type ItemState int

const (
	// ItemPending means the item has not been batched yet.
	ItemPending ItemState = iota
	// ItemInProgress means a worker is executing the item.
	ItemInProgress
	// ItemCompleted means the item reached its final indices.
	ItemCompleted
	// ItemFailed means the item's last step returned an error.
	ItemFailed
)

// String returns the state's display name.
func (s ItemState) String() string {
	switch s {
	case ItemPending:
		return "pending"
	case ItemInProgress:
		return "in_progress"
	case ItemCompleted:
		return "completed"
	case ItemFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var itemTransitions = map[ItemState][]ItemState{
	ItemPending:    {ItemInProgress, ItemFailed},
	ItemInProgress: {ItemPending, ItemCompleted, ItemFailed},
}

// Transition records one accepted state change.
type Transition[S fmt.Stringer] struct {
	From S
	To   S
	At   time.Time
}

// Machine is a thread-safe state machine with an explicit transition table
// and a change history.
type Machine[S interface {
	comparable
	fmt.Stringer
}] struct {
	mu          sync.Mutex
	current     S
	transitions map[S][]S
	history     []Transition[S]
	onChange    func(from, to S)
}

// NewMachine creates a machine in the given initial state. onChange, when
// non-nil, is invoked synchronously after each accepted transition.
func NewMachine[S interface {
	comparable
	fmt.Stringer
}](initial S, transitions map[S][]S, onChange func(from, to S)) *Machine[S] {
	return &Machine[S]{
		current:     initial,
		transitions: transitions,
		onChange:    onChange,
	}
}

// Current returns the machine's present state.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// Transition moves the machine to the target state, or returns
// ErrInvalidTransition when the table does not allow it.
func (m *Machine[S]) Transition(to S) error {
	m.mu.Lock()

	allowed := m.transitions[m.current]
	if !slices.Contains(allowed, to) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, to)
		m.mu.Unlock()

		return err
	}

	from := m.current
	m.current = to
	m.history = append(m.history, Transition[S]{From: from, To: to, At: time.Now()})
	onChange := m.onChange

	m.mu.Unlock()

	if onChange != nil {
		onChange(from, to)
	}

	return nil
}

// History returns the accepted transitions in order.
func (m *Machine[S]) History() []Transition[S] {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.history)
}

// NewScanMachine creates the per-scan state machine.
func NewScanMachine(onChange func(from, to ScanState)) *Machine[ScanState] {
	return NewMachine(ScanQueued, scanTransitions, onChange)
}

// NewItemMachine creates the per-item state machine. An item may return from
// ItemInProgress to ItemPending, because one batch advances it by a single
// step and later batches pick it up again.
func NewItemMachine(onChange func(from, to ItemState)) *Machine[ItemState] {
	return NewMachine(ItemPending, itemTransitions, onChange)
}
