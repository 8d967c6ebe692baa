// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/oscilla-lab/scantree/internal/progress"
)

// Runner manages the TUI program and its progress event integration.
type Runner struct {
	model    *Model
	program  *tea.Program
	reporter *Reporter
	mutex    sync.Mutex
}

// Reporter implements progress.Reporter by forwarding events into the
// running tea program.
type Reporter struct {
	program *tea.Program
	closed  bool
	mutex   sync.RWMutex
}

// NewReporter creates a reporter bound to a tea program.
func NewReporter(program *tea.Program) *Reporter {
	return &Reporter{program: program}
}

// Report implements progress.Reporter.
func (r *Reporter) Report(event progress.Event) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.closed || r.program == nil {
		return
	}

	r.program.Send(EventMsg{Event: event})
}

// Close implements progress.Reporter.
func (r *Reporter) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed = true
}

// NewRunner creates a TUI runner.
func NewRunner(ctx context.Context) *Runner {
	model := NewModel(ctx)
	program := tea.NewProgram(model, tea.WithAltScreen())
	reporter := NewReporter(program)

	return &Runner{
		model:    model,
		program:  program,
		reporter: reporter,
	}
}

// GetReporter returns the progress reporter feeding this TUI.
func (r *Runner) GetReporter() progress.Reporter {
	return r.reporter
}

// Run starts the TUI and executes the given scan function. It returns the
// scan error once both the scan and the TUI have finished. After the scan
// completes the TUI stays up until the user quits, so results remain
// visible.
func (r *Runner) Run(ctx context.Context, scanFn func(context.Context) error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	scanDone := make(chan error, 1)

	go func() {
		defer close(scanDone)

		scanDone <- scanFn(ctx)
	}()

	tuiDone := make(chan error, 1)

	go func() {
		_, err := r.program.Run()
		tuiDone <- err
	}()

	var scanErr error

	select {
	case scanErr = <-scanDone:
		// Scan finished first: show the outcome and wait for the user to
		// quit the TUI.
		r.program.Send(ScanDoneMsg{Err: scanErr})
		<-tuiDone

		r.reporter.Close()

	case <-tuiDone:
		// User quit while the scan was still running. Stop feeding events
		// and wait for the scan to wind down or the context to end.
		r.reporter.Close()

		select {
		case scanErr = <-scanDone:
		case <-ctx.Done():
			scanErr = ctx.Err()
		}

	case <-ctx.Done():
		r.reporter.Close()
		r.program.Quit()

		select {
		case scanErr = <-scanDone:
		default:
			scanErr = ctx.Err()
		}

		<-tuiDone
	}

	return scanErr
}
