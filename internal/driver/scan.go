// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/progress"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

// Scan binds one tree to a driver, a cancellation token and a state
// machine, and runs it end to end: connect instruments, loop batches,
// shut down.
type Scan struct {
	name     string
	root     *scantree.Item
	driver   *Driver
	machine  *Machine[ScanState]
	token    *cancellation.Token
	reporter progress.Reporter
	metadata map[string]string

	driverOpts []Option
}

// ScanOption configures a Scan.
type ScanOption func(*Scan)

// WithToken supplies the cancellation token, typically a child of a queue's
// token. Without it the scan creates its own.
func WithToken(t *cancellation.Token) ScanOption {
	return func(s *Scan) {
		s.token = t
	}
}

// WithScanReporter sets the progress event sink for the scan and its driver.
func WithScanReporter(r progress.Reporter) ScanOption {
	return func(s *Scan) {
		s.reporter = r
	}
}

// WithMetadata attaches free-form details such as operator or sample name.
func WithMetadata(md map[string]string) ScanOption {
	return func(s *Scan) {
		s.metadata = md
	}
}

// WithDriverOptions forwards options to the underlying driver.
func WithDriverOptions(opts ...Option) ScanOption {
	return func(s *Scan) {
		s.driverOpts = append(s.driverOpts, opts...)
	}
}

// NewScan creates a scan over the given tree.
func NewScan(name string, root *scantree.Item, opts ...ScanOption) *Scan {
	s := &Scan{
		name:     name,
		root:     root,
		reporter: progress.NewNullReporter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.token == nil {
		s.token = cancellation.NewToken()
	}

	driverOpts := append([]Option{WithReporter(s.reporter)}, s.driverOpts...)
	s.driver = NewDriver(root, driverOpts...)

	s.machine = NewScanMachine(func(_, to ScanState) {
		s.reporter.Report(progress.Event{
			ItemPath:  []string{s.name},
			Type:      progress.EventScanStateChanged,
			Timestamp: time.Now(),
			Data:      progress.EventData{State: to.String()},
		})
	})

	return s
}

// Name returns the scan's display name.
func (s *Scan) Name() string { return s.name }

// Root returns the scan's tree root.
func (s *Scan) Root() *scantree.Item { return s.root }

// State returns the scan's current lifecycle state.
func (s *Scan) State() ScanState { return s.machine.Current() }

// History returns the scan's state transitions so far.
func (s *Scan) History() []Transition[ScanState] { return s.machine.History() }

// Metadata returns the details attached at creation.
func (s *Scan) Metadata() map[string]string { return s.metadata }

// Token exposes the scan's cancellation token.
func (s *Scan) Token() *cancellation.Token { return s.token }

// Pause asks the driver to stop after the in-flight batch. The batch itself
// is never interrupted.
func (s *Scan) Pause() { s.token.Pause() }

// Resume lets a paused scan continue from its stored seed item.
func (s *Scan) Resume() { s.token.Resume() }

// Abort cancels the scan with the given reason. A hard abort also clears a
// pending pause so a suspended scan can terminate.
func (s *Scan) Abort(reason string, kind cancellation.Kind) {
	s.token.Cancel(reason, kind)
}

// Run executes the scan to a terminal state. It returns nil when the scan
// completed, a *cancellation.CancelledError when it was aborted, and the
// failing operation's error otherwise. The scan's State reflects the
// outcome in all three cases.
func (s *Scan) Run(ctx context.Context) error {
	log := ctxlog.Logger(ctx).With("scan", s.name)
	ctx = ctxlog.New(ctx, log)

	if err := s.machine.Transition(ScanStarting); err != nil {
		return err
	}

	log.Info("starting scan", "items", countInstrumentItems(s.root))

	if err := s.connectInstruments(); err != nil {
		s.machine.Transition(ScanFailed) //nolint:errcheck

		return err
	}

	if err := s.machine.Transition(ScanRunning); err != nil {
		return err
	}

	defer s.shutdownInstruments(ctx)

	for {
		completed, err := s.driver.Run(ctx, s.token)
		if err != nil {
			return s.fail(ctx, err)
		}

		if completed {
			break
		}

		// Not completed and no error: the token requested a pause.
		if err := s.machine.Transition(ScanPaused); err != nil {
			return err
		}

		log.Info("scan paused")

		if err := s.token.WaitIfPaused(ctx); err != nil {
			return s.fail(ctx, err)
		}

		if err := s.machine.Transition(ScanRunning); err != nil {
			return err
		}

		log.Info("scan resumed")
	}

	if err := s.machine.Transition(ScanCompleting); err != nil {
		return err
	}

	if s.driver.sink != nil {
		if err := s.driver.sink.Flush(); err != nil {
			return s.fail(ctx, err)
		}
	}

	if err := s.machine.Transition(ScanCompleted); err != nil {
		return err
	}

	log.Info("scan completed")

	return nil
}

// fail maps an error from the batch loop to a terminal state: cancellation
// becomes aborted, anything else becomes failed.
func (s *Scan) fail(ctx context.Context, err error) error {
	var cerr *cancellation.CancelledError
	if errors.As(err, &cerr) {
		s.machine.Transition(ScanAborted) //nolint:errcheck
		ctxlog.Info(ctx, "scan aborted", "reason", cerr.Reason)

		return err
	}

	s.machine.Transition(ScanFailed) //nolint:errcheck
	ctxlog.Error(ctx, "scan failed", "error", err)

	return err
}

// connectInstruments connects every distinct instrument in the tree and
// verifies it responds before any batch runs.
func (s *Scan) connectInstruments() error {
	for _, instr := range distinctInstruments(s.root) {
		if err := instr.Connect(); err != nil {
			return fmt.Errorf("connecting %q: %w", instr.Name(), err)
		}

		if !instr.CheckConnection() {
			return fmt.Errorf("instrument %q did not answer its connection check", instr.Name())
		}
	}

	return nil
}

// shutdownInstruments releases every instrument; failures are logged, not
// surfaced, since shutdown runs on every exit path.
func (s *Scan) shutdownInstruments(ctx context.Context) {
	var merr *multierror.Error

	for _, instr := range distinctInstruments(s.root) {
		if err := instr.Shutdown(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("shutting down %q: %w", instr.Name(), err))
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		ctxlog.Warn(ctx, "instrument shutdown problems", "error", err)
	}
}

// distinctInstruments walks the tree collecting each instrument once, even
// when several items share one driver instance.
func distinctInstruments(root *scantree.Item) []instrument.Instrument {
	var (
		out  []instrument.Instrument
		seen = map[instrument.Instrument]struct{}{}
	)

	var walk func(*scantree.Item)
	walk = func(it *scantree.Item) {
		if b := it.Binding(); b != nil {
			if _, ok := seen[b.Instrument]; !ok {
				seen[b.Instrument] = struct{}{}
				out = append(out, b.Instrument)
			}
		}

		for _, child := range it.Children() {
			walk(child)
		}
	}

	walk(root)

	return out
}

func countInstrumentItems(root *scantree.Item) int {
	count := 0

	var walk func(*scantree.Item)
	walk = func(it *scantree.Item) {
		if it.Binding() != nil {
			count++
		}

		for _, child := range it.Children() {
			walk(child)
		}
	}

	walk(root)

	return count
}
