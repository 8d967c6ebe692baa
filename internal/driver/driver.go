// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/progress"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

// DefaultWorkers bounds batch concurrency so a very wide tree cannot spawn
// an unbounded number of instrument operations at once.
const DefaultWorkers = 20

// Driver runs one scan tree batch by batch. It keeps the next seed item
// between calls to Run, so a paused scan resumes exactly where it stopped.
//
// Driver is not safe for concurrent use; one goroutine coordinates the
// batch loop while workers only touch their own items.
type Driver struct {
	root     *scantree.Item
	workers  int
	reporter progress.Reporter
	sink     Sink

	next     *scantree.Item
	batchNum int

	itemsMu    sync.Mutex
	itemStates map[string]*Machine[ItemState]
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers overrides the worker pool bound.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithReporter sets the progress event sink.
func WithReporter(r progress.Reporter) Option {
	return func(d *Driver) {
		d.reporter = r
	}
}

// WithSink sets the measurement data sink.
func WithSink(s Sink) Option {
	return func(d *Driver) {
		d.sink = s
	}
}

// NewDriver creates a driver for the given tree.
func NewDriver(root *scantree.Item, opts ...Option) *Driver {
	d := &Driver{
		root:       root,
		workers:    DefaultWorkers,
		reporter:   progress.NewNullReporter(),
		itemStates: map[string]*Machine[ItemState]{},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.next = root.Child(0)

	return d
}

// ItemState returns the lifecycle state recorded for an item, ItemPending
// when the item has not been dispatched yet.
func (d *Driver) ItemState(item *scantree.Item) ItemState {
	d.itemsMu.Lock()
	defer d.itemsMu.Unlock()

	m, ok := d.itemStates[item.UniqueID()]
	if !ok {
		return ItemPending
	}

	return m.Current()
}

func (d *Driver) itemMachine(item *scantree.Item) *Machine[ItemState] {
	d.itemsMu.Lock()
	defer d.itemsMu.Unlock()

	m, ok := d.itemStates[item.UniqueID()]
	if !ok {
		m = NewItemMachine(nil)
		d.itemStates[item.UniqueID()] = m
	}

	return m
}

// Run executes batches until the tree is exhausted, the token requests a
// pause, or something fails. It returns true once the whole tree has run.
// A pause returns (false, nil) with the resume point retained; cancellation
// returns a *cancellation.CancelledError.
//
// The token is consulted between batches only. An in-flight batch always
// runs to completion, there is no preemption of instrument operations.
func (d *Driver) Run(ctx context.Context, token *cancellation.Token) (bool, error) {
	for d.next != nil {
		if d.next == d.root && d.root.Finished() {
			break
		}

		if err := token.Check(); err != nil {
			return false, err
		}

		if token.IsPauseRequested() {
			ctxlog.Debug(ctx, "pause requested, stopping before next batch", "seed", d.next.UniqueID())

			return false, nil
		}

		tr := scantree.NewTraverser()
		tr.Grow(ctx, d.next)

		batch := tr.Stack()
		d.batchNum++

		d.reporter.Report(progress.Event{
			ItemPath:  itemPath(d.root),
			Type:      progress.EventBatchStarted,
			Timestamp: time.Now(),
			Data:      progress.EventData{BatchNumber: d.batchNum, BatchSize: len(batch)},
		})

		if err := d.dispatch(ctx, batch); err != nil {
			return false, err
		}

		d.reporter.Report(progress.Event{
			ItemPath:  itemPath(d.root),
			Type:      progress.EventBatchCompleted,
			Timestamp: time.Now(),
			Data:      progress.EventData{BatchNumber: d.batchNum, BatchSize: len(batch)},
		})

		d.next = tr.FinalItem()
	}

	return true, nil
}

// dispatch runs every instrument item of the batch concurrently on the
// bounded pool and waits for all of them. Containers carry no work and are
// skipped. All failures are collected, not just the first: sibling items
// keep running and their data is preserved.
func (d *Driver) dispatch(ctx context.Context, batch []*scantree.Item) error {
	g := &errgroup.Group{}
	g.SetLimit(d.workers)

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)

	for _, item := range batch {
		// Containers carry no work. Finished items can land in a batch when
		// the closing traversal re-offers them as a seed; re-running one
		// would wrap its odometer and repeat data, so they are skipped.
		if item.Binding() == nil || item.Finished() {
			continue
		}

		g.Go(func() error {
			if err := d.runItem(ctx, item); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
			}

			return nil
		})
	}

	g.Wait() //nolint:errcheck

	return merr.ErrorOrNil()
}

func (d *Driver) runItem(ctx context.Context, item *scantree.Item) error {
	machine := d.itemMachine(item)
	machine.Transition(ItemInProgress) //nolint:errcheck

	table, advanced, err := item.MoveNext(ctx)
	if err != nil {
		machine.Transition(ItemFailed) //nolint:errcheck
		d.reporter.Report(progress.Event{
			ItemPath:  itemPath(item),
			Type:      progress.EventItemFailed,
			Timestamp: time.Now(),
			Data:      progress.EventData{Error: err},
		})

		return err
	}

	if advanced {
		d.reporter.Report(progress.Event{
			ItemPath:  itemPath(item),
			Type:      progress.EventItemAdvanced,
			Timestamp: time.Now(),
			Data:      progress.EventData{Position: currentPosition(item)},
		})
	}

	if table != nil {
		if err := annotatePositions(item, table); err != nil {
			machine.Transition(ItemFailed) //nolint:errcheck

			return err
		}

		if d.sink != nil {
			if err := d.sink.Save(ctx, item, table); err != nil {
				machine.Transition(ItemFailed) //nolint:errcheck

				return err
			}
		}

		d.reporter.Report(progress.Event{
			ItemPath:  itemPath(item),
			Type:      progress.EventItemData,
			Timestamp: time.Now(),
			Data:      progress.EventData{Rows: table.NumRows()},
		})
	}

	if item.Finished() {
		machine.Transition(ItemCompleted) //nolint:errcheck
	} else {
		machine.Transition(ItemPending) //nolint:errcheck
	}

	return nil
}

// annotatePositions appends one constant column per enclosing movement so a
// measurement row records where it was taken.
func annotatePositions(item *scantree.Item, table *instrument.Table) error {
	for p := item.Parent(); p != nil; p = p.Parent() {
		b := p.Binding()
		if b == nil || b.Capability != instrument.CapabilityMovement {
			continue
		}

		mov := b.Instrument.(instrument.Movement)

		pos, err := mov.Position()
		if err != nil {
			return err
		}

		table.AddConstColumn(instrument.ColumnName(mov.PositionColumn(), mov.PositionUnits()), pos)
	}

	return nil
}

// currentPosition reads the position a movement item last drove to, from
// its own stored sequence. Non-movements report zero.
func currentPosition(item *scantree.Item) float64 {
	b := item.Binding()
	if b == nil || b.Capability != instrument.CapabilityMovement {
		return 0
	}

	indices := item.ItemIndices()
	if len(indices) == 0 {
		return 0
	}

	i := indices[len(indices)-1]
	if i < 0 || i >= len(b.Positions) {
		return 0
	}

	return b.Positions[i]
}
