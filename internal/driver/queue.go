// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
	"github.com/oscilla-lab/scantree/internal/progress"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

// DefaultQueueParallelism is how many scans a queue runs at once unless
// configured otherwise. Most labs run one scan at a time; anything above one
// assumes the scans touch disjoint instruments.
const DefaultQueueParallelism = 1

// Queue runs a sequence of scans. Each scan gets a child of the queue's
// cancellation token, so aborting the queue aborts every scan in it, while
// aborting one scan leaves the rest untouched.
type Queue struct {
	mu       sync.Mutex
	scans    []*Scan
	token    *cancellation.Token
	reporter progress.Reporter
	parallel int
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueParallelism sets how many scans run concurrently.
func WithQueueParallelism(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.parallel = n
		}
	}
}

// WithQueueReporter sets the progress sink handed to scans created through
// NewScan.
func WithQueueReporter(r progress.Reporter) QueueOption {
	return func(q *Queue) {
		q.reporter = r
	}
}

// WithQueueToken replaces the queue's own token, typically with one a
// signal watchdog cancels, so an interrupt reaches every queued scan.
func WithQueueToken(t *cancellation.Token) QueueOption {
	return func(q *Queue) {
		if t != nil {
			q.token = t
		}
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		token:    cancellation.NewToken(),
		reporter: progress.NewNullReporter(),
		parallel: DefaultQueueParallelism,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Token exposes the queue's cancellation token.
func (q *Queue) Token() *cancellation.Token { return q.token }

// NewScan creates a scan over the tree, wired to the queue: it inherits the
// queue's reporter and a child cancellation token, and is appended to the
// run list.
func (q *Queue) NewScan(name string, root *scantree.Item, opts ...ScanOption) *Scan {
	wired := append([]ScanOption{
		WithToken(q.token.NewChild()),
		WithScanReporter(q.reporter),
	}, opts...)

	s := NewScan(name, root, wired...)

	q.mu.Lock()
	q.scans = append(q.scans, s)
	q.mu.Unlock()

	return s
}

// Add appends an externally built scan and links its token to the queue's,
// so a queue abort still reaches it.
func (q *Queue) Add(s *Scan) {
	q.token.OnCancel(func(reason string, kind cancellation.Kind) {
		s.token.Cancel(reason, kind)
	})

	q.mu.Lock()
	q.scans = append(q.scans, s)
	q.mu.Unlock()
}

// Scans returns the queued scans in order.
func (q *Queue) Scans() []*Scan {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]*Scan(nil), q.scans...)
}

// Abort cancels the queue and, through the token hierarchy, every scan.
func (q *Queue) Abort(reason string, kind cancellation.Kind) {
	q.token.Cancel(reason, kind)
}

// Run executes the queued scans, at most parallel at a time, and returns
// the collected failures. A cancelled queue stops launching new scans but
// lets in-flight ones reach their own terminal state.
func (q *Queue) Run(ctx context.Context) error {
	scans := q.Scans()

	ctxlog.Info(ctx, "running scan queue", "scans", len(scans), "parallelism", q.parallel)

	g := &errgroup.Group{}
	g.SetLimit(q.parallel)

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)

	for _, s := range scans {
		if err := q.token.Check(); err != nil {
			mu.Lock()
			merr = multierror.Append(merr, fmt.Errorf("scan %q not started: %w", s.Name(), err))
			mu.Unlock()

			continue
		}

		g.Go(func() error {
			if err := s.Run(ctx); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("scan %q: %w", s.Name(), err))
				mu.Unlock()
			}

			return nil
		})
	}

	g.Wait() //nolint:errcheck

	return merr.ErrorOrNil()
}
