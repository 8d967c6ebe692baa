// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package scantree

import (
	"context"
	"slices"

	"github.com/oscilla-lab/scantree/internal/ctxlog"
)

// Traverser accumulates one batch: the maximal prefix of execution-order
// items that may run concurrently. Growing stops at the first item that
// conflicts with the batch; that item becomes FinalItem, the seed of the
// next round.
//
// A Traverser is single-use. The driver creates a fresh one per batch.
type Traverser struct {
	stack      []*Item
	seen       map[string]struct{}
	semaphores []string
	// types maps an accepted capability tag to the semaphores accepted
	// alongside it. adapters does the same per connection address.
	types    map[string][]string
	adapters map[string][]string

	done      bool
	finalItem *Item
}

// NewTraverser returns an empty traverser.
func NewTraverser() *Traverser {
	return &Traverser{
		seen:     make(map[string]struct{}),
		types:    make(map[string][]string),
		adapters: make(map[string][]string),
	}
}

// Stack returns the accepted items in execution order.
func (t *Traverser) Stack() []*Item { return slices.Clone(t.stack) }

// Done reports whether the batch is closed.
func (t *Traverser) Done() bool { return t.done }

// FinalItem returns the item the batch stopped at. It is nil when the
// traversal exhausted the tree instead of hitting a conflict.
func (t *Traverser) FinalItem() *Item { return t.finalItem }

// shouldStopBefore applies the compatibility rules, in order, to the next
// candidate. First match wins.
func (t *Traverser) shouldStopBefore(next *Item) bool {
	adapter := next.AdapterID()
	typ := next.TypeTag()
	sem := next.Semaphore()

	// Two items sharing a physical connection only co-schedule under the
	// same semaphore.
	if sems, seenAdapter := t.adapters[adapter]; adapter != "" && seenAdapter {
		if sem != "" && !slices.Contains(sems, sem) {
			return true
		}
	}

	// A capability not yet in the batch only joins through a semaphore
	// already accepted alongside an existing capability. Containers carry
	// no tag and pass through.
	if typ != "" && len(t.types) > 0 {
		if _, accepted := t.types[typ]; !accepted {
			if sem == "" || !t.semaphoreSeenWithAnyType(sem) {
				return true
			}
		}
	}

	if sem != "" && len(t.semaphores) > 0 && !slices.Contains(t.semaphores, sem) {
		return true
	}

	if _, dup := t.seen[next.UniqueID()]; dup {
		return true
	}

	return false
}

func (t *Traverser) semaphoreSeenWithAnyType(sem string) bool {
	for _, sems := range t.types {
		if slices.Contains(sems, sem) {
			return true
		}
	}

	return false
}

// Accept offers the next candidate to the batch. On conflict the batch is
// closed with the candidate as FinalItem and nil is returned; otherwise the
// candidate is recorded and returned so traversal can continue from it.
func (t *Traverser) Accept(ctx context.Context, next *Item) *Item {
	if t.shouldStopBefore(next) {
		ctxlog.Debug(ctx, "batch closed", "at", next.UniqueID(), "size", len(t.stack))

		t.done = true
		t.finalItem = next

		return nil
	}

	if sem := next.Semaphore(); sem != "" && !slices.Contains(t.semaphores, sem) {
		t.semaphores = append(t.semaphores, sem)
	}

	if typ := next.TypeTag(); typ != "" {
		sems := t.types[typ]
		if sem := next.Semaphore(); sem != "" && !slices.Contains(sems, sem) {
			sems = append(sems, sem)
		}

		t.types[typ] = sems
	}

	if adapter := next.AdapterID(); adapter != "" {
		sems := t.adapters[adapter]
		if sem := next.Semaphore(); sem != "" && !slices.Contains(sems, sem) {
			sems = append(sems, sem)
		}

		t.adapters[adapter] = sems
	}

	t.stack = append(t.stack, next)
	t.seen[next.UniqueID()] = struct{}{}

	ctxlog.Debug(ctx, "batch accepted item", "item", next.UniqueID(), "size", len(t.stack))

	return next
}

// Propagate finds the next candidate after item in depth-first left-to-right
// execution order and offers it to the batch via Accept. Descend to the
// first unfinished child when there is one; otherwise step to the following
// sibling; otherwise climb until an unfinished ancestor is found. Reaching
// the root with nothing left closes the batch with no FinalItem.
func (t *Traverser) Propagate(ctx context.Context, item *Item) *Item {
	if child := item.firstUnfinishedChild(); child != nil {
		return t.Accept(ctx, child)
	}

	if p := item.Parent(); p != nil && item != p.LastChild() {
		return t.Accept(ctx, p.Child(item.ChildNumber()+1))
	}

	for cur := item; ; {
		p := cur.Parent()
		if p == nil {
			ctxlog.Debug(ctx, "traversal exhausted", "size", len(t.stack))

			t.done = true
			t.finalItem = nil

			return nil
		}

		if !p.Finished() {
			return t.Accept(ctx, p)
		}

		cur = p
	}
}

// Grow seeds the batch at an item and extends it until a conflict or tree
// exhaustion closes it.
func (t *Traverser) Grow(ctx context.Context, seed *Item) {
	cur := t.Accept(ctx, seed)

	for !t.done && cur != nil {
		cur = t.Propagate(ctx, cur)
	}
}
