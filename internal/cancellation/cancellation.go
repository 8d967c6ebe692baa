// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cancellation implements the cooperative stop/pause token checked
// by the execution driver between batches. Cancellation is advisory: nothing
// preempts an in-flight instrument call, a movement mid-travel completes its
// motion before the scan can stop.
package cancellation

import (
	"context"
	"fmt"
	"sync"
)

// Kind distinguishes a graceful stop from an immediate one.
type Kind int

const (
	// Soft requests a stop at the next check point, leaving any pause
	// request in place.
	Soft Kind = iota
	// Hard requests a stop and clears a pending pause, so a paused scan
	// does not stay suspended forever waiting for a resume.
	Hard
)

// String returns the kind's display name.
func (k Kind) String() string {
	if k == Hard {
		return "hard"
	}

	return "soft"
}

// CancelledError is returned by Check and WaitIfPaused once a token is
// cancelled.
type CancelledError struct {
	Reason string
	Kind   Kind
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operation cancelled (%s)", e.Kind)
	}

	return fmt.Sprintf("operation cancelled (%s): %s", e.Kind, e.Reason)
}

// Callback is invoked synchronously, once, when a token is cancelled.
type Callback func(reason string, kind Kind)

// Token is a thread-safe cancellation and pause signal. The zero value is
// not usable; create tokens with NewToken or Token.NewChild.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	paused    bool
	reason    string
	kind      Kind
	callbacks []Callback
	children  []*Token
	resumeCh  chan struct{}
}

// NewToken returns a fresh, uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel marks the token cancelled and runs the registered callbacks
// synchronously. A second call is a no-op. A Hard cancel also clears any
// pending pause so paused waiters wake up. Child tokens are cancelled with
// the same reason and kind.
func (t *Token) Cancel(reason string, kind Kind) {
	t.mu.Lock()

	if t.cancelled {
		t.mu.Unlock()

		return
	}

	t.cancelled = true
	t.reason = reason
	t.kind = kind

	if kind == Hard {
		t.paused = false
	}

	if t.resumeCh != nil {
		close(t.resumeCh)
		t.resumeCh = nil
	}

	callbacks := t.callbacks
	t.callbacks = nil
	children := t.children
	t.children = nil

	t.mu.Unlock()

	for _, cb := range callbacks {
		cb(reason, kind)
	}

	for _, child := range children {
		child.Cancel(reason, kind)
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelled
}

// Check returns a CancelledError when the token is cancelled, nil otherwise.
func (t *Token) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return &CancelledError{Reason: t.reason, Kind: t.kind}
	}

	return nil
}

// Reason returns the reason passed to Cancel, empty while uncancelled.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.reason
}

// Pause requests that the driver stop computing new batches. Pausing a
// cancelled token has no effect.
func (t *Token) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.paused {
		return
	}

	t.paused = true
	t.resumeCh = make(chan struct{})
}

// Resume clears a pause request and wakes anything blocked in WaitIfPaused.
func (t *Token) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paused {
		return
	}

	t.paused = false

	if t.resumeCh != nil {
		close(t.resumeCh)
		t.resumeCh = nil
	}
}

// IsPauseRequested reports whether the token is paused.
func (t *Token) IsPauseRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.paused
}

// WaitIfPaused blocks while the token is paused. It returns nil once the
// token is resumed (or was never paused), a CancelledError if the token is
// cancelled while waiting, and ctx.Err() if the context ends first.
func (t *Token) WaitIfPaused(ctx context.Context) error {
	for {
		t.mu.Lock()

		if t.cancelled {
			err := &CancelledError{Reason: t.reason, Kind: t.kind}
			t.mu.Unlock()

			return err
		}

		if !t.paused {
			t.mu.Unlock()

			return nil
		}

		ch := t.resumeCh
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnCancel registers a callback. If the token is already cancelled the
// callback runs immediately on the calling goroutine.
func (t *Token) OnCancel(cb Callback) {
	t.mu.Lock()

	if t.cancelled {
		reason, kind := t.reason, t.kind
		t.mu.Unlock()

		cb(reason, kind)

		return
	}

	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// NewChild creates a token that is cancelled whenever this one is. A child
// of an already-cancelled token is born cancelled. Pause state is not
// inherited; pausing a queue and pausing one of its scans are independent.
func (t *Token) NewChild() *Token {
	child := NewToken()

	t.mu.Lock()

	if t.cancelled {
		reason, kind := t.reason, t.kind
		t.mu.Unlock()

		child.Cancel(reason, kind)

		return child
	}

	t.children = append(t.children, child)
	t.mu.Unlock()

	return child
}

// TokenContextKey is the context key under which a process-level token
// travels from the entry point to commands that run scans.
type TokenContextKey struct{}

// FromContext returns the token stored in ctx, or nil when none was set.
func FromContext(ctx context.Context) *Token {
	t, _ := ctx.Value(TokenContextKey{}).(*Token)

	return t
}
