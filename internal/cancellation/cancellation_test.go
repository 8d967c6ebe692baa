// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package cancellation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCancelIsIdempotent(t *testing.T) {
	token := NewToken()

	calls := 0
	token.OnCancel(func(reason string, kind Kind) {
		calls++

		assert.Equal(t, "operator abort", reason)
		assert.Equal(t, Soft, kind)
	})

	token.Cancel("operator abort", Soft)
	token.Cancel("second call", Hard)

	assert.Equal(t, 1, calls)
	assert.True(t, token.IsCancelled())
	assert.Equal(t, "operator abort", token.Reason())

	var cerr *CancelledError
	require.ErrorAs(t, token.Check(), &cerr)
	assert.Equal(t, Soft, cerr.Kind)
}

func TestOnCancel_AlreadyCancelledRunsImmediately(t *testing.T) {
	token := NewToken()
	token.Cancel("done", Hard)

	ran := false
	token.OnCancel(func(reason string, kind Kind) {
		ran = true

		assert.Equal(t, Hard, kind)
	})

	assert.True(t, ran)
}

func TestHardCancelClearsPause(t *testing.T) {
	token := NewToken()
	token.Pause()
	require.True(t, token.IsPauseRequested())

	token.Cancel("emergency stop", Hard)
	assert.False(t, token.IsPauseRequested())
}

func TestSoftCancelKeepsPauseFlag(t *testing.T) {
	token := NewToken()
	token.Pause()
	token.Cancel("stop after batch", Soft)

	assert.True(t, token.IsPauseRequested())
	assert.True(t, token.IsCancelled())
}

func TestWaitIfPaused_ResumeUnblocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	token := NewToken()
	token.Pause()

	var wg sync.WaitGroup
	wg.Add(1)

	var waitErr error

	go func() {
		defer wg.Done()

		waitErr = token.WaitIfPaused(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	token.Resume()
	wg.Wait()

	require.NoError(t, waitErr)
	assert.False(t, token.IsPauseRequested())
}

func TestWaitIfPaused_CancelUnblocksWithError(t *testing.T) {
	defer goleak.VerifyNone(t)

	token := NewToken()
	token.Pause()

	done := make(chan error, 1)

	go func() {
		done <- token.WaitIfPaused(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	token.Cancel("abort while paused", Soft)

	var cerr *CancelledError
	require.ErrorAs(t, <-done, &cerr)
	assert.Equal(t, "abort while paused", cerr.Reason)
}

func TestWaitIfPaused_ContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	token := NewToken()
	token.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := token.WaitIfPaused(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitIfPaused_NotPausedReturnsImmediately(t *testing.T) {
	token := NewToken()
	require.NoError(t, token.WaitIfPaused(context.Background()))
}

func TestChildToken_CancelledWithParent(t *testing.T) {
	parent := NewToken()
	child := parent.NewChild()
	grandchild := child.NewChild()

	parent.Cancel("queue aborted", Hard)

	assert.True(t, child.IsCancelled())
	assert.True(t, grandchild.IsCancelled())
	assert.Equal(t, "queue aborted", grandchild.Reason())
}

func TestChildToken_BornCancelled(t *testing.T) {
	parent := NewToken()
	parent.Cancel("too late", Soft)

	child := parent.NewChild()
	assert.True(t, child.IsCancelled())
}

func TestChildToken_ChildCancelDoesNotTouchParent(t *testing.T) {
	parent := NewToken()
	child := parent.NewChild()

	child.Cancel("one scan aborted", Soft)

	assert.False(t, parent.IsCancelled())
}
