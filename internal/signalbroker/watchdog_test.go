// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
)

func TestWatch_FirstSignalSoftCancelsToken(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	token := cancellation.NewToken()
	sigCh := make(chan os.Signal, 1)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		Watch(ctx, sigCh, token, cancel)
	}()
	sigCh <- os.Interrupt

	require.Eventually(t, token.IsCancelled, time.Second, 10*time.Millisecond)

	var cerr *cancellation.CancelledError

	require.ErrorAs(t, token.Check(), &cerr)
	assert.Equal(t, cancellation.Soft, cerr.Kind)

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled after first signal")
	default:
	}

	close(sigCh)
	wg.Wait()
}

func TestWatch_SecondSignalHardCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	token := cancellation.NewToken()
	sigCh := make(chan os.Signal, 2)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		Watch(ctx, sigCh, token, cancel)
	}()
	sigCh <- os.Interrupt
	sigCh <- os.Interrupt

	wg.Wait()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("context should be cancelled after second signal")
	}

	_, open := <-sigCh
	assert.False(t, open, "signal channel should be closed after second signal")
}

func TestWatch_DifferentSignalsOnlySoftCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	token := cancellation.NewToken()
	sigCh := make(chan os.Signal, 2)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		Watch(ctx, sigCh, token, cancel)
	}()
	sigCh <- os.Interrupt
	sigCh <- os.Kill

	require.Eventually(t, token.IsCancelled, time.Second, 10*time.Millisecond)

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled for different signal types")
	default:
	}

	close(sigCh)
	wg.Wait()
}
