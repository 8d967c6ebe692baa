// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package signalbroker listens for OS signals and turns them into scan
// cancellation. By default it listens for os.Interrupt, syscall.SIGINT,
// syscall.SIGTERM, and syscall.SIGQUIT.
//
// The watchdog gives running scans one chance to wind down: the first
// signal soft-cancels the scan token so the driver stops at the next batch
// boundary, the second signal of the same type hard-cancels and tears the
// process context down.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oscilla-lab/scantree/internal/ctxlog"
)

var termSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
	os.Interrupt,
}

// New creates a signal channel subscribed to the signals that should stop a
// scan run.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	ch := make(chan os.Signal, 1)

	if len(sigs) == 0 {
		sigs = termSignals
	}

	ctxlog.Debug(ctx, "signalbroker", "detail", "creating signal broker", "signals", sigs)
	signal.Notify(ch, sigs...)

	return ch
}
