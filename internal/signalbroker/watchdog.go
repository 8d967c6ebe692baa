// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/oscilla-lab/scantree/internal/cancellation"
	"github.com/oscilla-lab/scantree/internal/ctxlog"
)

// Watch monitors the signal channel and cancels scans gracefully.
//
// The first signal of a type soft-cancels the token: the driver finishes
// the in-flight batch, then stops. The second signal of the same type
// hard-cancels the token and cancels the context, terminating waits on
// paused scans and any instrument operation that honours the context.
func Watch(ctx context.Context, sigCh chan os.Signal, token *cancellation.Token, cancel context.CancelFunc) {
	sigMap := make(map[os.Signal]struct{})
	for sig := range sigCh {
		if _, ok := sigMap[sig]; ok {
			ctxlog.Logger(ctx).Info("watchdog", "detail", "received second signal of type, forcefully terminating", "signal", sig.String())
			token.Cancel("interrupted twice, terminating", cancellation.Hard)
			close(sigCh)
			cancel()

			return
		}

		ctxlog.Logger(ctx).Info("watchdog", "detail", "received first signal of type, stopping after current batch", "signal", sig.String())
		token.Cancel("interrupted, stopping after current batch", cancellation.Soft)

		sigMap[sig] = struct{}{}
	}
}
