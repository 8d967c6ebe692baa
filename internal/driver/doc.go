// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package driver executes scan trees. One coordinating goroutine grows
// batches with the scantree traverser and dispatches each batch onto a
// bounded worker pool, waiting for the whole batch before computing the
// next one. Batches run strictly sequentially; items within a batch run
// concurrently.
//
// A Scan wraps the loop with instrument connection, a lifecycle state
// machine and cooperative pause/abort. A Queue runs several scans under one
// cancellation hierarchy.
package driver
