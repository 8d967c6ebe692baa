// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package scantree implements the scan plan tree and the batching traverser.
//
// A scan plan is a tree of items, each optionally wrapping one instrument.
// Execution order is depth-first, left-to-right. The Traverser walks the
// tree in execution order and accumulates the maximal prefix of items that
// may run concurrently, stopping at the first item that conflicts with the
// batch by adapter, capability or semaphore label.
package scantree
