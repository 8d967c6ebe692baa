// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tui provides a real-time terminal user interface for monitoring a
// running scan. It displays a live tree view of the scan items with status
// indicators, the latest movement position or row count per item, and the
// overall scan state with batch counters.
//
// The TUI consumes the progress event stream the driver emits, so it shows
// batches being dispatched and items advancing as they happen.
package tui
