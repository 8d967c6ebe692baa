// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package progress carries real-time execution events from the scan driver
// to observers such as the terminal UI. Reporting is fire-and-forget: the
// driver never blocks on a slow or absent consumer.
package progress
