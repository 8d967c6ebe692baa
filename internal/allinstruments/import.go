// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package allinstruments imports all instrument driver packages to ensure
// their registration.
package allinstruments

import (
	// Import all driver packages to trigger their init() functions.
	_ "github.com/oscilla-lab/scantree/internal/instrument/sim"
)
