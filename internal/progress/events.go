// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"time"
)

// Event is a real-time update emitted while a scan executes. The driver
// emits scan-level events around the batch loop and item-level events as
// workers advance individual tree items.
type Event struct {
	// ItemPath is the tree path to the item the event concerns, e.g.
	// ["root", "XStage", "LockIn"]. Scan-level events carry the scan name
	// as a single element.
	ItemPath  []string
	Type      EventType
	Message   string
	Timestamp time.Time
	Data      EventData
}

// EventType says what happened.
type EventType int

const (
	// EventScanStateChanged reports a scan state machine transition.
	EventScanStateChanged EventType = iota
	// EventBatchStarted reports that a batch has been dispatched.
	EventBatchStarted
	// EventBatchCompleted reports that every item in a batch finished.
	EventBatchCompleted
	// EventItemAdvanced reports one successful move_next step.
	EventItemAdvanced
	// EventItemData reports that an item produced measurement rows.
	EventItemData
	// EventItemFailed reports a failed move_next step.
	EventItemFailed
)

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	switch et {
	case EventScanStateChanged:
		return "scan_state_changed"
	case EventBatchStarted:
		return "batch_started"
	case EventBatchCompleted:
		return "batch_completed"
	case EventItemAdvanced:
		return "item_advanced"
	case EventItemData:
		return "item_data"
	case EventItemFailed:
		return "item_failed"
	default:
		return "unknown"
	}
}

// EventData carries the type-specific payload.
type EventData struct {
	// For EventScanStateChanged.
	State string

	// For EventBatchStarted/EventBatchCompleted.
	BatchNumber int
	BatchSize   int

	// For EventItemAdvanced.
	Position float64

	// For EventItemData.
	Rows int

	// For EventItemFailed.
	Error error
}

// Reporter is the sink for progress events. Implementations must be
// non-blocking; a slow consumer must never stall the batch loop.
type Reporter interface {
	// Report sends one event. It never blocks; events may be dropped when
	// nothing is listening.
	Report(event Event)
	// Close signals that no more events will be sent.
	Close()
}

// Listener receives events forwarded from a ChannelReporter.
type Listener interface {
	// OnEvent is called for each received event. Handle events quickly to
	// avoid backing up the forwarding goroutine.
	OnEvent(event Event)
}

// NullReporter discards every event.
type NullReporter struct{}

// Report implements Reporter by doing nothing.
func (nr *NullReporter) Report(_ Event) {
	// No-op
}

// Close implements Reporter by doing nothing.
func (nr *NullReporter) Close() {
	// No-op
}

// NewNullReporter creates a reporter that discards everything.
func NewNullReporter() Reporter {
	return &NullReporter{}
}
