// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package scantree

// CheckState is the tri-state selection value rendered by plan editors.
type CheckState int

const (
	// Unchecked means neither the item nor any descendant is selected.
	Unchecked CheckState = iota
	// PartiallyChecked means some, but not all, descendants are selected.
	PartiallyChecked
	// Checked means the item and all descendants are selected.
	Checked
)

// String returns the check state's display name.
func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case PartiallyChecked:
		return "partial"
	default:
		return "unchecked"
	}
}

// IsChecked returns the item's own selection flag.
func (it *Item) IsChecked() bool { return it.checked }

// SetChecked sets the item's selection flag. With updateChildren the flag is
// pushed down the subtree. With updateParent a checked flag is pushed up the
// parent chain, so selecting a leaf selects the path to it.
//
// Unchecking never propagates upward: a parent stays checked when its last
// checked child is cleared. Editors rely on this to keep a group selected
// while its members are toggled, so the asymmetry is intentional.
func (it *Item) SetChecked(value, updateChildren, updateParent bool) {
	it.checked = value

	if updateChildren {
		for _, child := range it.children {
			child.SetChecked(value, true, false)
		}
	}

	if updateParent && value && it.parent != nil {
		it.parent.SetChecked(true, false, true)
	}
}

// GetCheckState derives the tri-state value for rendering. Leaves report
// their own flag; an item with children reports Checked when every child is
// fully checked, Unchecked when none is, and PartiallyChecked otherwise.
func (it *Item) GetCheckState() CheckState {
	if len(it.children) == 0 {
		if it.checked {
			return Checked
		}

		return Unchecked
	}

	checked, unchecked := 0, 0

	for _, child := range it.children {
		switch child.GetCheckState() {
		case Checked:
			checked++
		case Unchecked:
			unchecked++
		}
	}

	switch {
	case checked == len(it.children):
		return Checked
	case unchecked == len(it.children):
		return Unchecked
	default:
		return PartiallyChecked
	}
}
