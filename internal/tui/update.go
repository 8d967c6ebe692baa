// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/oscilla-lab/scantree/internal/progress"
)

const (
	minStatusBarAvailableHeight = 10
	minViewportWidth            = 20
	stepDurationRounding        = 100 * time.Millisecond
	ellipsis                    = "..."
)

// EventMsg wraps a progress event for the tea framework.
type EventMsg struct {
	Event progress.Event
}

// ScanDoneMsg indicates that the scan run has finished.
type ScanDoneMsg struct {
	Err error
}

// Init implements bubbletea.Model.Init.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.EnterAltScreen,
		tea.EnableMouseCellMotion,
	)
}

// Update implements bubbletea.Model.Update.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	m.viewport, cmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mutex.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewportSize()
		m.mutex.Unlock()

		return m, cmd

	case spinner.TickMsg:
		var spinCmd tea.Cmd

		m.spinner, spinCmd = m.spinner.Update(msg)

		return m, tea.Batch(cmd, spinCmd)

	case EventMsg:
		m.processEvent(msg.Event)

		return m, cmd

	case ScanDoneMsg:
		m.mutex.Lock()
		m.completed = true
		m.finalErr = msg.Err
		m.mutex.Unlock()

		m.finishNodes()

		return m, nil

	case tea.QuitMsg:
		m.quitting = true

		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress processes keyboard input.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	// Scrolling keys are handled by the viewport.
	return m, nil
}

// updateViewportSize resizes the viewport to the current window, keeping
// room for the title, status bar and help line. Caller holds m.mutex.
func (m *Model) updateViewportSize() {
	width := m.width - 2
	if width < minViewportWidth {
		width = minViewportWidth
	}

	height := m.height - 7
	if height < 1 {
		height = 1
	}

	m.viewport.Width = width
	m.viewport.Height = height
}

// View implements bubbletea.Model.View.
func (m *Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var content strings.Builder

	m.renderItemTree(&content, m.rootNode, "", true)

	if m.completed {
		content.WriteString("\n")

		if m.finalErr != nil {
			content.WriteString(m.styles.Failed.Render("scan finished with errors: " + m.finalErr.Error()))
		} else {
			content.WriteString(m.styles.Done.Render("scan completed"))
		}

		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())

	var view strings.Builder

	view.WriteString(m.styles.Title.Render("scantree"))
	view.WriteString("\n")
	view.WriteString(m.styles.Border.Render(m.viewport.View()))

	if m.height > minStatusBarAvailableHeight {
		view.WriteString("\n\n")
		view.WriteString(m.renderStatusBar())
		view.WriteString("\n")

		helpText := "up/down or j/k to scroll, 'q' to quit"
		if m.completed {
			helpText = "'q' to quit and return to terminal"
		}

		view.WriteString(m.styles.Help.Render(helpText))
	}

	return view.String()
}

// renderStatusBar shows the scan state and batch counters. Caller holds
// m.mutex for reading.
func (m *Model) renderStatusBar() string {
	status := m.scanState
	if !m.completed {
		status = m.spinner.View() + " " + status
	}

	return m.styles.StatusBar.Render(fmt.Sprintf("%s | batch %d (%d items)", status, m.batchNum, m.batchSize))
}

// renderItemTree recursively renders the scan item tree.
func (m *Model) renderItemTree(b *strings.Builder, node *ItemNode, prefix string, isLast bool) {
	if node == nil {
		return
	}

	// The synthetic root exists only to hold top-level items.
	if len(node.Path) == 0 {
		for i, child := range node.Children {
			m.renderItemTree(b, child, "", i == len(node.Children)-1)
		}

		return
	}

	m.renderItemNode(b, node, prefix, isLast)

	if len(node.Children) > 0 {
		childPrefix := prefix
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}

		for i, child := range node.Children {
			m.renderItemTree(b, child, childPrefix, i == len(node.Children)-1)
		}
	}
}

// renderItemNode renders a single item row with its latest step detail.
func (m *Model) renderItemNode(b *strings.Builder, node *ItemNode, prefix string, isLast bool) {
	status, name, position, rows, errorMsg, startTime, endTime := node.GetDisplayInfo()

	connector := "├── "
	if isLast {
		connector = "└── "
	}

	var statusIcon, styledName string

	switch status {
	case StatusPending:
		statusIcon = "·"
		styledName = m.styles.Pending.Render(name)
	case StatusRunning:
		statusIcon = m.spinner.View()
		styledName = m.styles.Running.Render(name)
	case StatusDone:
		statusIcon = "✓"
		styledName = m.styles.Done.Render(name)
	case StatusFailed:
		statusIcon = "✗"
		styledName = m.styles.Failed.Render(name)
	default:
		statusIcon = "?"
		styledName = m.styles.Pending.Render(name)
	}

	leftSide := fmt.Sprintf("%s %s", statusIcon, styledName)

	if startTime != nil {
		elapsed := time.Since(*startTime)
		if endTime != nil {
			elapsed = endTime.Sub(*startTime)
		}

		leftSide += m.styles.Detail.Render(fmt.Sprintf(" (%v)", elapsed.Round(stepDurationRounding)))
	}

	var rightSide string

	switch {
	case errorMsg != "" && status == StatusFailed:
		rightSide = m.styles.Error.Render("error: " + errorMsg)
	case rows > 0:
		rightSide = m.styles.Detail.Render(fmt.Sprintf("%d rows", rows))
	case position != nil:
		rightSide = m.styles.Detail.Render(fmt.Sprintf("at %g", *position))
	}

	treePrefix := m.styles.TreeBranch.Render(prefix + connector)

	availableWidth := m.viewport.Width - len(prefix) - len(connector) - 2
	if availableWidth < minViewportWidth {
		availableWidth = minViewportWidth
	}

	leftWidth := availableWidth / 2 //nolint:mnd
	rightWidth := availableWidth - leftWidth

	leftSide = truncate(leftSide, leftWidth)
	rightSide = truncate(rightSide, rightWidth)

	b.WriteString(treePrefix)
	b.WriteString(leftSide)

	if rightSide != "" {
		b.WriteString(strings.Repeat(" ", leftWidth-len(leftSide)+1))
		b.WriteString(rightSide)
	}

	b.WriteString("\n")
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}

	if width > len(ellipsis) {
		return s[:width-len(ellipsis)] + ellipsis
	}

	return s[:width]
}
