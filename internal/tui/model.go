// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/oscilla-lab/scantree/internal/progress"
)

// ItemStatus is the display state of one tree item.
type ItemStatus int

const (
	StatusPending ItemStatus = iota
	StatusRunning
	StatusDone
	StatusFailed
)

// String returns a string representation of the item status.
func (s ItemStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ItemNode is one row of the displayed scan tree.
type ItemNode struct {
	Path      []string
	Name      string
	Status    ItemStatus
	Position  *float64 // last position a movement drove to
	Rows      int      // cumulative measurement rows produced
	ErrorMsg  string
	StartTime *time.Time
	EndTime   *time.Time
	Children  []*ItemNode
	mutex     sync.RWMutex
}

// NewItemNode creates a pending node for the given tree path.
func NewItemNode(path []string, name string) *ItemNode {
	pathCopy := make([]string, len(path))
	copy(pathCopy, path)

	return &ItemNode{
		Path:     pathCopy,
		Name:     name,
		Status:   StatusPending,
		Children: make([]*ItemNode, 0),
	}
}

// UpdateStatus safely updates the node status and its timing bookkeeping.
func (n *ItemNode) UpdateStatus(status ItemStatus) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.Status = status
	now := time.Now()

	switch status {
	case StatusRunning:
		if n.StartTime == nil {
			n.StartTime = &now
		}
	case StatusDone, StatusFailed:
		if n.EndTime == nil {
			n.EndTime = &now
		}
	}
}

// UpdatePosition records the latest movement position.
func (n *ItemNode) UpdatePosition(pos float64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	p := pos
	n.Position = &p
}

// AddRows accumulates produced measurement rows.
func (n *ItemNode) AddRows(rows int) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.Rows += rows
}

// UpdateError records a failure message.
func (n *ItemNode) UpdateError(msg string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.ErrorMsg = msg
}

// GetDisplayInfo safely retrieves a snapshot for rendering.
func (n *ItemNode) GetDisplayInfo() (ItemStatus, string, *float64, int, string, *time.Time, *time.Time) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	return n.Status, n.Name, n.Position, n.Rows, n.ErrorMsg, n.StartTime, n.EndTime
}

// Model is the bubbletea application state for a running scan.
type Model struct {
	ctx      context.Context
	rootNode *ItemNode
	nodeMap  map[string]*ItemNode

	spinner  spinner.Model
	viewport viewport.Model

	width  int
	height int

	scanState string
	batchNum  int
	batchSize int

	quitting  bool
	completed bool
	finalErr  error

	mutex sync.RWMutex

	styles *Styles
}

// Styles contains all the styling for the TUI.
type Styles struct {
	Title      lipgloss.Style
	Pending    lipgloss.Style
	Running    lipgloss.Style
	Done       lipgloss.Style
	Failed     lipgloss.Style
	Detail     lipgloss.Style
	Error      lipgloss.Style
	Help       lipgloss.Style
	StatusBar  lipgloss.Style
	TreeBranch lipgloss.Style
	Border     lipgloss.Style
}

// NewStyles creates the default styling for the TUI.
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		Done: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Detail: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Italic(true),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Italic(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			MarginTop(1),
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("8")).
			Padding(0, 1),
		TreeBranch: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
	}
}

// NewModel creates a new TUI model.
func NewModel(ctx context.Context) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return &Model{
		ctx:       ctx,
		rootNode:  NewItemNode([]string{}, "Scan"),
		nodeMap:   make(map[string]*ItemNode),
		spinner:   sp,
		viewport:  viewport.New(0, 0),
		scanState: "queued",
		styles:    NewStyles(),
	}
}

// pathToString converts an item path to a string key.
func pathToString(path []string) string {
	return strings.Join(path, "/")
}

// getOrCreateNode safely gets or creates a node and ensures the full
// hierarchy above it exists.
func (m *Model) getOrCreateNode(path []string, name string) *ItemNode {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	pathKey := pathToString(path)
	if node, exists := m.nodeMap[pathKey]; exists {
		return node
	}

	m.ensureParentNodes(path)

	node := NewItemNode(path, name)
	m.nodeMap[pathKey] = node

	if len(path) > 1 {
		parentKey := pathToString(path[:len(path)-1])
		if parent, exists := m.nodeMap[parentKey]; exists {
			parent.Children = append(parent.Children, node)
		}
	} else if len(path) == 1 {
		m.rootNode.Children = append(m.rootNode.Children, node)
	}

	return node
}

// ensureParentNodes recursively creates all parent nodes if missing.
func (m *Model) ensureParentNodes(path []string) {
	if len(path) <= 1 {
		return
	}

	for i := 1; i < len(path); i++ {
		parentPath := path[:i]
		parentKey := pathToString(parentPath)

		if _, exists := m.nodeMap[parentKey]; exists {
			continue
		}

		parentNode := NewItemNode(parentPath, parentPath[len(parentPath)-1])
		m.nodeMap[parentKey] = parentNode

		if len(parentPath) > 1 {
			grandParentKey := pathToString(parentPath[:len(parentPath)-1])
			if grandParent, exists := m.nodeMap[grandParentKey]; exists {
				grandParent.Children = append(grandParent.Children, parentNode)
			}
		} else {
			m.rootNode.Children = append(m.rootNode.Children, parentNode)
		}
	}
}

// processEvent folds one progress event into the display tree.
func (m *Model) processEvent(event progress.Event) {
	itemName := "Unknown"
	if len(event.ItemPath) > 0 {
		itemName = event.ItemPath[len(event.ItemPath)-1]
	}

	switch event.Type {
	case progress.EventScanStateChanged:
		m.mutex.Lock()
		m.scanState = event.Data.State
		m.mutex.Unlock()

	case progress.EventBatchStarted:
		m.mutex.Lock()
		m.batchNum = event.Data.BatchNumber
		m.batchSize = event.Data.BatchSize
		m.mutex.Unlock()

	case progress.EventItemAdvanced:
		node := m.getOrCreateNode(event.ItemPath, itemName)
		node.UpdateStatus(StatusRunning)
		node.UpdatePosition(event.Data.Position)

	case progress.EventItemData:
		node := m.getOrCreateNode(event.ItemPath, itemName)
		node.UpdateStatus(StatusRunning)
		node.AddRows(event.Data.Rows)

	case progress.EventItemFailed:
		node := m.getOrCreateNode(event.ItemPath, itemName)
		node.UpdateStatus(StatusFailed)

		if event.Data.Error != nil {
			node.UpdateError(event.Data.Error.Error())
		}

	case progress.EventBatchCompleted:
		// Nothing incremental to record; item events already updated nodes.
	}
}

// finishNodes marks every node that did not fail as done. Called once the
// scan reaches a terminal state.
func (m *Model) finishNodes() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, node := range m.nodeMap {
		if status, _, _, _, _, _, _ := node.GetDisplayInfo(); status != StatusFailed {
			node.UpdateStatus(StatusDone)
		}
	}
}
