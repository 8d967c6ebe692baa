// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/oscilla-lab/scantree/internal/instrument"
	"github.com/oscilla-lab/scantree/internal/scantree"
)

const fileAppendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

// Sink receives measurement tables as workers produce them. Implementations
// must be safe for concurrent use; items in one batch save in parallel.
// Saved data is never rolled back, a failing sibling does not undo it.
type Sink interface {
	Save(ctx context.Context, source *scantree.Item, table *instrument.Table) error
	Flush() error
}

// SavedTable pairs a measurement table with the item that produced it.
type SavedTable struct {
	ItemID   string
	ItemPath []string
	Table    *instrument.Table
}

// MemorySink accumulates tables in memory, in arrival order.
type MemorySink struct {
	mu     sync.Mutex
	tables []SavedTable
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Save implements Sink.
func (s *MemorySink) Save(_ context.Context, source *scantree.Item, table *instrument.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = append(s.tables, SavedTable{
		ItemID:   source.UniqueID(),
		ItemPath: itemPath(source),
		Table:    table,
	})

	return nil
}

// Flush implements Sink.
func (s *MemorySink) Flush() error { return nil }

// Tables returns the saved tables in arrival order.
func (s *MemorySink) Tables() []SavedTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tables)
}

// TablesFor returns the tables a specific item produced.
func (s *MemorySink) TablesFor(item *scantree.Item) []SavedTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SavedTable

	for _, st := range s.tables {
		if st.ItemID == item.UniqueID() {
			out = append(out, st)
		}
	}

	return out
}

// FileSink writes one CSV file per producing item into a directory. Repeated
// saves from the same item append data rows under the first header.
type FileSink struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string

	headers map[string]bool
}

// NewFileSink creates a sink writing under dir on the given filesystem.
func NewFileSink(fs afero.Fs, dir string) (*FileSink, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %q: %w", dir, err)
	}

	return &FileSink{fs: fs, dir: dir, headers: map[string]bool{}}, nil
}

// Save implements Sink.
func (s *FileSink) Save(_ context.Context, source *scantree.Item, table *instrument.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fileNameFor(source))

	f, err := s.fs.OpenFile(path, fileAppendFlags, 0o644)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	content := table.CSV()
	if s.headers[path] {
		// Header already written by an earlier save; keep only data rows.
		if i := strings.IndexByte(content, '\n'); i >= 0 {
			content = content[i+1:]
		}
	}

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}

	s.headers[path] = true

	return nil
}

// Flush implements Sink.
func (s *FileSink) Flush() error { return nil }

func fileNameFor(item *scantree.Item) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, item.Name())

	return name + ".csv"
}

// itemPath returns the display names from the root down to the item.
func itemPath(item *scantree.Item) []string {
	var path []string

	for it := item; it != nil; it = it.Parent() {
		path = append(path, it.Name())
	}

	slices.Reverse(path)

	return path
}
