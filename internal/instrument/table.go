// Copyright (c) oscilla-lab 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package instrument

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnMismatch is returned when a row's width does not match the table's
// column count.
var ErrColumnMismatch = errors.New("row width does not match column count")

// Table is a rectangular block of measurement data: named, unit-suffixed
// columns by numeric rows. It is what a measurement step produces and what
// the data sink consumes.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// ColumnName composes the conventional "name (unit)" column header.
// An empty unit yields the bare name.
func ColumnName(name, unit string) string {
	if unit == "" {
		return name
	}

	return fmt.Sprintf("%s (%s)", name, unit)
}

// NewTable builds a Table from a measurement's raw rows and its column/unit
// metadata. Units may be shorter than columns; missing units are blank.
func NewTable(columns, units []string, rows [][]float64) (*Table, error) {
	headers := make([]string, len(columns))

	for i, c := range columns {
		unit := ""
		if i < len(units) {
			unit = units[i]
		}

		headers[i] = ColumnName(c, unit)
	}

	for _, row := range rows {
		if len(row) != len(headers) {
			return nil, fmt.Errorf("%w: got %d values for %d columns", ErrColumnMismatch, len(row), len(headers))
		}
	}

	return &Table{Columns: headers, Rows: rows}, nil
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// AddConstColumn appends a column holding the same value in every row.
// The driver uses this to annotate measurement data with the positions of
// the movements enclosing it.
func (t *Table) AddConstColumn(header string, value float64) {
	t.Columns = append(t.Columns, header)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// CSV renders the table as comma-separated text with a header line.
func (t *Table) CSV() string {
	sb := strings.Builder{}
	sb.WriteString(strings.Join(t.Columns, ","))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		for i, v := range row {
			if i > 0 {
				sb.WriteString(",")
			}

			fmt.Fprintf(&sb, "%g", v)
		}

		sb.WriteString("\n")
	}

	return sb.String()
}
