// Package storage defines the backend-neutral catalog repository and the
// registry its SQL backends plug into.
package storage

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of a stored catalog column. Each backend
// maps it to its own DDL type.
type ColumnType string

const (
	TypeFloat ColumnType = "float"
	TypeInt   ColumnType = "int"
	TypeText  ColumnType = "text"
)

// TableSpec describes a flat table to create.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ColumnSpec is one column of a TableSpec.
type ColumnSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// ColumnNames returns the spec's column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the spec has a name, at least one column, unique
// column names and known types.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeFloat, TypeInt, TypeText:
		default:
			return fmt.Errorf("table %s: column %q has unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	return nil
}

// Batches splits rows into chunks so that no chunk binds more than
// maxParams parameters (and no more than maxRows rows when maxRows > 0).
//
// Edge cases:
//   - ncols <= 0 or maxParams < ncols yields one row per batch.
func Batches(rows [][]any, ncols, maxParams, maxRows int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if ncols > 0 && maxParams >= ncols {
		per = maxParams / ncols
	}
	if maxRows > 0 && per > maxRows {
		per = maxRows
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
