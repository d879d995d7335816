// Package table provides the typed, immutable columnar table used by every
// stage of the catalog pipeline.
//
// A Table is an ordered sequence of named columns with O(1) lookup by name.
// Each column holds one of three value kinds (float64, int64, string).
//
// Ownership contract:
//   - Operations never mutate their receiver. Each returns a new *Table.
//   - Unchanged columns are shared between the old and the new table, so the
//     slices returned by Floats/Ints/Strings must be treated as read-only.
//   - Constructors copy nothing: callers hand over the slices they pass in.
package table

import (
	"fmt"
	"math"
	"slices"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// Kind is the value type of a column.
type Kind uint8

const (
	Float Kind = iota
	Int
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float64"
	case Int:
		return "int64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Column is one named, typed value sequence. Exactly one of the value slices
// is used, selected by Kind.
type Column struct {
	Name string
	Kind Kind

	// Unit and Description are carried through persistence formats that
	// support them (ECSV, parquet field metadata). Both are optional.
	Unit        string
	Description string

	floats  []float64
	ints    []int64
	strings []string
}

// FloatColumn builds a float64 column.
func FloatColumn(name string, v []float64) Column {
	return Column{Name: name, Kind: Float, floats: v}
}

// IntColumn builds an int64 column.
func IntColumn(name string, v []int64) Column {
	return Column{Name: name, Kind: Int, ints: v}
}

// StringColumn builds a string column.
func StringColumn(name string, v []string) Column {
	return Column{Name: name, Kind: String, strings: v}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	switch c.Kind {
	case Float:
		return len(c.floats)
	case Int:
		return len(c.ints)
	default:
		return len(c.strings)
	}
}

// Floats returns the float64 values (nil for other kinds).
func (c Column) Floats() []float64 { return c.floats }

// Ints returns the int64 values (nil for other kinds).
func (c Column) Ints() []int64 { return c.ints }

// Strings returns the string values (nil for other kinds).
func (c Column) Strings() []string { return c.strings }

// WithName returns a copy of c renamed to name. Values are shared.
func (c Column) WithName(name string) Column {
	c.Name = name
	return c
}

// Float64At returns the value at row i converted to float64.
//
// String columns return NaN.
func (c Column) Float64At(i int) float64 {
	switch c.Kind {
	case Float:
		return c.floats[i]
	case Int:
		return float64(c.ints[i])
	default:
		return math.NaN()
	}
}

// Value returns the value at row i boxed as any (float64, int64 or string).
func (c Column) Value(i int) any {
	switch c.Kind {
	case Float:
		return c.floats[i]
	case Int:
		return c.ints[i]
	default:
		return c.strings[i]
	}
}

// take returns a new column holding the rows at idx, in idx order.
func (c Column) take(idx []int) Column {
	out := c
	switch c.Kind {
	case Float:
		v := make([]float64, len(idx))
		for i, j := range idx {
			v[i] = c.floats[j]
		}
		out.floats = v
	case Int:
		v := make([]int64, len(idx))
		for i, j := range idx {
			v[i] = c.ints[j]
		}
		out.ints = v
	default:
		v := make([]string, len(idx))
		for i, j := range idx {
			v[i] = c.strings[j]
		}
		out.strings = v
	}
	return out
}

// Table is an immutable, ordered collection of equal-length columns.
type Table struct {
	cols  []Column
	index map[string]int
	rows  int
}

// New builds a table from cols.
//
// Errors:
//   - ErrValidation if two columns share a name, a name is empty, or the
//     columns differ in length.
func New(cols ...Column) (*Table, error) {
	t := &Table{
		cols:  cols,
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, errs.Validation("column %d has an empty name", i)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, errs.Validation("duplicate column name %q", c.Name)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = c.Len()
			continue
		}
		if c.Len() != t.rows {
			return nil, errs.Validation("column %q has %d rows, want %d", c.Name, c.Len(), t.rows)
		}
	}
	return t, nil
}

// Empty returns a table with no columns and no rows.
func Empty() *Table {
	return &Table{index: map[string]int{}}
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the columns in order. The returned slice is a copy; the
// value slices inside each column are shared.
func (t *Table) Columns() []Column { return slices.Clone(t.cols) }

// Has reports whether a column named name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the column named name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// Floats returns the values of the float64 column name.
func (t *Table) Floats(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, errs.Validation("missing column %q", name)
	}
	if c.Kind != Float {
		return nil, errs.Validation("column %q is %s, want float64", name, c.Kind)
	}
	return c.floats, nil
}

// Append returns a new table with c added as the last column.
func (t *Table) Append(c Column) (*Table, error) {
	return t.Insert(len(t.cols), c)
}

// Insert returns a new table with c placed at position pos (0 = first).
func (t *Table) Insert(pos int, c Column) (*Table, error) {
	if pos < 0 || pos > len(t.cols) {
		return nil, errs.Internal("insert position %d out of range [0,%d]", pos, len(t.cols))
	}
	if t.Has(c.Name) {
		return nil, errs.Internal("column %q already exists", c.Name)
	}
	cols := make([]Column, 0, len(t.cols)+1)
	cols = append(cols, t.cols[:pos]...)
	cols = append(cols, c)
	cols = append(cols, t.cols[pos:]...)
	return New(cols...)
}

// Set returns a new table where the column named c.Name is replaced by c (in
// place), or appended when it does not exist yet. The kind may change.
func (t *Table) Set(c Column) (*Table, error) {
	i, ok := t.index[c.Name]
	if !ok {
		return t.Append(c)
	}
	cols := slices.Clone(t.cols)
	cols[i] = c
	return New(cols...)
}

// Drop returns a new table without the named columns. Unknown names are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	cols := make([]Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	out, _ := New(cols...)
	return out
}

// Rename returns a new table where column from is called to.
func (t *Table) Rename(from, to string) (*Table, error) {
	i, ok := t.index[from]
	if !ok {
		return nil, errs.Validation("missing column %q", from)
	}
	if from == to {
		return t, nil
	}
	if t.Has(to) {
		return nil, errs.Validation("rename %q: column %q already exists", from, to)
	}
	cols := slices.Clone(t.cols)
	cols[i] = cols[i].WithName(to)
	return New(cols...)
}

// Select returns a new table holding only the named columns, in the given
// order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, errs.Validation("missing column %q", n)
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// SelectFunc returns a new table holding only the columns for which keep
// returns true, in their original order.
func (t *Table) SelectFunc(keep func(name string) bool) *Table {
	cols := make([]Column, 0, len(t.cols))
	for _, c := range t.cols {
		if keep(c.Name) {
			cols = append(cols, c)
		}
	}
	out, _ := New(cols...)
	return out
}

// Take returns a new table holding the rows at idx, in idx order. Indices may
// repeat.
func (t *Table) Take(idx []int) (*Table, error) {
	for _, j := range idx {
		if j < 0 || j >= t.rows {
			return nil, errs.Internal("row index %d out of range [0,%d)", j, t.rows)
		}
	}
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.take(idx)
	}
	return New(cols...)
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	idx := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	out, _ := t.Take(idx)
	return out
}

// Row returns the values of row i boxed as any, in column order.
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.Value(i)
	}
	return out
}

// Equal reports whether both tables have the same column names, kinds and
// values, bit for bit (NaNs with equal bit patterns compare equal).
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.cols) != len(o.cols) {
		return false
	}
	for i, a := range t.cols {
		b := o.cols[i]
		if a.Name != b.Name || a.Kind != b.Kind {
			return false
		}
		switch a.Kind {
		case Float:
			for r := range a.floats {
				if math.Float64bits(a.floats[r]) != math.Float64bits(b.floats[r]) {
					return false
				}
			}
		case Int:
			if !slices.Equal(a.ints, b.ints) {
				return false
			}
		default:
			if !slices.Equal(a.strings, b.strings) {
				return false
			}
		}
	}
	return true
}
