/*
Copyright © 2024 the obsnc authors.
This file is part of obsnc.

obsnc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

obsnc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with obsnc.  If not, see <http://www.gnu.org/licenses/>.
*/

package obsnc

import (
	"fmt"
	"sort"
	"time"
)

// A ColumnKind identifies the value type held by a Column.
type ColumnKind int

const (
	FloatColumn ColumnKind = iota
	IntColumn
	UintColumn
	StringColumn
	TimeColumn
	FlagColumn // quality-control flags, 0--9
)

var columnKindNames = []string{"float", "int", "uint", "string", "time", "flag"}

func (k ColumnKind) String() string {
	if k < 0 || int(k) >= len(columnKindNames) {
		return fmt.Sprintf("ColumnKind(%d)", int(k))
	}
	return columnKindNames[k]
}

// A Column is one named column of an observation table, held in
// column-major form. Exactly one of the value slices is in use,
// selected by Kind. Null marks cells that hold no value; the value
// slice still has an entry (its content is ignored) so all slices stay
// row-aligned.
type Column struct {
	Name string
	Kind ColumnKind

	Floats  []float64
	Ints    []int64
	Uints   []uint64
	Strings []string
	Times   []time.Time
	Flags   []int8

	Null []bool
}

// NewFloatColumn returns a float64 column holding vals, with no null cells.
func NewFloatColumn(name string, vals []float64) *Column {
	return &Column{Name: name, Kind: FloatColumn, Floats: vals, Null: make([]bool, len(vals))}
}

// NewIntColumn returns a signed integer column holding vals, with no null cells.
func NewIntColumn(name string, vals []int64) *Column {
	return &Column{Name: name, Kind: IntColumn, Ints: vals, Null: make([]bool, len(vals))}
}

// NewUintColumn returns an unsigned integer column holding vals, with no null cells.
func NewUintColumn(name string, vals []uint64) *Column {
	return &Column{Name: name, Kind: UintColumn, Uints: vals, Null: make([]bool, len(vals))}
}

// NewStringColumn returns a text column holding vals, with no null cells.
func NewStringColumn(name string, vals []string) *Column {
	return &Column{Name: name, Kind: StringColumn, Strings: vals, Null: make([]bool, len(vals))}
}

// NewTimeColumn returns a timestamp column holding vals, with no null cells.
func NewTimeColumn(name string, vals []time.Time) *Column {
	return &Column{Name: name, Kind: TimeColumn, Times: vals, Null: make([]bool, len(vals))}
}

// NewFlagColumn returns a quality-control flag column holding vals,
// with no null cells.
func NewFlagColumn(name string, vals []int8) *Column {
	return &Column{Name: name, Kind: FlagColumn, Flags: vals, Null: make([]bool, len(vals))}
}

// Len returns the number of cells in the column.
func (c *Column) Len() int { return len(c.Null) }

func (c *Column) appendNull() {
	switch c.Kind {
	case FloatColumn:
		c.Floats = append(c.Floats, 0)
	case IntColumn:
		c.Ints = append(c.Ints, 0)
	case UintColumn:
		c.Uints = append(c.Uints, 0)
	case StringColumn:
		c.Strings = append(c.Strings, "")
	case TimeColumn:
		c.Times = append(c.Times, time.Time{})
	case FlagColumn:
		c.Flags = append(c.Flags, 0)
	}
	c.Null = append(c.Null, true)
}

// appendCell copies cell i of o, which must have the same Kind as c.
func (c *Column) appendCell(o *Column, i int) {
	switch c.Kind {
	case FloatColumn:
		c.Floats = append(c.Floats, o.Floats[i])
	case IntColumn:
		c.Ints = append(c.Ints, o.Ints[i])
	case UintColumn:
		c.Uints = append(c.Uints, o.Uints[i])
	case StringColumn:
		c.Strings = append(c.Strings, o.Strings[i])
	case TimeColumn:
		c.Times = append(c.Times, o.Times[i])
	case FlagColumn:
		c.Flags = append(c.Flags, o.Flags[i])
	}
	c.Null = append(c.Null, o.Null[i])
}

func permute[T any](s []T, perm []int) []T {
	out := make([]T, len(s))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out
}

func (c *Column) permute(perm []int) {
	switch c.Kind {
	case FloatColumn:
		c.Floats = permute(c.Floats, perm)
	case IntColumn:
		c.Ints = permute(c.Ints, perm)
	case UintColumn:
		c.Uints = permute(c.Uints, perm)
	case StringColumn:
		c.Strings = permute(c.Strings, perm)
	case TimeColumn:
		c.Times = permute(c.Times, perm)
	case FlagColumn:
		c.Flags = permute(c.Flags, perm)
	}
	c.Null = permute(c.Null, perm)
}

// A Table is an insertion-ordered collection of equal-length Columns,
// one row per observation.
type Table struct {
	names []string
	cols  map[string]*Column
	nrows int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{cols: make(map[string]*Column)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.nrows }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Column returns the named column, or nil if it does not exist.
func (t *Table) Column(name string) *Column { return t.cols[name] }

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool { _, ok := t.cols[name]; return ok }

// AddColumn appends c to the table. The first column added sets the
// table's row count; subsequent columns must match it.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.cols[c.Name]; ok {
		return fmt.Errorf("obsnc: table already has a column named %s", c.Name)
	}
	if len(t.names) == 0 {
		t.nrows = c.Len()
	} else if c.Len() != t.nrows {
		return fmt.Errorf("obsnc: column %s has %d rows; table has %d", c.Name, c.Len(), t.nrows)
	}
	t.names = append(t.names, c.Name)
	t.cols[c.Name] = c
	return nil
}

// Rename changes the name of a column, keeping its position.
func (t *Table) Rename(old, new string) error {
	c, ok := t.cols[old]
	if !ok {
		return fmt.Errorf("obsnc: renaming column %s: no such column", old)
	}
	if old == new {
		return nil
	}
	if _, ok := t.cols[new]; ok {
		return fmt.Errorf("obsnc: renaming column %s to %s: name already in use", old, new)
	}
	c.Name = new
	delete(t.cols, old)
	t.cols[new] = c
	for i, n := range t.names {
		if n == old {
			t.names[i] = new
		}
	}
	return nil
}

// sortBy stably reorders the rows ascending by the named time column,
// breaking ties with the named depth column. depthCol may be empty.
// Null cells sort after non-null cells.
func (t *Table) sortBy(timeCol, depthCol string) error {
	tc := t.cols[timeCol]
	if tc == nil {
		return fmt.Errorf("obsnc: sorting rows: no column named %s", timeCol)
	}
	if tc.Kind != TimeColumn {
		return fmt.Errorf("obsnc: sorting rows: column %s is %v, not time", timeCol, tc.Kind)
	}
	var dc *Column
	if depthCol != "" {
		dc = t.cols[depthCol]
		if dc != nil && dc.Kind != FloatColumn {
			return fmt.Errorf("obsnc: sorting rows: column %s is %v, not float", depthCol, dc.Kind)
		}
	}
	perm := make([]int, t.nrows)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		if tc.Null[i] != tc.Null[j] {
			return tc.Null[j]
		}
		if !tc.Null[i] && !tc.Times[i].Equal(tc.Times[j]) {
			return tc.Times[i].Before(tc.Times[j])
		}
		if dc == nil {
			return false
		}
		if dc.Null[i] != dc.Null[j] {
			return dc.Null[j]
		}
		return !dc.Null[i] && dc.Floats[i] < dc.Floats[j]
	})
	for _, name := range t.names {
		t.cols[name].permute(perm)
	}
	return nil
}

// Append concatenates the rows of o onto t. Columns present on only
// one side are padded with null cells; columns present on both sides
// must have the same Kind. Columns new to t keep o's relative order
// and are appended after t's existing columns.
func (t *Table) Append(o *Table) error {
	for _, name := range t.names {
		if oc := o.cols[name]; oc != nil && oc.Kind != t.cols[name].Kind {
			return fmt.Errorf("obsnc: appending rows: column %s is %v in one table and %v in the other",
				name, t.cols[name].Kind, oc.Kind)
		}
	}
	for _, name := range o.names {
		if !t.Has(name) {
			c := &Column{Name: name, Kind: o.cols[name].Kind}
			for i := 0; i < t.nrows; i++ {
				c.appendNull()
			}
			t.names = append(t.names, name)
			t.cols[name] = c
		}
	}
	for _, name := range t.names {
		c := t.cols[name]
		if oc := o.cols[name]; oc != nil {
			for i := 0; i < o.nrows; i++ {
				c.appendCell(oc, i)
			}
		} else {
			for i := 0; i < o.nrows; i++ {
				c.appendNull()
			}
		}
	}
	t.nrows += o.nrows
	return nil
}
