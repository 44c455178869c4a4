// Package archive provides the on-disk time-series archive used by every
// space-weather source.
//
// An archive is one flat table per source, persisted as a single file and
// rewritten in full on every merge. Rows are unique by key and sorted
// ascending by the temporal key column. The on-disk format is picked from
// the file extension (.csv, .csv.gz, .csv.zst, .parquet).
package archive

import (
	"fmt"
	"strings"
)

// Table is a rectangular record batch. Cells are kept as text; an empty
// string is the missing marker.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	return t.Index(name) >= 0
}

// Append adds a row, padding or truncating it to the column count.
func (t *Table) Append(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// AppendMap adds a row from a column->value mapping. Unknown columns are
// added to the schema; earlier rows get an empty cell for them.
func (t *Table) AppendMap(values map[string]string, order []string) {
	for _, name := range order {
		if _, ok := values[name]; ok && !t.HasColumn(name) {
			t.AddColumn(name)
		}
	}
	row := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = values[c]
	}
	t.Rows = append(t.Rows, row)
}

// AddColumn appends an empty column.
func (t *Table) AddColumn(name string) {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
}

// Value returns the cell at (row, column) or "" if the column is absent.
func (t *Table) Value(row int, column string) string {
	idx := t.Index(column)
	if idx < 0 || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// Column returns a copy of one column's values.
func (t *Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// Select returns a new table restricted to the given columns, in that order.
// Missing columns are an error.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("column %q not present (have %s)", c, strings.Join(t.Columns, ", "))
		}
	}
	out := NewTable(columns...)
	out.Rows = make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := make([]string, len(columns))
		for i, j := range idx {
			if j < len(row) {
				r[i] = row[j]
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := NewTable(t.Columns...)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// conform re-projects rows onto a wider column list. Columns not present in
// t become empty cells.
func (t *Table) conform(columns []string) [][]string {
	pos := make([]int, len(columns))
	for i, c := range columns {
		pos[i] = t.Index(c)
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(columns))
		for i, j := range pos {
			if j >= 0 && j < len(row) {
				out[i] = row[j]
			}
		}
		rows[r] = out
	}
	return rows
}

// unionColumns keeps a's order and appends the columns only b has.
func unionColumns(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range a {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
