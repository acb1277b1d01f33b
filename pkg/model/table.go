// pkg/model/table.go
package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrInvalidTable is returned when a value is not a well-formed table
var ErrInvalidTable = errors.New("invalid table structure")

// Table is an in-memory tabular dataset with ordered columns.
// A nil cell is a missing value.
type Table struct {
	Name    string   // Logical name (source table or entity)
	Columns []string // Ordered column names
	Rows    [][]any  // Row-major cells, len(row) == len(Columns)
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{
		Name:    name,
		Columns: cols,
		Rows:    make([][]any, 0),
	}
}

// Validate checks that the table is structurally sound
func (t *Table) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: table is nil", ErrInvalidTable)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if seen[col] {
			return fmt.Errorf("%w: duplicate column %q in %s", ErrInvalidTable, col, t.Name)
		}
		seen[col] = true
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: row %d of %s has %d cells, expected %d",
				ErrInvalidTable, i, t.Name, len(row), len(t.Columns))
		}
	}

	return nil
}

// AddRow appends a row, returning an error if its width does not match
func (t *Table) AddRow(cells ...any) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("%w: row has %d cells, expected %d", ErrInvalidTable, len(cells), len(t.Columns))
	}
	row := make([]any, len(cells))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1 if absent
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the column exists
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Values returns a copy of a column's cells
func (t *Table) Values(name string) ([]any, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// Clone returns a deep copy of the table's structure.
// Cells are copied by value; time.Time and strings are immutable.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name, t.Columns...)
	out.Rows = make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]any, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// DropColumns removes the named columns, ignoring names that are absent.
// Returns the names that were actually removed.
func (t *Table) DropColumns(names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	keep := make([]int, 0, len(t.Columns))
	removed := make([]string, 0)
	for i, col := range t.Columns {
		if drop[col] {
			removed = append(removed, col)
			continue
		}
		keep = append(keep, i)
	}

	if len(removed) == 0 {
		return removed
	}

	cols := make([]string, len(keep))
	for j, i := range keep {
		cols[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		newRow := make([]any, len(keep))
		for j, i := range keep {
			newRow[j] = row[i]
		}
		t.Rows[r] = newRow
	}
	t.Columns = cols

	return removed
}

// FilterRows keeps the rows for which keep returns true and returns the count removed.
// Remaining rows stay contiguous and in their original order.
func (t *Table) FilterRows(keep func(i int, row []any) bool) int {
	kept := t.Rows[:0]
	removed := 0
	for i, row := range t.Rows {
		if keep(i, row) {
			kept = append(kept, row)
		} else {
			removed++
		}
	}
	// Clear the tail so dropped rows can be collected
	for i := len(kept); i < len(t.Rows); i++ {
		t.Rows[i] = nil
	}
	t.Rows = kept
	return removed
}

// Equal compares two tables by columns and cell values
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if !reflect.DeepEqual(t.Rows[i][j], other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// missingTokens are the spellings sources use for absent data
var missingTokens = []string{"null", "NULL", "nil", "NIL", "NaN", "nan", "N/A"}

// IsMissing determines if a cell should be treated as a missing value
func IsMissing(value any) bool {
	if value == nil {
		return true
	}

	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return true
		}
		for _, token := range missingTokens {
			if trimmed == token {
				return true
			}
		}
	case []byte:
		return IsMissing(string(v))
	}

	return false
}

// MissingRatio returns the percentage of missing values per column
func (t *Table) MissingRatio() map[string]float64 {
	ratios := make(map[string]float64, len(t.Columns))
	if len(t.Rows) == 0 {
		for _, col := range t.Columns {
			ratios[col] = 0
		}
		return ratios
	}

	for i, col := range t.Columns {
		missing := 0
		for _, row := range t.Rows {
			if IsMissing(row[i]) {
				missing++
			}
		}
		ratios[col] = float64(missing) / float64(len(t.Rows)) * 100
	}
	return ratios
}
