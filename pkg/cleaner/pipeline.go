// pkg/cleaner/pipeline.go
package cleaner

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/quantity"
)

// ErrMissingColumn is returned when a policy requires a column the table lacks
var ErrMissingColumn = errors.New("required column missing")

// Range is an open numeric interval (Min, Max)
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether Min < v < Max
func (r Range) Contains(v float64) bool {
	return v > r.Min && v < r.Max
}

// Policy configures the cleaning pipeline for one entity.
// Column lists only apply to columns present in the table, except
// QuantityColumn which is required when set.
type Policy struct {
	Entity            Entity
	DropColumns       []string         // Removed first, absent names ignored
	DropEmptyColumns  bool             // Remove columns whose every value is missing
	QuantityColumn    string           // Parsed to kilograms
	NameColumn        string           // Rows missing it are excluded from the output
	RequiredColumns   []string         // Rows missing any of these are dropped
	DropIncomplete    bool             // Drop rows with any missing cell
	DropDuplicateRows bool             // Drop exact duplicate rows
	DateColumns       []string         // Parsed to time.Time, malformed -> nil
	IntColumns        []string         // Coerced to int64, malformed -> 0
	FloatColumns      []string         // Coerced to float64, malformed -> nil
	DigitColumns      []string         // Punctuation stripped, values with letters -> nil
	LowerColumns      []string         // Lower-cased and trimmed
	Bounds            map[string]Range // Rows outside the open interval are dropped
	KeyColumn         string           // Unique, non-missing identifier
	FillMissing       string           // Fill for remaining missing text cells
}

// Pipeline runs the ordered cleaning steps for a policy.
// It holds no state between runs.
type Pipeline struct {
	Policy Policy
	now    func() time.Time
}

// NewPipeline creates a pipeline for a policy
func NewPipeline(policy Policy) *Pipeline {
	return &Pipeline{Policy: policy, now: time.Now}
}

// step is a single named stage of the pipeline
type step struct {
	name string
	run  func(f *frame) error
}

// steps lists the stages in execution order; later stages see earlier output
var steps = []step{
	{"drop_columns", dropListedColumns},
	{"drop_empty_columns", dropEmptyColumns},
	{"parse_quantity", parseQuantity},
	{"handle_nulls", handleNulls},
	{"drop_duplicate_rows", dropDuplicateRows},
	{"correct_dates", correctDates},
	{"coerce_types", coerceTypes},
	{"normalize_text", normalizeText},
	{"filter_rows", filterRows},
	{"enforce_key", enforceKey},
	{"drop_emptied_columns", dropEmptyColumns},
	{"drop_incomplete_rows", dropIncompleteRows},
}

// frame carries a table through the pipeline together with the exclusion mask
type frame struct {
	policy   Policy
	table    *model.Table
	excluded []bool // Aligned with table.Rows; rows marked for exclusion
	ops      []model.CleaningOperation
	now      func() time.Time
	current  string
}

// Run cleans raw and returns a new table plus the operations performed.
// raw is never modified.
func (p *Pipeline) Run(raw *model.Table) (*model.Table, []model.CleaningOperation, error) {
	if err := raw.Validate(); err != nil {
		return nil, nil, err
	}

	now := p.now
	if now == nil {
		now = time.Now
	}

	f := &frame{
		policy: p.Policy,
		table:  raw.Clone(),
		now:    now,
	}

	for _, s := range steps {
		f.current = s.name
		if err := s.run(f); err != nil {
			return nil, f.ops, fmt.Errorf("%s step %s: %w", p.Policy.Entity, s.name, err)
		}
	}

	return f.table, f.ops, nil
}

// record appends an operation when the step changed something
func (f *frame) record(column string, affected int, reason string) {
	if affected == 0 {
		return
	}
	f.ops = append(f.ops, model.CleaningOperation{
		Entity:       string(f.policy.Entity),
		TableName:    f.table.Name,
		Step:         f.current,
		ColumnName:   column,
		RowsAffected: affected,
		Reason:       reason,
		CleanedAt:    f.now(),
	})
}

// removeRows drops rows matching drop and keeps the exclusion mask aligned
func (f *frame) removeRows(column, reason string, drop func(i int, row []any) bool) {
	var mask []bool
	if f.excluded != nil {
		mask = make([]bool, 0, len(f.excluded))
	}

	removed := f.table.FilterRows(func(i int, row []any) bool {
		if drop(i, row) {
			return false
		}
		if f.excluded != nil {
			mask = append(mask, f.excluded[i])
		}
		return true
	})

	if f.excluded != nil {
		f.excluded = mask
	}
	f.record(column, removed, reason)
}

// rewriteColumn replaces each cell of a column and counts changed cells
func (f *frame) rewriteColumn(column, reason string, fn func(v any) any) {
	idx := f.table.ColumnIndex(column)
	if idx < 0 {
		return
	}

	changed := 0
	for _, row := range f.table.Rows {
		before := row[idx]
		after := fn(before)
		if !sameCell(before, after) {
			changed++
		}
		row[idx] = after
	}
	f.record(column, changed, reason)
}

func sameCell(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return keyOf(a) == keyOf(b)
}

func dropListedColumns(f *frame) error {
	if len(f.policy.DropColumns) == 0 {
		return nil
	}
	for _, col := range f.table.DropColumns(f.policy.DropColumns...) {
		f.record(col, f.table.Len(), "non_semantic_column")
	}
	return nil
}

// dropEmptyColumns runs before and after coercion; a column of malformed values
// only becomes empty once it is parsed. An empty table keeps its columns.
func dropEmptyColumns(f *frame) error {
	if !f.policy.DropEmptyColumns || f.table.Len() == 0 {
		return nil
	}

	var empty []string
	for i, col := range f.table.Columns {
		allMissing := true
		for _, row := range f.table.Rows {
			if !model.IsMissing(row[i]) {
				allMissing = false
				break
			}
		}
		if allMissing {
			empty = append(empty, col)
		}
	}

	for _, col := range f.table.DropColumns(empty...) {
		f.record(col, f.table.Len(), "all_values_missing")
	}
	return nil
}

func parseQuantity(f *frame) error {
	col := f.policy.QuantityColumn
	if col == "" {
		return nil
	}
	if !f.table.HasColumn(col) {
		return fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}

	f.rewriteColumn(col, "normalized_to_kilograms", func(v any) any {
		kg, ok := quantity.Kilograms(v)
		if !ok {
			return nil
		}
		return kg
	})
	return nil
}

func handleNulls(f *frame) error {
	p := f.policy

	// Mark nameless rows instead of filling a placeholder that could collide with real data
	if idx := f.table.ColumnIndex(p.NameColumn); p.NameColumn != "" && idx >= 0 {
		f.excluded = make([]bool, f.table.Len())
		for i, row := range f.table.Rows {
			f.excluded[i] = model.IsMissing(row[idx])
		}
	}

	for _, col := range p.RequiredColumns {
		idx := f.table.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		f.removeRows(col, "missing_required_value", func(_ int, row []any) bool {
			return model.IsMissing(row[idx])
		})
	}

	if p.DropIncomplete {
		nameIdx := -1
		if p.NameColumn != "" {
			nameIdx = f.table.ColumnIndex(p.NameColumn)
		}
		f.removeRows("", "row_has_missing_value", func(_ int, row []any) bool {
			for j, cell := range row {
				if j != nameIdx && model.IsMissing(cell) {
					return true
				}
			}
			return false
		})
	}

	return nil
}

func dropDuplicateRows(f *frame) error {
	if !f.policy.DropDuplicateRows {
		return nil
	}

	seen := make(map[string]bool, f.table.Len())
	f.removeRows("", "duplicate_row", func(_ int, row []any) bool {
		parts := make([]string, len(row))
		for j, cell := range row {
			parts[j] = keyOf(cell)
		}
		key := strings.Join(parts, "\x1f")
		if seen[key] {
			return true
		}
		seen[key] = true
		return false
	})
	return nil
}

func correctDates(f *frame) error {
	for _, col := range f.policy.DateColumns {
		f.rewriteColumn(col, "parsed_date", func(v any) any {
			if model.IsMissing(v) {
				return nil
			}
			t, err := toTime(v)
			if err != nil {
				return nil
			}
			return t
		})
	}
	return nil
}

func coerceTypes(f *frame) error {
	for _, col := range f.policy.IntColumns {
		f.rewriteColumn(col, "coerced_to_int", func(v any) any {
			i, err := toInt(v)
			if err != nil {
				return int64(0)
			}
			return i
		})
	}

	for _, col := range f.policy.FloatColumns {
		f.rewriteColumn(col, "coerced_to_float", func(v any) any {
			fl, err := toFloat(v)
			if err != nil {
				return nil
			}
			return fl
		})
	}

	for _, col := range f.policy.DigitColumns {
		f.rewriteColumn(col, "stripped_non_digits", func(v any) any {
			if model.IsMissing(v) {
				return nil
			}
			digits, ok := digitsOnly(v)
			if !ok {
				return nil
			}
			return digits
		})
	}

	return nil
}

func normalizeText(f *frame) error {
	for _, col := range f.policy.LowerColumns {
		f.rewriteColumn(col, "lowercased", func(v any) any {
			s, ok := v.(string)
			if !ok {
				return v
			}
			return strings.ToLower(strings.TrimSpace(s))
		})
	}
	return nil
}

func filterRows(f *frame) error {
	if f.excluded != nil {
		mask := f.excluded
		f.removeRows(f.policy.NameColumn, "missing_name", func(i int, _ []any) bool {
			return mask[i]
		})
		f.excluded = nil
	}

	cols := make([]string, 0, len(f.policy.Bounds))
	for col := range f.policy.Bounds {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		idx := f.table.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		b := f.policy.Bounds[col]
		f.removeRows(col, "out_of_range", func(_ int, row []any) bool {
			v, err := toFloat(row[idx])
			return err != nil || !b.Contains(v)
		})
	}

	return nil
}

func enforceKey(f *frame) error {
	p := f.policy

	if idx := f.table.ColumnIndex(p.KeyColumn); p.KeyColumn != "" && idx >= 0 {
		f.removeRows(p.KeyColumn, "missing_key", func(_ int, row []any) bool {
			return model.IsMissing(row[idx])
		})

		seen := make(map[string]bool, f.table.Len())
		f.removeRows(p.KeyColumn, "duplicate_key", func(_ int, row []any) bool {
			k := keyOf(row[idx])
			if seen[k] {
				return true
			}
			seen[k] = true
			return false
		})
	}

	if p.FillMissing != "" {
		typed := make(map[string]bool)
		for _, cols := range [][]string{p.DateColumns, p.IntColumns, p.FloatColumns} {
			for _, c := range cols {
				typed[c] = true
			}
		}
		for _, col := range f.table.Columns {
			if typed[col] || col == p.KeyColumn {
				continue
			}
			fill := p.FillMissing
			f.rewriteColumn(col, "filled_missing", func(v any) any {
				if model.IsMissing(v) {
					return fill
				}
				return v
			})
		}
	}

	return nil
}

// dropIncompleteRows applies the row policy to values that became missing during coercion
func dropIncompleteRows(f *frame) error {
	if !f.policy.DropIncomplete {
		return nil
	}
	f.removeRows("", "missing_after_coercion", func(_ int, row []any) bool {
		for _, cell := range row {
			if model.IsMissing(cell) {
				return true
			}
		}
		return false
	})
	return nil
}
