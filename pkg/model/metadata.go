// pkg/model/metadata.go
package model

import (
	"strings"
	"time"
)

// Kind is the value type a column holds after cleaning
type Kind int

const (
	KindUnknown Kind = iota // Only missing values seen
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindMixed // More than one concrete type
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// TableMetadata contains the structure information for a table to be loaded
type TableMetadata struct {
	Schema      string   // Schema or dataset name
	Table       string   // Table name
	Columns     []Column // Column definitions
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about a column
type Column struct {
	Name         string // Column name
	Kind         Kind   // Kind inferred from cleaned cells
	PgType       string // Mapped PostgreSQL type
	Nullable     bool   // Whether any cell is missing
	IsPrimaryKey bool   // Whether column is part of primary key
}

// DescribeTable infers column metadata from a table's cells
func DescribeTable(schema string, t *Table) *TableMetadata {
	meta := &TableMetadata{
		Schema:  schema,
		Table:   t.Name,
		Columns: make([]Column, len(t.Columns)),
	}

	for i, name := range t.Columns {
		col := Column{Name: name, Kind: KindUnknown}
		for _, row := range t.Rows {
			cell := row[i]
			if IsMissing(cell) {
				col.Nullable = true
				continue
			}
			k := KindOf(cell)
			switch {
			case col.Kind == KindUnknown:
				col.Kind = k
			case col.Kind == KindInt && k == KindFloat, col.Kind == KindFloat && k == KindInt:
				// Integers widen to float
				col.Kind = KindFloat
			case col.Kind != k:
				col.Kind = KindMixed
			}
		}
		meta.Columns[i] = col
	}

	return meta
}

// KindOf returns the kind of a single non-missing cell
func KindOf(v any) Kind {
	switch v.(type) {
	case string, []byte:
		return KindString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	default:
		return KindMixed
	}
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range tm.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &tm.Columns[i]
		}
	}
	return nil
}

// IsUUIDColumn checks if a column should be treated as a UUID based on its name
func (col *Column) IsUUIDColumn() bool {
	name := normalizeColumnName(col.Name)
	return name == "uuid" || hasSuffix(name, "_uuid")
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func hasSuffix(s, suffix string) bool {
	return strings.HasSuffix(
		strings.ToLower(s),
		strings.ToLower(suffix),
	)
}
