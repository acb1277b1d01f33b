// pkg/model/cleaning.go
package model

import (
	"time"
)

// CleaningOperation represents a single cleaning step applied to an entity table
type CleaningOperation struct {
	RunID        string    // Run that produced the operation
	Entity       string    // Entity type (user, card, ...)
	TableName    string    // Table being cleaned
	Step         string    // Pipeline step (e.g., "drop_empty_columns")
	ColumnName   string    // Column affected, empty for row-wide steps
	RowsAffected int       // Rows removed or cells rewritten
	Reason       string    // Why the step acted (e.g., "missing_required_value")
	CleanedAt    time.Time // When the step ran
}

// CleaningReport summarizes a cleaner invocation
type CleaningReport struct {
	Entity     string
	RowsIn     int
	RowsOut    int
	ColumnsIn  int
	ColumnsOut int
	Operations []CleaningOperation
}

// RowsRemoved returns the number of rows the cleaner dropped
func (r *CleaningReport) RowsRemoved() int {
	return r.RowsIn - r.RowsOut
}
