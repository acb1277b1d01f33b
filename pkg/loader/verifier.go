// pkg/loader/verifier.go
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// StructureDiscrepancy describes a column that differs from the expected layout
type StructureDiscrepancy struct {
	ColumnName   string
	ExpectedType string
	ActualType   string
	IsMissing    bool
	IsExtra      bool
}

// IntegrityIssue describes a key problem found after loading
type IntegrityIssue struct {
	IssueType    string
	ColumnName   string
	AffectedRows int64
}

// VerificationReport collects the checks run after a load
type VerificationReport struct {
	Schema                 string
	Table                  string
	RowCountMatches        bool
	RowsWritten            int64
	TargetRowCount         int64
	StructureMatches       bool
	StructureDiscrepancies []StructureDiscrepancy
	IntegrityIssues        []IntegrityIssue
	Duration               time.Duration
}

// OK reports whether every check passed
func (r *VerificationReport) OK() bool {
	return r.RowCountMatches && r.StructureMatches && len(r.IntegrityIssues) == 0
}

// Verifier checks a loaded PostgreSQL table against what was written
type Verifier struct {
	db      *sql.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a verifier over the target database
func NewVerifier(db *sql.DB, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{db: db, logger: logger.Named("verifier"), timeout: time.Minute}
}

// WithTimeout sets the per-check timeout
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// Verify runs the row count, structure and key checks. Mismatches are logged as warnings.
func (v *Verifier) Verify(
	ctx context.Context,
	schema, table string,
	written int64,
	policy Policy,
	expected *model.TableMetadata,
	keyColumn string,
) (*VerificationReport, error) {
	start := time.Now()
	report := &VerificationReport{Schema: schema, Table: table, RowsWritten: written}

	ok, count, err := v.VerifyRowCount(ctx, schema, table, written, policy)
	if err != nil {
		return nil, err
	}
	report.RowCountMatches, report.TargetRowCount = ok, count

	if expected != nil {
		ok, discrepancies, err := v.VerifyTableStructure(ctx, schema, table, expected)
		if err != nil {
			return nil, err
		}
		report.StructureMatches, report.StructureDiscrepancies = ok, discrepancies
	} else {
		report.StructureMatches = true
	}

	if keyColumn != "" {
		issues, err := v.VerifyKey(ctx, schema, table, keyColumn)
		if err != nil {
			return nil, err
		}
		report.IntegrityIssues = issues
	}

	report.Duration = time.Since(start)
	return report, nil
}

// VerifyRowCount compares COUNT(*) with rows written. Appends only require at least that many rows.
func (v *Verifier) VerifyRowCount(ctx context.Context, schema, table string, written int64, policy Policy) (bool, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var count int64
	query := "SELECT COUNT(*) FROM " + connector.QualifiedName(schema, table)
	if err := v.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("failed to count %s.%s: %w", schema, table, err)
	}

	matches := RowCountMatches(policy, written, count)
	if matches {
		v.logger.Info("Row count verification successful",
			zap.String("table", table),
			zap.Int64("count", count))
	} else {
		v.logger.Warn("Row count mismatch",
			zap.String("table", table),
			zap.String("policy", string(policy)),
			zap.Int64("written", written),
			zap.Int64("targetCount", count))
	}
	return matches, count, nil
}

// RowCountMatches applies the per-policy count rule
func RowCountMatches(policy Policy, written, count int64) bool {
	if policy == PolicyAppend {
		return count >= written
	}
	return count == written
}

// VerifyTableStructure compares information_schema columns with the expected layout
func (v *Verifier) VerifyTableStructure(ctx context.Context, schema, table string, expected *model.TableMetadata) (bool, []StructureDiscrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	rows, err := v.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get table structure: %w", err)
	}
	defer rows.Close()

	actual := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return false, nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		actual[strings.ToLower(name)] = dataType
	}
	if err := rows.Err(); err != nil {
		return false, nil, err
	}

	discrepancies := CompareStructure(expected, actual)
	if len(discrepancies) > 0 {
		v.logger.Warn("Table structure discrepancies found",
			zap.String("table", table),
			zap.Int("discrepancies", len(discrepancies)))
	}
	return len(discrepancies) == 0, discrepancies, nil
}

// CompareStructure diffs expected columns against information_schema data types keyed by lower-case name.
// Columns added later by migrations are reported as extra.
func CompareStructure(expected *model.TableMetadata, actual map[string]string) []StructureDiscrepancy {
	var discrepancies []StructureDiscrepancy
	seen := make(map[string]bool, len(expected.Columns))

	for _, col := range expected.Columns {
		name := strings.ToLower(col.Name)
		seen[name] = true
		dataType, ok := actual[name]
		if !ok {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName:   col.Name,
				ExpectedType: col.PgType,
				IsMissing:    true,
			})
			continue
		}
		if !strings.EqualFold(InformationSchemaType(col.PgType), dataType) {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName:   col.Name,
				ExpectedType: col.PgType,
				ActualType:   dataType,
			})
		}
	}

	for name, dataType := range actual {
		if !seen[name] {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName: name,
				ActualType: dataType,
				IsExtra:    true,
			})
		}
	}
	return discrepancies
}

// InformationSchemaType converts a DDL type to the data_type reported by information_schema
func InformationSchemaType(pgType string) string {
	t := strings.ToUpper(strings.TrimSpace(pgType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "VARCHAR":
		return "character varying"
	case "TIMESTAMP":
		return "timestamp without time zone"
	case "TIMESTAMPTZ":
		return "timestamp with time zone"
	case "INT", "INT4":
		return "integer"
	case "INT8":
		return "bigint"
	case "FLOAT8":
		return "double precision"
	case "BOOL":
		return "boolean"
	default:
		return strings.ToLower(t)
	}
}

// VerifyKey checks that keyColumn has no NULLs and no duplicate values
func (v *Verifier) VerifyKey(ctx context.Context, schema, table, keyColumn string) ([]IntegrityIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var issues []IntegrityIssue
	nullQuery, dupQuery := keyCheckQueries(schema, table, keyColumn)

	var nullCount int64
	if err := v.db.QueryRowContext(ctx, nullQuery).Scan(&nullCount); err != nil {
		return nil, fmt.Errorf("failed to check nulls in %s: %w", keyColumn, err)
	}
	if nullCount > 0 {
		issues = append(issues, IntegrityIssue{IssueType: "NULL_KEY", ColumnName: keyColumn, AffectedRows: nullCount})
	}

	var duplicates int64
	if err := v.db.QueryRowContext(ctx, dupQuery).Scan(&duplicates); err != nil {
		return nil, fmt.Errorf("failed to check duplicates in %s: %w", keyColumn, err)
	}
	if duplicates > 0 {
		issues = append(issues, IntegrityIssue{IssueType: "DUPLICATE_KEY", ColumnName: keyColumn, AffectedRows: duplicates})
	}

	for _, issue := range issues {
		v.logger.Warn("Key integrity issue",
			zap.String("table", table),
			zap.String("issue", issue.IssueType),
			zap.String("column", issue.ColumnName),
			zap.Int64("affectedRows", issue.AffectedRows))
	}
	return issues, nil
}

// keyCheckQueries returns the null-count and duplicate-count queries for a key column.
// Each duplicate group of n rows counts n-1 affected rows.
func keyCheckQueries(schema, table, keyColumn string) (string, string) {
	name := connector.QualifiedName(schema, table)
	col := connector.QualifiedName("", keyColumn)
	nullQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", name, col)
	dupQuery := fmt.Sprintf(
		"SELECT COALESCE(SUM(n - 1), 0)::bigint FROM (SELECT COUNT(*) AS n FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1) d",
		name, col, col)
	return nullQuery, dupQuery
}
