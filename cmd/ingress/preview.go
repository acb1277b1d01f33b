package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/David-Botos/retail-ingress/pkg/migrate"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/transfer"
)

const maxCellWidth = 32

// renderTable writes up to limit rows of t as a padded text table
func renderTable(w io.Writer, t *model.Table, limit int) {
	if limit < 0 || limit > t.Len() {
		limit = t.Len()
	}

	cells := make([][]string, 0, limit+1)
	cells = append(cells, t.Columns)
	for _, row := range t.Rows[:limit] {
		line := make([]string, len(row))
		for j, v := range row {
			line[j] = formatCell(v)
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(t.Columns))
	for _, line := range cells {
		for j, s := range line {
			if n := runewidth.StringWidth(s); n > widths[j] {
				widths[j] = n
			}
		}
	}

	for i, line := range cells {
		var sb strings.Builder
		for j, s := range line {
			if j > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(runewidth.FillRight(s, widths[j]))
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))

		if i == 0 {
			seps := make([]string, len(widths))
			for j, n := range widths {
				seps[j] = strings.Repeat("-", n)
			}
			fmt.Fprintln(w, strings.Join(seps, "-+-"))
		}
	}

	if limit < t.Len() {
		fmt.Fprintf(w, "... %d more rows\n", t.Len()-limit)
	}
}

// formatCell renders a cell within maxCellWidth display columns
func formatCell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "NULL"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			s = x.Format("2006-01-02")
		} else {
			s = x.Format(time.RFC3339)
		}
	case float64:
		s = fmt.Sprintf("%g", x)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, maxCellWidth, "...")
}

// printSummary writes one line per entity plus totals
func printSummary(w io.Writer, s *transfer.RunSummary) {
	rows := model.NewTable("summary", "entity", "destination", "read", "cleaned", "loaded", "status")
	for _, job := range s.Jobs {
		status := "ok"
		switch {
		case !job.Success && len(job.Errors) > 0:
			status = "failed: " + job.Errors[len(job.Errors)-1].Message
		case !job.Success:
			status = "failed"
		case job.Partial:
			status = "partial"
		case job.HasErrors() && len(job.Warnings) > 0:
			status = "ok, " + job.Warnings[0]
		}
		rows.Rows = append(rows.Rows, []any{
			job.Entity, job.Destination, job.RowsRead, job.RowsCleaned, job.RowsLoaded, status,
		})
	}
	for _, entity := range s.Skipped {
		rows.Rows = append(rows.Rows, []any{entity, "", nil, nil, nil, "skipped"})
	}

	renderTable(w, rows, -1)
	fmt.Fprintf(w, "\n%d succeeded, %d failed, %d skipped, %d rows loaded in %s\n",
		s.Succeeded, s.Failed, len(s.Skipped), s.TotalRowsLoaded, s.Duration.Round(time.Millisecond))
	if s.Interrupted {
		fmt.Fprintln(w, "run was interrupted")
	}
}

func operationsTable(ops []model.CleaningOperation) *model.Table {
	t := model.NewTable("operations", "step", "column", "rows", "reason")
	for _, op := range ops {
		t.Rows = append(t.Rows, []any{op.Step, op.ColumnName, int64(op.RowsAffected), op.Reason})
	}
	return t
}

func statusTable(statuses []migrate.Status) *model.Table {
	t := model.NewTable("migrations", "version", "name", "applied", "applied_at")
	for _, s := range statuses {
		var at any
		if s.Applied {
			at = s.AppliedAt
		}
		t.Rows = append(t.Rows, []any{s.Version, s.Name, s.Applied, at})
	}
	return t
}
