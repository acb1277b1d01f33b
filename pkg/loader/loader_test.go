package loader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"fail", "Replace", " append "} {
		if _, err := ParsePolicy(s); err != nil {
			t.Errorf("ParsePolicy(%q): %v", s, err)
		}
	}
	if _, err := ParsePolicy("upsert"); err == nil {
		t.Error("unknown policy should be rejected")
	}
}

func TestPlanDDL(t *testing.T) {
	defs := []string{`"user_uuid" UUID NULL`}
	create := "CREATE TABLE \"public\".\"dim_users\" (\n\t\"user_uuid\" UUID NULL\n)"

	tests := []struct {
		name    string
		policy  Policy
		exists  bool
		want    []string
		wantErr error
	}{
		{name: "fail new", policy: PolicyFail, want: []string{create}},
		{name: "fail existing", policy: PolicyFail, exists: true, wantErr: ErrTableExists},
		{name: "replace new", policy: PolicyReplace, want: []string{create}},
		{name: "replace existing", policy: PolicyReplace, exists: true, want: []string{`DROP TABLE "public"."dim_users" CASCADE`, create}},
		{name: "append new", policy: PolicyAppend, want: []string{create}},
		{name: "append existing", policy: PolicyAppend, exists: true, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanDDL(tt.policy, tt.exists, "public", "dim_users", defs)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if strings.Join(got, ";") != strings.Join(tt.want, ";") {
				t.Errorf("statements = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := PlanDDL("merge", false, "public", "dim_users", defs); err == nil {
		t.Error("unknown policy should be an error")
	}
}

func TestWriteDisposition(t *testing.T) {
	tests := map[Policy]bigquery.TableWriteDisposition{
		PolicyFail:    bigquery.WriteEmpty,
		PolicyReplace: bigquery.WriteTruncate,
		PolicyAppend:  bigquery.WriteAppend,
	}
	for policy, want := range tests {
		got, err := WriteDisposition(policy)
		if err != nil || got != want {
			t.Errorf("WriteDisposition(%s) = %s, %v; want %s", policy, got, err, want)
		}
	}
	if _, err := WriteDisposition("x"); err == nil {
		t.Error("unknown policy should be an error")
	}
}

func TestEncodeBigQueryCSV(t *testing.T) {
	tbl := model.NewTable("dim_products", "product_name", "weight", "date_added")
	tbl.Rows = [][]any{
		{"tea, green", 0.1, time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"milk", nil, time.Date(2019, 6, 2, 0, 0, 0, 0, time.UTC)},
	}
	schema := converter.NewTypeConverter(zap.NewNop()).BigQuerySchema(tbl)

	data, err := EncodeBigQueryCSV(tbl, schema)
	if err != nil {
		t.Fatalf("EncodeBigQueryCSV: %v", err)
	}
	want := "product_name,weight,date_added\n\"tea, green\",0.1,2018-04-01\nmilk,,2019-06-02\n"
	if string(data) != want {
		t.Errorf("csv =\n%s\nwant\n%s", data, want)
	}
}

func TestRowCountMatches(t *testing.T) {
	tests := []struct {
		policy         Policy
		written, count int64
		want           bool
	}{
		{PolicyReplace, 10, 10, true},
		{PolicyReplace, 10, 12, false},
		{PolicyFail, 10, 9, false},
		{PolicyAppend, 10, 25, true},
		{PolicyAppend, 10, 9, false},
	}
	for _, tt := range tests {
		if got := RowCountMatches(tt.policy, tt.written, tt.count); got != tt.want {
			t.Errorf("RowCountMatches(%s, %d, %d) = %v", tt.policy, tt.written, tt.count, got)
		}
	}
}

func TestCompareStructure(t *testing.T) {
	expected := &model.TableMetadata{Columns: []model.Column{
		{Name: "store_code", PgType: "VARCHAR(50)"},
		{Name: "staff_numbers", PgType: "BIGINT"},
		{Name: "opening_date", PgType: "TIMESTAMP"},
		{Name: "locality", PgType: "TEXT"},
	}}
	actual := map[string]string{
		"store_code":    "character varying",
		"staff_numbers": "text",
		"opening_date":  "timestamp without time zone",
		"weight_class":  "character varying",
	}

	got := CompareStructure(expected, actual)
	if len(got) != 3 {
		t.Fatalf("discrepancies = %+v, want 3", got)
	}

	kinds := map[string]string{}
	for _, d := range got {
		switch {
		case d.IsMissing:
			kinds[d.ColumnName] = "missing"
		case d.IsExtra:
			kinds[d.ColumnName] = "extra"
		default:
			kinds[d.ColumnName] = "type"
		}
	}
	want := map[string]string{"staff_numbers": "type", "locality": "missing", "weight_class": "extra"}
	for col, kind := range want {
		if kinds[col] != kind {
			t.Errorf("%s = %q, want %q", col, kinds[col], kind)
		}
	}
}

func TestKeyCheckQueries(t *testing.T) {
	nullQuery, dupQuery := keyCheckQueries("public", "dim_users", "user_uuid")
	if nullQuery != `SELECT COUNT(*) FROM "public"."dim_users" WHERE "user_uuid" IS NULL` {
		t.Errorf("null query = %s", nullQuery)
	}
	if !strings.Contains(dupQuery, `GROUP BY "user_uuid" HAVING COUNT(*) > 1`) {
		t.Errorf("duplicate query = %s", dupQuery)
	}
}

type recordingWriter struct {
	calls []string
	err   error
}

func (w *recordingWriter) Write(_ context.Context, table *model.Table, destination string, policy Policy) (int64, error) {
	w.calls = append(w.calls, destination+":"+string(policy))
	if w.err != nil {
		return 0, w.err
	}
	return int64(table.Len()), nil
}

func TestMultiWriter(t *testing.T) {
	tbl := model.NewTable("dim_users", "user_uuid")
	tbl.Rows = [][]any{{"a"}, {"b"}}

	primary := &recordingWriter{}
	secondary := &recordingWriter{err: errors.New("quota exceeded")}
	mw := MultiWriter{Primary: primary, Secondaries: []Writer{secondary}}

	n, err := mw.Write(context.Background(), tbl, "dim_users", PolicyReplace)
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("err = %v, want secondary failure", err)
	}
	if len(secondary.calls) != 1 {
		t.Error("secondary should be called after primary succeeds")
	}

	failing := MultiWriter{Primary: &recordingWriter{err: ErrTableExists}, Secondaries: []Writer{secondary}}
	if _, err := failing.Write(context.Background(), tbl, "dim_users", PolicyFail); !errors.Is(err, ErrTableExists) {
		t.Errorf("err = %v, want ErrTableExists", err)
	}
	if len(secondary.calls) != 1 {
		t.Error("secondary must not run when primary fails")
	}
}
