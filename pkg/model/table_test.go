package model

import (
	"errors"
	"testing"
	"time"
)

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   *Table
		wantErr bool
	}{
		{
			name:    "nil table",
			table:   nil,
			wantErr: true,
		},
		{
			name:  "well formed",
			table: &Table{Name: "t", Columns: []string{"a", "b"}, Rows: [][]any{{1, 2}, {nil, "x"}}},
		},
		{
			name:    "duplicate column",
			table:   &Table{Name: "t", Columns: []string{"a", "a"}},
			wantErr: true,
		},
		{
			name:    "ragged row",
			table:   &Table{Name: "t", Columns: []string{"a", "b"}, Rows: [][]any{{1}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTable) {
					t.Fatalf("Validate() error = %v, want ErrInvalidTable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestIsMissing(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, true},
		{"", true},
		{"   ", true},
		{"NULL", true},
		{"N/A", true},
		{"NaN", true},
		{"Unknown", false},
		{"0", false},
		{int64(0), false},
		{0.0, false},
		{time.Time{}, false},
	}

	for _, tt := range tests {
		if got := IsMissing(tt.value); got != tt.want {
			t.Errorf("IsMissing(%#v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestDropColumnsIgnoresAbsent(t *testing.T) {
	tbl := NewTable("orders", "index", "first_name", "product_code")
	_ = tbl.AddRow(int64(0), "Ann", "A1")

	removed := tbl.DropColumns("first_name", "last_name")
	if len(removed) != 1 || removed[0] != "first_name" {
		t.Fatalf("removed = %v, want [first_name]", removed)
	}
	if tbl.HasColumn("first_name") {
		t.Fatal("first_name still present")
	}
	if got := tbl.Rows[0]; len(got) != 2 || got[1] != "A1" {
		t.Fatalf("row = %v, want [0 A1]", got)
	}
}

func TestFilterRowsKeepsOrder(t *testing.T) {
	tbl := NewTable("t", "n")
	for i := 0; i < 5; i++ {
		_ = tbl.AddRow(int64(i))
	}

	removed := tbl.FilterRows(func(_ int, row []any) bool {
		return row[0].(int64)%2 == 0
	})

	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	want := []int64{0, 2, 4}
	for i, w := range want {
		if tbl.Rows[i][0] != w {
			t.Errorf("row %d = %v, want %d", i, tbl.Rows[i][0], w)
		}
	}
}

func TestMissingRatio(t *testing.T) {
	tbl := NewTable("t", "a", "b")
	_ = tbl.AddRow("x", nil)
	_ = tbl.AddRow("y", "NULL")
	_ = tbl.AddRow(nil, "z")
	_ = tbl.AddRow("w", nil)

	ratios := tbl.MissingRatio()
	if ratios["a"] != 25 {
		t.Errorf("a = %v, want 25", ratios["a"])
	}
	if ratios["b"] != 75 {
		t.Errorf("b = %v, want 75", ratios["b"])
	}
}

func TestDescribeTable(t *testing.T) {
	tbl := NewTable("products", "name", "weight", "qty", "added", "user_uuid")
	_ = tbl.AddRow("a", 1.5, int64(2), time.Now(), "e0b2a5d8-3d9c-4a56-8f5c-2f0b4c4d9b11")
	_ = tbl.AddRow("b", int64(2), nil, time.Now(), "e0b2a5d8-3d9c-4a56-8f5c-2f0b4c4d9b12")

	meta := DescribeTable("public", tbl)

	want := map[string]Kind{
		"name":   KindString,
		"weight": KindFloat,
		"qty":    KindInt,
		"added":  KindTime,
	}
	for name, kind := range want {
		col := meta.GetColumnByName(name)
		if col == nil {
			t.Fatalf("column %s missing", name)
		}
		if col.Kind != kind {
			t.Errorf("%s kind = %v, want %v", name, col.Kind, kind)
		}
	}
	if !meta.GetColumnByName("qty").Nullable {
		t.Error("qty should be nullable")
	}
	if !meta.GetColumnByName("USER_UUID").IsUUIDColumn() {
		t.Error("user_uuid should be a uuid column")
	}
}
