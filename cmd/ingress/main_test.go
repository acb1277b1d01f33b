package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/transfer"
)

func fullConfig() *config.Config {
	return &config.Config{
		StoreAPI: config.StoreAPIConfig{BaseURL: "https://api.example.com/prod", APIKey: "k"},
		Sources: config.SourcesConfig{
			CardPDFURL:   "https://example.com/card_details.pdf",
			PDFHeader:    "card_number",
			ProductsURI:  "s3://data-handling-public/products.csv",
			DateTimesURI: "https://example.com/date_details.json",
			UsersTable:   "legacy_users",
			OrdersTable:  "orders_table",
		},
	}
}

func TestParseEntities(t *testing.T) {
	all, err := parseEntities(nil)
	if err != nil || len(all) != len(cleaner.Entities) {
		t.Fatalf("parseEntities(nil) = %v, %v", all, err)
	}

	got, err := parseEntities([]string{"orders", "users", "order"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != cleaner.EntityOrder || got[1] != cleaner.EntityUser {
		t.Errorf("got %v", got)
	}

	if _, err := parseEntities([]string{"invoices"}); err == nil {
		t.Error("unknown entity should fail")
	}
}

func TestEntitySource(t *testing.T) {
	cfg := fullConfig()
	tests := []struct {
		entity   cleaner.Entity
		kind     extract.Kind
		location string
		table    string
	}{
		{cleaner.EntityUser, extract.KindRDS, "", "legacy_users"},
		{cleaner.EntityOrder, extract.KindRDS, "", "orders_table"},
		{cleaner.EntityCard, extract.KindPDF, "https://example.com/card_details.pdf", ""},
		{cleaner.EntityStore, extract.KindAPI, "https://api.example.com/prod", ""},
		{cleaner.EntityProduct, extract.KindObject, "s3://data-handling-public/products.csv", ""},
		{cleaner.EntityDateTime, extract.KindObject, "https://example.com/date_details.json", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.entity), func(t *testing.T) {
			src, err := entitySource(cfg, tt.entity)
			if err != nil {
				t.Fatal(err)
			}
			if src.Kind != tt.kind || src.Location != tt.location || src.Table != tt.table {
				t.Errorf("source = %+v", src)
			}
		})
	}
}

func TestEntitySourceSnowflakeOrders(t *testing.T) {
	cfg := fullConfig()
	cfg.Sources.SnowflakeFrom = "SALES.ORDERS"

	if _, err := entitySource(cfg, cleaner.EntityOrder); err == nil {
		t.Error("expected error when Snowflake is not configured")
	}

	cfg.Snowflake = &config.SnowflakeConfig{}
	src, err := entitySource(cfg, cleaner.EntityOrder)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind != extract.KindSnowflake || src.Table != "SALES.ORDERS" {
		t.Errorf("source = %+v", src)
	}
}

func TestBuildJobsReportsEveryMissingSource(t *testing.T) {
	cfg := fullConfig()
	cfg.Sources.CardPDFURL = ""
	cfg.StoreAPI.BaseURL = ""

	_, err := buildJobs(cfg, cleaner.Entities, loader.PolicyReplace)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"CARD_PDF_URL", "STORE_API_BASE_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	jobs, err := buildJobs(fullConfig(), []cleaner.Entity{cleaner.EntityProduct}, loader.PolicyAppend)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Destination != "dim_products" || jobs[0].Policy != loader.PolicyAppend {
		t.Errorf("job = %+v", jobs[0])
	}
	kinds := sourceKinds(jobSources(jobs)...)
	if !kinds[extract.KindObject] || kinds[extract.KindRDS] {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestRenderTable(t *testing.T) {
	tbl := model.NewTable("t", "name", "weight", "joined")
	tbl.Rows = [][]any{
		{"東京", 0.5, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)},
		{nil, 1.25, nil},
		{"c", 2.0, nil},
	}

	var buf bytes.Buffer
	renderTable(&buf, tbl, 2)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	want := []string{
		"name | weight | joined",
		"-----+--------+-----------",
		"東京 | 0.5    | 2020-01-02",
		"NULL | 1.25   | NULL",
		"... 1 more rows",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatCellTruncates(t *testing.T) {
	got := formatCell(strings.Repeat("x", 50))
	if len(got) != maxCellWidth || !strings.HasSuffix(got, "...") {
		t.Errorf("formatCell = %q", got)
	}
}

func TestPrintSummary(t *testing.T) {
	s := &transfer.RunSummary{
		Jobs: []transfer.JobResult{
			{Entity: "user", Destination: "dim_users", Success: true, RowsRead: 3, RowsCleaned: 2, RowsLoaded: 2},
			{Entity: "store", Destination: "dim_store_details", Success: true, Partial: true, RowsRead: 1, RowsCleaned: 1, RowsLoaded: 1},
		},
		Skipped:         []string{"order"},
		Succeeded:       2,
		TotalRowsLoaded: 3,
		Interrupted:     true,
	}

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()
	for _, want := range []string{"dim_users", "partial", "skipped", "2 succeeded, 0 failed, 1 skipped, 3 rows loaded", "run was interrupted"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestApplyDestinations(t *testing.T) {
	jobs, err := buildJobs(fullConfig(), []cleaner.Entity{cleaner.EntityUser, cleaner.EntityCard}, loader.PolicyReplace)
	if err != nil {
		t.Fatal(err)
	}

	jobs, err = applyDestinations(jobs, map[string]string{"users": "dim_users_staging"})
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Destination != "dim_users_staging" || jobs[1].Destination != "dim_card_details" {
		t.Errorf("destinations = %s, %s", jobs[0].Destination, jobs[1].Destination)
	}

	if _, err := applyDestinations(jobs, map[string]string{"invoice": "x"}); err == nil {
		t.Error("unknown entity should fail")
	}
	if _, err := applyDestinations(jobs, map[string]string{"card": ""}); err == nil {
		t.Error("empty destination should fail")
	}
}
