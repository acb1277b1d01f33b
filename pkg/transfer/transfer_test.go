package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/migrate"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

type fakeExtractor struct {
	tables   map[string]*model.Table
	errs     map[string]error
	calls    []string
	cancelOn string
	cancel   context.CancelFunc
}

func (f *fakeExtractor) Extract(ctx context.Context, src extract.Source) (*model.Table, error) {
	f.calls = append(f.calls, src.Table)
	if src.Table == f.cancelOn && f.cancel != nil {
		f.cancel()
	}
	return f.tables[src.Table], f.errs[src.Table]
}

type fakeWriter struct {
	writes map[string]int
	ctxErr map[string]error
	err    error
}

func (w *fakeWriter) Write(ctx context.Context, table *model.Table, destination string, policy loader.Policy) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.writes == nil {
		w.writes = map[string]int{}
		w.ctxErr = map[string]error{}
	}
	w.writes[destination] = table.Len()
	w.ctxErr[destination] = ctx.Err()
	return int64(table.Len()), nil
}

type fakeVerifier struct {
	report *loader.VerificationReport
	err    error
	keys   []string
}

func (v *fakeVerifier) Verify(_ context.Context, _, _ string, written int64, _ loader.Policy, _ *model.TableMetadata, key string) (*loader.VerificationReport, error) {
	v.keys = append(v.keys, key)
	return v.report, v.err
}

type fakeDescriber struct{}

func (fakeDescriber) Schema() string { return "public" }
func (fakeDescriber) Describe(t *model.Table) *model.TableMetadata {
	return model.DescribeTable("public", t)
}

func usersTable() *model.Table {
	t := model.NewTable("legacy_users", "first_name", "email_address", "user_uuid", "join_date")
	t.Rows = [][]any{
		{"Ann", "ann@example.com", "5f3b2b0e-3a1d-4c49-a0f6-ef3e0fa7e8a1", "2020-01-01"},
		{"Bob", "bob@example.com", "0c4fe4b5-7d65-4bf4-b4a4-64c09b2aa0f0", "2021-02-03"},
	}
	return t
}

func ordersTable() *model.Table {
	t := model.NewTable("orders_table", "first_name", "user_uuid", "product_quantity")
	t.Rows = [][]any{
		{"Ann", "5f3b2b0e-3a1d-4c49-a0f6-ef3e0fa7e8a1", int64(2)},
		{"Bob", nil, int64(1)},
	}
	return t
}

func jobs() []EntityJob {
	return []EntityJob{
		NewEntityJob(cleaner.EntityUser, extract.Source{Kind: extract.KindRDS, Table: "legacy_users"}, loader.PolicyReplace),
		NewEntityJob(cleaner.EntityOrder, extract.Source{Kind: extract.KindRDS, Table: "orders_table"}, loader.PolicyReplace),
	}
}

func TestRunnerRun(t *testing.T) {
	ex := &fakeExtractor{tables: map[string]*model.Table{
		"legacy_users": usersTable(),
		"orders_table": ordersTable(),
	}}
	w := &fakeWriter{}
	v := &fakeVerifier{report: &loader.VerificationReport{RowCountMatches: true, StructureMatches: true}}

	r := NewRunner("run-1", ex, cleaner.NewCleaner(zap.NewNop(), nil), w, zap.NewNop()).
		WithVerifier(v, fakeDescriber{})
	summary := r.Run(context.Background(), jobs())

	if !summary.OK() || summary.Succeeded != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if w.writes["dim_users"] != 2 {
		t.Errorf("dim_users rows = %d, want 2", w.writes["dim_users"])
	}
	if w.writes["orders_table"] != 1 {
		t.Errorf("orders_table rows = %d, want 1 after dropping incomplete rows", w.writes["orders_table"])
	}
	if summary.Jobs[1].RowsRemoved() != 1 {
		t.Errorf("orders rows removed = %d, want 1", summary.Jobs[1].RowsRemoved())
	}
	if summary.Jobs[0].Verification == nil {
		t.Error("verification report should be attached")
	}
	if len(v.keys) != 2 || v.keys[0] != "user_uuid" {
		t.Errorf("verified keys = %v", v.keys)
	}
	for _, stage := range []Stage{StageExtract, StageProfile, StageClean, StageLoad, StageVerify, StageRecord} {
		if _, ok := summary.Jobs[0].StageDurations[stage]; !ok {
			t.Errorf("stage %s not timed", stage)
		}
	}
}

func TestRunnerCollaboratorFailureAbortsJobOnly(t *testing.T) {
	ex := &fakeExtractor{
		tables: map[string]*model.Table{"orders_table": ordersTable()},
		errs:   map[string]error{"legacy_users": errors.New("dial tcp: connection refused")},
	}
	w := &fakeWriter{}
	r := NewRunner("run-2", ex, cleaner.NewCleaner(zap.NewNop(), nil), w, zap.NewNop())

	summary := r.Run(context.Background(), jobs())
	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Fatalf("failed=%d succeeded=%d", summary.Failed, summary.Succeeded)
	}
	if summary.ErrorCategories[ErrorCategoryCollaborator] != 1 {
		t.Errorf("categories = %v", summary.ErrorCategories)
	}
	if _, ok := w.writes["orders_table"]; !ok {
		t.Error("later job should still run")
	}
}

func TestRunnerStructuralFailure(t *testing.T) {
	broken := model.NewTable("legacy_users", "first_name", "email_address")
	broken.Rows = [][]any{{"Ann"}}

	ex := &fakeExtractor{tables: map[string]*model.Table{
		"legacy_users": broken,
		"orders_table": ordersTable(),
	}}
	r := NewRunner("run-3", ex, cleaner.NewCleaner(zap.NewNop(), nil), &fakeWriter{}, zap.NewNop())

	summary := r.Run(context.Background(), jobs())
	if summary.Jobs[0].Success {
		t.Fatal("ragged table should fail the job")
	}
	if got := summary.Jobs[0].Errors[0]; got.Category != ErrorCategoryStructural || got.Stage != StageClean {
		t.Errorf("error = %+v", got)
	}
	if summary.Succeeded != 1 {
		t.Error("orders should still load")
	}
}

func TestRunnerInterruptedKeepsPartialAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := model.NewTable("store_details", "store_code", "locality", "staff_numbers", "opening_date")
	stores.Rows = [][]any{{"ST-1", "Town", "12", "2020-01-01"}}

	ex := &fakeExtractor{
		tables:   map[string]*model.Table{"stores": stores},
		errs:     map[string]error{"stores": fmt.Errorf("%w after 1 of 3 stores", extract.ErrInterrupted)},
		cancelOn: "stores",
		cancel:   cancel,
	}
	w := &fakeWriter{}
	r := NewRunner("run-4", ex, cleaner.NewCleaner(zap.NewNop(), nil), w, zap.NewNop())

	storeJob := NewEntityJob(cleaner.EntityStore, extract.Source{Kind: extract.KindAPI, Table: "stores"}, loader.PolicyReplace)
	summary := r.Run(ctx, append([]EntityJob{storeJob}, jobs()...))

	if !summary.Interrupted {
		t.Error("run should be marked interrupted")
	}
	if w.writes["dim_store_details"] != 1 {
		t.Errorf("partial stores loaded = %d, want 1", w.writes["dim_store_details"])
	}
	if w.ctxErr["dim_store_details"] != nil {
		t.Error("load after interrupt should use a context detached from cancellation")
	}
	if !summary.Jobs[0].Partial || !summary.Jobs[0].Success {
		t.Errorf("store job = %+v", summary.Jobs[0])
	}
	if len(summary.Skipped) != 2 || len(ex.calls) != 1 {
		t.Errorf("skipped = %v calls = %v, want the two remaining entities skipped", summary.Skipped, ex.calls)
	}
}

func TestRunnerSkipsWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeExtractor{}
	r := NewRunner("run-5", ex, cleaner.NewCleaner(zap.NewNop(), nil), &fakeWriter{}, zap.NewNop())
	summary := r.Run(ctx, jobs())

	if len(ex.calls) != 0 {
		t.Errorf("no extraction expected, got %v", ex.calls)
	}
	if !summary.Interrupted || len(summary.Skipped) != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunnerVerificationMismatchIsWarning(t *testing.T) {
	ex := &fakeExtractor{tables: map[string]*model.Table{"legacy_users": usersTable()}}
	v := &fakeVerifier{report: &loader.VerificationReport{RowCountMatches: false, StructureMatches: true}}
	r := NewRunner("run-6", ex, cleaner.NewCleaner(zap.NewNop(), nil), &fakeWriter{}, zap.NewNop()).
		WithVerifier(v, fakeDescriber{})

	summary := r.Run(context.Background(), jobs()[:1])
	job := summary.Jobs[0]
	if !job.Success {
		t.Fatal("verification mismatch must not fail the job")
	}
	if len(job.Warnings) == 0 || job.Errors[0].Category != ErrorCategoryDataQuality {
		t.Errorf("job = %+v", job)
	}
}

func TestCategorizeError(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, ErrorCategoryNone},
		{fmt.Errorf("wrap: %w", extract.ErrInterrupted), ErrorCategoryInterrupted},
		{context.Canceled, ErrorCategoryInterrupted},
		{fmt.Errorf("row 3: %w", model.ErrInvalidTable), ErrorCategoryStructural},
		{fmt.Errorf("%w: card_number", cleaner.ErrMissingColumn), ErrorCategoryStructural},
		{fmt.Errorf("dim_users: %w", loader.ErrTableExists), ErrorCategoryCollaborator},
		{fmt.Errorf("m1: %w", migrate.ErrDuplicateKey), ErrorCategoryCollaborator},
		{errors.New("dial tcp: connection refused"), ErrorCategoryCollaborator},
		{errors.New("failed to parse value"), ErrorCategoryDataQuality},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := eh.CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	actions := map[ErrorCategory]Action{
		ErrorCategoryDataQuality:  ActionContinue,
		ErrorCategoryStructural:   ActionAbortJob,
		ErrorCategoryCollaborator: ActionAbortJob,
		ErrorCategoryInterrupted:  ActionStopRun,
	}
	for category, want := range actions {
		rec := NewErrorRecord(errors.New("x"), category).WithEntity("user").WithStage(StageLoad)
		if got := eh.HandleError(rec); got != want {
			t.Errorf("%s -> %s, want %s", category, got, want)
		}
	}
	if eh.GetEntityErrorCounts()["user"] != 4 {
		t.Errorf("entity counts = %v", eh.GetEntityErrorCounts())
	}
	if !eh.IsErrorThresholdExceeded() {
		t.Error("an interrupt exceeds the zero threshold")
	}
	if !strings.Contains(NewErrorRecord(errors.New("boom"), ErrorCategoryStructural).WithEntity("card").String(), "Entity: card") {
		t.Error("record string should name the entity")
	}
}

func TestMetricsReport(t *testing.T) {
	m := NewRunMetrics("run-7", zap.NewNop())
	ok := NewJobResult(NewEntityJob(cleaner.EntityUser, extract.Source{}, loader.PolicyReplace))
	ok.RowsRead, ok.RowsCleaned, ok.RowsLoaded = 10, 8, 8
	ok.Complete(true)
	bad := NewJobResult(NewEntityJob(cleaner.EntityCard, extract.Source{}, loader.PolicyReplace))
	bad.AddError(NewErrorRecord(errors.New("pdftotext failed"), ErrorCategoryCollaborator))
	bad.Complete(false)

	m.RecordJob(*ok)
	m.RecordJob(*bad)
	m.RecordSkipped("order", "run stopped")
	m.Complete()

	report := m.GenerateMetricsReport()
	for _, want := range []string{"run-7", "user -> dim_users: 10 read, 8 cleaned, 8 loaded", "failed: pdftotext failed", "order: skipped", "Collaborator: 1"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	data, err := m.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["succeeded"] != float64(1) || decoded["failed"] != float64(1) {
		t.Errorf("json = %s", data)
	}

	summary := m.GenerateRunSummary()
	if summary.SuccessRate() != 50 || summary.OK() {
		t.Errorf("summary success rate = %.1f ok=%v", summary.SuccessRate(), summary.OK())
	}
}
