package service

import (
	"context"
	"errors"
	"testing"

	"farm-analytics/internal/model"
	"farm-analytics/internal/store"
)

type fixedGenerator struct {
	result *model.AnalyticsResult
	err    error
	calls  int
}

func (g *fixedGenerator) Generate(_ context.Context, _ Aggregation, _ string) (*model.AnalyticsResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	out := *g.result
	return &out, nil
}

type recordingSink struct {
	saved   []model.FarmerHistory
	deleted []string
	saveErr error
}

func (s *recordingSink) SaveHistory(_ context.Context, history model.FarmerHistory) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, history)
	return nil
}

func (s *recordingSink) DeleteHistory(_ context.Context, farmerID string) error {
	s.deleted = append(s.deleted, farmerID)
	return nil
}

func newTestService(t *testing.T, generative Generator, sink HistorySink) AnalyticsService {
	t.Helper()
	return NewAnalyticsService(
		store.NewMemoryStore(),
		NewRecordValidator(ValidatorOptions{}),
		generative,
		sink,
		Options{PreferGenerative: generative != nil, DefaultWeeks: 12},
		testLogger(),
	)
}

func sampleRows() []Row {
	return []Row{
		{"week_start": "2025-09-01", "crop": "tomato", "total_supplied_kg": 500.0, "total_sold_kg": 450.0},
		{"week_start": "2025-09-08", "crop": "tomato", "total_supplied_kg": 520.0, "total_sold_kg": 480.0},
	}
}

func TestIngest_PartialSuccess(t *testing.T) {
	svc := newTestService(t, nil, nil)

	rows := append(sampleRows(), Row{"crop": "tomato", "total_supplied_kg": 100.0, "total_sold_kg": 50.0})
	report, err := svc.Ingest(context.Background(), "farmer_1", "Ama", rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Accepted != 2 || len(report.Rejected) != 1 {
		t.Errorf("accepted=%d rejected=%d, want 2 and 1", report.Accepted, len(report.Rejected))
	}

	history, err := svc.GetHistory("farmer_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Records) != 2 {
		t.Errorf("stored records = %d, want 2", len(history.Records))
	}
	if history.FarmerName != "Ama" {
		t.Errorf("farmer name = %q, want Ama", history.FarmerName)
	}
}

func TestIngest_AllRowsRejectedLeavesNoHistory(t *testing.T) {
	svc := newTestService(t, nil, nil)

	report, err := svc.Ingest(context.Background(), "farmer_1", "Ama", []Row{
		{"crop": "tomato", "total_supplied_kg": 100.0, "total_sold_kg": 50.0},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Accepted != 0 || len(report.Rejected) != 1 {
		t.Errorf("accepted=%d rejected=%d, want 0 and 1", report.Accepted, len(report.Rejected))
	}

	if _, err := svc.GetHistory("farmer_1"); !errors.Is(err, ErrFarmerNotFound) {
		t.Errorf("expected ErrFarmerNotFound for farmer with no accepted rows, got %v", err)
	}
	if got := len(svc.ListFarmers()); got != 0 {
		t.Errorf("expected no listed farmers, got %d", got)
	}
}

func TestIngest_EmptyFarmerID(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.Ingest(context.Background(), "", "Ama", sampleRows(), nil)
	if !errors.Is(err, store.ErrEmptyFarmerID) {
		t.Errorf("expected ErrEmptyFarmerID, got %v", err)
	}
}

func TestIngest_AccumulatesAcrossCalls(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Resubmitting the same weeks appends; duplicates are kept.
	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := svc.GetHistory("farmer_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Records) != 4 {
		t.Errorf("records = %d, want 4 after two ingests", len(history.Records))
	}
}

func TestBulkIngest_PartialFailure(t *testing.T) {
	svc := newTestService(t, nil, nil)

	batch := map[string]BulkPayload{
		"farmer_1": {FarmerName: "Ama", Rows: sampleRows()},
		"farmer_2": {FarmerName: "Kofi", Rows: []Row{
			{"crop": "mango", "total_supplied_kg": 100.0, "total_sold_kg": 50.0},
		}},
		"farmer_3": {FarmerName: "Esi", Rows: sampleRows()},
	}

	report := svc.BulkIngest(context.Background(), batch)

	if len(report.Succeeded) != 2 {
		t.Errorf("succeeded = %d, want 2", len(report.Succeeded))
	}
	if _, ok := report.Failed["farmer_2"]; !ok {
		t.Errorf("expected farmer_2 in failed set, got %v", report.Failed)
	}

	farmers := svc.ListFarmers()
	if len(farmers) != 2 {
		t.Fatalf("listed farmers = %d, want 2", len(farmers))
	}
	if farmers[0].FarmerID != "farmer_1" || farmers[1].FarmerID != "farmer_3" {
		t.Errorf("unexpected farmer list: %+v", farmers)
	}
}

func TestBulkIngest_EmptyPayload(t *testing.T) {
	svc := newTestService(t, nil, nil)

	report := svc.BulkIngest(context.Background(), map[string]BulkPayload{
		"farmer_1": {FarmerName: "Ama"},
	})
	if len(report.Succeeded) != 0 {
		t.Errorf("expected no successes, got %v", report.Succeeded)
	}
	if report.Failed["farmer_1"] != "payload contains no rows" {
		t.Errorf("unexpected failure reason: %q", report.Failed["farmer_1"])
	}
}

func TestGenerateAnalytics_UnknownFarmer(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.GenerateAnalytics(context.Background(), "unknown_id", "", 0)
	if !errors.Is(err, ErrFarmerNotFound) {
		t.Errorf("expected ErrFarmerNotFound, got %v", err)
	}
}

func TestGenerateAnalytics_DeterministicOnly(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bundle, err := svc.GenerateAnalytics(ctx, "farmer_1", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Source != model.SourceDeterministic {
		t.Errorf("source = %s, want %s", bundle.Source, model.SourceDeterministic)
	}
	if len(bundle.Analytics.Insights) == 0 {
		t.Error("expected at least one insight")
	}
	if len(bundle.Analytics.Forecast) != 2 {
		t.Errorf("forecast points = %d, want 2", len(bundle.Analytics.Forecast))
	}
	if svc.GenerativeAvailable() {
		t.Error("generative must report unavailable when not wired")
	}
}

func TestGenerateAnalytics_FallsBackWhenGenerativeFails(t *testing.T) {
	failing := &fixedGenerator{err: errors.New("upstream unavailable")}
	svc := newTestService(t, failing, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bundle, err := svc.GenerateAnalytics(ctx, "farmer_1", "", 0)
	if err != nil {
		t.Fatalf("fallback must not surface the generative failure, got %v", err)
	}
	if bundle.Source != model.SourceDeterministic {
		t.Errorf("source = %s, want %s after fallback", bundle.Source, model.SourceDeterministic)
	}
	if failing.calls != 1 {
		t.Errorf("generative variant called %d times, want 1", failing.calls)
	}
	if len(bundle.Analytics.Insights) == 0 || len(bundle.Analytics.Forecast) == 0 {
		t.Error("fallback result must still carry insights and forecast")
	}
}

func TestGenerateAnalytics_UsesGenerativeWhenAvailable(t *testing.T) {
	generated := &model.AnalyticsResult{
		Insights:        []model.Insight{{Title: "Strong tomato run", Explanation: "Demand outpaced supply."}},
		Forecast:        []model.ForecastPoint{{WeekStart: mustWeek(t, "2025-09-15"), Crop: "tomato", Kg: 505}},
		Recommendations: []string{"Bring more tomatoes."},
		Source:          model.SourceGenerative,
	}
	svc := newTestService(t, &fixedGenerator{result: generated}, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bundle, err := svc.GenerateAnalytics(ctx, "farmer_1", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Source != model.SourceGenerative {
		t.Errorf("source = %s, want %s", bundle.Source, model.SourceGenerative)
	}

	// The forecast chart must reflect the generated forecast, not a
	// recomputed one.
	var predicted []model.ChartPoint
	for _, p := range bundle.Charts.Forecast.Data {
		if p.IsForecast {
			predicted = append(predicted, p)
		}
	}
	if len(predicted) != 1 || predicted[0].Y != 505 || predicted[0].X != "2025-09-15" {
		t.Errorf("chart forecast inconsistent with analytics forecast: %+v", predicted)
	}
}

func TestGenerateAnalytics_EmptyWindowSkipsGenerative(t *testing.T) {
	failing := &fixedGenerator{err: errors.New("must not be called")}
	svc := newTestService(t, failing, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bundle, err := svc.GenerateAnalytics(ctx, "farmer_1", "banana", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failing.calls != 0 {
		t.Errorf("generative variant called %d times on empty window, want 0", failing.calls)
	}
	if bundle.Source != model.SourceDeterministic {
		t.Errorf("source = %s, want %s", bundle.Source, model.SourceDeterministic)
	}
	if len(bundle.Analytics.Insights) != 0 || len(bundle.Analytics.Forecast) != 0 {
		t.Errorf("expected empty analytics for empty window, got %+v", bundle.Analytics)
	}
}

func TestRemoveFarmer(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, nil, sink)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.RemoveFarmer(ctx, "farmer_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetHistory("farmer_1"); !errors.Is(err, ErrFarmerNotFound) {
		t.Errorf("expected farmer gone, got %v", err)
	}
	if len(sink.deleted) != 1 || sink.deleted[0] != "farmer_1" {
		t.Errorf("sink deletions = %v, want [farmer_1]", sink.deleted)
	}

	if err := svc.RemoveFarmer(ctx, "farmer_1"); !errors.Is(err, ErrFarmerNotFound) {
		t.Errorf("expected ErrFarmerNotFound on second removal, got %v", err)
	}
}

func TestIngest_MirrorsToSink(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, nil, sink)

	if _, err := svc.Ingest(context.Background(), "farmer_1", "Ama", sampleRows(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("sink saves = %d, want 1", len(sink.saved))
	}
	if sink.saved[0].FarmerID != "farmer_1" || len(sink.saved[0].Records) != 2 {
		t.Errorf("unexpected mirrored snapshot: %+v", sink.saved[0])
	}
}

func TestIngest_SinkFailureDoesNotFailIngest(t *testing.T) {
	sink := &recordingSink{saveErr: errors.New("database unreachable")}
	svc := newTestService(t, nil, sink)

	report, err := svc.Ingest(context.Background(), "farmer_1", "Ama", sampleRows(), nil)
	if err != nil {
		t.Fatalf("sink failure must not fail ingest, got %v", err)
	}
	if report.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", report.Accepted)
	}
	if _, err := svc.GetHistory("farmer_1"); err != nil {
		t.Errorf("history must survive sink failure, got %v", err)
	}
}
