package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"farm-analytics/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCompletionClient struct {
	response string
	err      error
	prompts  []string
}

func (c *stubCompletionClient) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

const validGeneratedJSON = `{
  "insights": [
    {"title": "Tomato demand is strong", "explanation": "Sell-through stayed above 90%."},
    {"title": "Supply trending up", "explanation": "Weekly supply grew two weeks in a row."},
    {"title": "Deliveries on time", "explanation": "Average delay stayed under 30 minutes."}
  ],
  "forecast": [
    {"week_start": "2025-09-15", "crop": "tomato", "kg": 510},
    {"week_start": "2025-09-22", "crop": "tomato", "kg": 540}
  ],
  "recommendations": [
    "Increase tomato supply next week.",
    "Lock in buyers before harvest.",
    "Keep the current delivery schedule."
  ]
}`

func testAggregation(t *testing.T) Aggregation {
	t.Helper()
	history := model.FarmerHistory{
		FarmerID: "farmer_1",
		Records: []model.WeeklyRecord{
			record(t, "2025-09-01", "tomato", 500, 450, 20),
			record(t, "2025-09-08", "tomato", 520, 480, 25),
		},
	}
	return Aggregate(history, "", 12)
}

func TestGenerativeGenerate_Success(t *testing.T) {
	client := &stubCompletionClient{response: validGeneratedJSON}
	gen := NewGenerativeGenerator(client, time.Second, testLogger())

	result, err := gen.Generate(context.Background(), testAggregation(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != model.SourceGenerative {
		t.Errorf("source = %s, want %s", result.Source, model.SourceGenerative)
	}
	if len(result.Insights) != 3 || len(result.Forecast) != 2 || len(result.Recommendations) != 3 {
		t.Errorf("unexpected result shape: %d insights, %d forecast, %d recommendations",
			len(result.Insights), len(result.Forecast), len(result.Recommendations))
	}
	if result.Forecast[0].Kg != 510 || result.Forecast[0].Crop != "tomato" {
		t.Errorf("unexpected first forecast point: %+v", result.Forecast[0])
	}

	if len(client.prompts) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	// The prompt carries the aggregated view, never raw rows.
	if !strings.Contains(prompt, "tomato,2025-09-01,500.00,450.00") {
		t.Errorf("prompt missing aggregated weekly data:\n%s", prompt)
	}
	if !strings.Contains(prompt, "valid JSON") {
		t.Errorf("prompt missing output schema instructions:\n%s", prompt)
	}
}

func TestGenerativeGenerate_UpstreamError(t *testing.T) {
	client := &stubCompletionClient{err: errors.New("connection refused")}
	gen := NewGenerativeGenerator(client, time.Second, testLogger())

	_, err := gen.Generate(context.Background(), testAggregation(t), "")
	if err == nil {
		t.Fatal("expected error when upstream call fails")
	}
}

func TestGenerativeGenerate_EmptyAggregate(t *testing.T) {
	client := &stubCompletionClient{response: validGeneratedJSON}
	gen := NewGenerativeGenerator(client, time.Second, testLogger())

	_, err := gen.Generate(context.Background(), Aggregation{}, "")
	if err == nil {
		t.Fatal("expected error for empty aggregate")
	}
	if len(client.prompts) != 0 {
		t.Errorf("empty aggregate must not reach the upstream model, got %d calls", len(client.prompts))
	}
}

func TestParseGeneratedAnalytics_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "not JSON at all",
			raw:  "Here are your insights: the tomato crop is doing great!",
		},
		{
			name: "missing insights key",
			raw:  `{"forecast": [], "recommendations": []}`,
		},
		{
			name: "missing forecast key",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "recommendations": []}`,
		},
		{
			name: "missing recommendations key",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "forecast": []}`,
		},
		{
			name: "empty insights",
			raw:  `{"insights": [], "forecast": [], "recommendations": []}`,
		},
		{
			name: "insight with empty title",
			raw:  `{"insights": [{"title": "  ", "explanation": "b"}], "forecast": [], "recommendations": []}`,
		},
		{
			name: "wrong type for insights",
			raw:  `{"insights": "strong demand", "forecast": [], "recommendations": []}`,
		},
		{
			name: "forecast with bad date",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "forecast": [{"week_start": "next week", "crop": "tomato", "kg": 10}], "recommendations": []}`,
		},
		{
			name: "forecast with empty crop",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "forecast": [{"week_start": "2025-09-15", "crop": "", "kg": 10}], "recommendations": []}`,
		},
		{
			name: "forecast with negative kg",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "forecast": [{"week_start": "2025-09-15", "crop": "tomato", "kg": -5}], "recommendations": []}`,
		},
		{
			name: "kg as string",
			raw:  `{"insights": [{"title": "a", "explanation": "b"}], "forecast": [{"week_start": "2025-09-15", "crop": "tomato", "kg": "ten"}], "recommendations": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGeneratedAnalytics(tt.raw)
			if err == nil {
				t.Fatal("expected schema rejection, got nil error")
			}
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("expected ErrSchemaMismatch, got %v", err)
			}
		})
	}
}

func TestParseGeneratedAnalytics_ValidPayload(t *testing.T) {
	result, err := parseGeneratedAnalytics("  " + validGeneratedJSON + "\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Insights[0].Title != "Tomato demand is strong" {
		t.Errorf("unexpected first insight: %+v", result.Insights[0])
	}
	if result.Forecast[1].WeekStart.String() != "2025-09-22" {
		t.Errorf("unexpected second forecast week: %s", result.Forecast[1].WeekStart)
	}
}
