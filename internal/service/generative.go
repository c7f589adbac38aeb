package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"farm-analytics/internal/model"
)

// CompletionClient is the upstream model service: one bounded call that
// takes a prompt and returns raw text expected to be JSON.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenerativeGenerator serializes the aggregated view into a fixed
// prompt, calls the upstream model, and parses the response strictly.
// Any schema violation fails the whole variant; there are no partial
// results.
type GenerativeGenerator struct {
	client  CompletionClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerativeGenerator wires the generative variant. The timeout
// bounds the single upstream call.
func NewGenerativeGenerator(client CompletionClient, timeout time.Duration, logger *slog.Logger) *GenerativeGenerator {
	return &GenerativeGenerator{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Generate calls the upstream model with the aggregated view and
// validates the response against the analytics schema.
func (g *GenerativeGenerator) Generate(ctx context.Context, agg Aggregation, cropFilter string) (*model.AnalyticsResult, error) {
	if agg.Empty() {
		// Nothing to analyze; no reason to spend an upstream call.
		return nil, fmt.Errorf("%w: empty aggregate", ErrSchemaMismatch)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(agg, cropFilter)
	raw, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("upstream completion failed: %w", err)
	}

	result, err := parseGeneratedAnalytics(raw)
	if err != nil {
		g.logger.Warn("generative response rejected",
			"farmer_id", agg.FarmerID,
			"error", err.Error(),
		)
		return nil, err
	}
	result.Source = model.SourceGenerative
	return result, nil
}

// buildPrompt encodes the aggregated view (never raw rows) plus an
// explicit output schema description.
func buildPrompt(agg Aggregation, cropFilter string) string {
	var b strings.Builder

	b.WriteString("You are a farm marketplace analytics AI assistant.\n\n")
	b.WriteString("**Aggregated Supply/Sales Data:**\n")
	b.WriteString("crop,week_start,total_supplied_kg,total_sold_kg,avg_delivery_delay_min\n")
	for _, crop := range agg.CropNames() {
		for _, r := range agg.WeeklyTotals(crop) {
			fmt.Fprintf(&b, "%s,%s,%.2f,%.2f,%.2f\n",
				crop, r.WeekStart, r.TotalSuppliedKg, r.TotalSoldKg, r.AvgDeliveryDelayMin)
		}
	}
	b.WriteString("\n**Per-Crop Summary:**\n")
	for _, crop := range agg.CropNames() {
		ca := agg.Crops[crop]
		fmt.Fprintf(&b, "%s: supplied %.2f kg, sold %.2f kg, sell-through %.2f, avg delay %.1f min over %d week(s)\n",
			crop, ca.TotalSupplied, ca.TotalSold, ca.SellThroughRatio, ca.AvgDelay, ca.Weeks)
	}

	b.WriteString(`
**Your Task:**
Analyze this farm supply/sales data and return ONLY valid JSON in this EXACT format:
{
  "insights": [
    {"title": "Brief insight title", "explanation": "1-2 sentence explanation"},
    {"title": "Another insight", "explanation": "1-2 sentence explanation"},
    {"title": "Third insight", "explanation": "1-2 sentence explanation"}
  ],
  "forecast": [
    {"week_start": "YYYY-MM-DD", "crop": "crop_name", "kg": 0},
    {"week_start": "YYYY-MM-DD", "crop": "crop_name", "kg": 0}
  ],
  "recommendations": [
    "Practical recommendation 1 for the farmer",
    "Practical recommendation 2 for the farmer",
    "Practical recommendation 3 for the farmer"
  ]
}

**Requirements:**
1. Provide EXACTLY 3 insights (top patterns, trends, or anomalies)
2. Forecast sales for the next 2 weeks for each crop found in the data
3. Give EXACTLY 3 actionable recommendations to improve sales/delivery/efficiency
4. Output MUST be valid JSON only - no markdown, no explanation, no extra text
5. Base all analysis on the actual data patterns`)
	if cropFilter != "" {
		fmt.Fprintf(&b, " Focus on %s crop.", cropFilter)
	}
	b.WriteString("\n\n**Output (JSON only):**")

	return b.String()
}

// generatedPayload mirrors the prompt's schema. Pointers distinguish a
// missing key from an empty array.
type generatedPayload struct {
	Insights        *[]generatedInsight  `json:"insights"`
	Forecast        *[]generatedForecast `json:"forecast"`
	Recommendations *[]string            `json:"recommendations"`
}

type generatedInsight struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

type generatedForecast struct {
	WeekStart string  `json:"week_start"`
	Crop      string  `json:"crop"`
	Kg        float64 `json:"kg"`
}

// parseGeneratedAnalytics validates a raw model response against the
// analytics schema. Missing keys, wrong types, empty titles, bad dates
// or negative quantities all reject the response as a whole; malformed
// fields are never coerced.
func parseGeneratedAnalytics(raw string) (*model.AnalyticsResult, error) {
	var payload generatedPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrSchemaMismatch, err)
	}

	if payload.Insights == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSchemaMismatch, "insights")
	}
	if payload.Forecast == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSchemaMismatch, "forecast")
	}
	if payload.Recommendations == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSchemaMismatch, "recommendations")
	}
	if len(*payload.Insights) == 0 {
		return nil, fmt.Errorf("%w: insights must not be empty", ErrSchemaMismatch)
	}

	result := &model.AnalyticsResult{
		Insights:        make([]model.Insight, 0, len(*payload.Insights)),
		Forecast:        make([]model.ForecastPoint, 0, len(*payload.Forecast)),
		Recommendations: append([]string{}, *payload.Recommendations...),
	}

	for i, in := range *payload.Insights {
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("%w: insight %d has an empty title", ErrSchemaMismatch, i)
		}
		result.Insights = append(result.Insights, model.Insight{
			Title:       in.Title,
			Explanation: in.Explanation,
		})
	}

	for i, f := range *payload.Forecast {
		week, err := model.ParseWeek(f.WeekStart)
		if err != nil {
			return nil, fmt.Errorf("%w: forecast %d: %v", ErrSchemaMismatch, i, err)
		}
		if strings.TrimSpace(f.Crop) == "" {
			return nil, fmt.Errorf("%w: forecast %d has an empty crop", ErrSchemaMismatch, i)
		}
		if f.Kg < 0 {
			return nil, fmt.Errorf("%w: forecast %d has negative kg", ErrSchemaMismatch, i)
		}
		result.Forecast = append(result.Forecast, model.ForecastPoint{
			WeekStart: week,
			Crop:      f.Crop,
			Kg:        f.Kg,
		})
	}

	return result, nil
}
