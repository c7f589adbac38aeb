package model

import (
	"fmt"
	"time"
)

// Source identifies which strategy produced an analytics result.
type Source string

const (
	SourceGenerative    Source = "generative"
	SourceDeterministic Source = "deterministic"
)

// Week is a calendar date marking the start of a supply week.
// It marshals as YYYY-MM-DD and accepts both YYYY-MM-DD and RFC3339 on input.
type Week struct {
	time.Time
}

// NewWeek builds a Week normalized to midnight UTC.
func NewWeek(t time.Time) Week {
	return Week{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseWeek parses a week start date string.
func ParseWeek(s string) (Week, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return NewWeek(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewWeek(t), nil
	}
	return Week{}, fmt.Errorf("unable to parse week start date: %s (expected YYYY-MM-DD or RFC3339)", s)
}

// AddWeeks returns the week N weeks after w.
func (w Week) AddWeeks(n int) Week {
	return NewWeek(w.AddDate(0, 0, 7*n))
}

func (w Week) String() string {
	return w.Format("2006-01-02")
}

func (w Week) MarshalJSON() ([]byte, error) {
	return []byte(`"` + w.String() + `"`), nil
}

func (w *Week) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("week start must be a JSON string, got %s", s)
	}
	parsed, err := ParseWeek(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// WeeklyRecord is one farmer's supply/sales summary for a single crop and week.
// Records are immutable once ingested; duplicates for the same
// (farmer, week, crop) key accumulate rather than merge.
type WeeklyRecord struct {
	WeekStart           Week    `json:"week_start"`
	Crop                string  `json:"crop"`
	TotalSuppliedKg     float64 `json:"total_supplied_kg"`
	TotalSoldKg         float64 `json:"total_sold_kg"`
	AvgDeliveryDelayMin float64 `json:"avg_delivery_delay_min"`
}

// FarmerHistory owns the ordered record sequence for one farmer.
type FarmerHistory struct {
	FarmerID   string         `json:"farmer_id"`
	FarmerName string         `json:"farmer_name"`
	Records    []WeeklyRecord `json:"records"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CropAggregate is a derived per-crop summary over a lookback window.
// It is computed fresh on every analytics request and never stored.
type CropAggregate struct {
	Crop             string  `json:"crop"`
	TotalSupplied    float64 `json:"total_supplied"`
	TotalSold        float64 `json:"total_sold"`
	SellThroughRatio float64 `json:"sell_through_ratio"`
	AvgDelay         float64 `json:"avg_delay"`
	Weeks            int     `json:"weeks"`
}

// Insight is one ranked observation about the farmer's data.
type Insight struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

// ForecastPoint is a predicted weekly quantity for one crop.
type ForecastPoint struct {
	WeekStart Week    `json:"week_start"`
	Crop      string  `json:"crop"`
	Kg        float64 `json:"kg"`
}

// AnalyticsResult is the typed output of the insight/forecast generator.
type AnalyticsResult struct {
	Insights        []Insight       `json:"insights"`
	Forecast        []ForecastPoint `json:"forecast"`
	Recommendations []string        `json:"recommendations"`
	Source          Source          `json:"source"`
}

// Chart types used by the projector.
const (
	ChartTypeLine = "line"
	ChartTypeBar  = "bar"
	ChartTypePie  = "pie"
)

// ChartPoint is a single chart datum. Line and bar points carry X/Y
// plus a crop tag; pie slices carry Label/Y. Forecast-chart points are
// tagged so the consumer can style predicted values (e.g. dashed).
type ChartPoint struct {
	X          string  `json:"x,omitempty"`
	Y          float64 `json:"y"`
	Crop       string  `json:"crop,omitempty"`
	Label      string  `json:"label,omitempty"`
	IsForecast bool    `json:"is_forecast,omitempty"`
}

// Chart is one chart-ready dataset.
type Chart struct {
	ChartType string       `json:"chart_type"`
	Title     string       `json:"title"`
	Data      []ChartPoint `json:"data"`
}

// ChartBundle holds the four fixed chart projections of one aggregation
// snapshot. Its forecast chart describes the same future weeks as the
// AnalyticsResult it was built alongside.
type ChartBundle struct {
	SupplyTrend      Chart `json:"supply_trend"`
	SalesPerformance Chart `json:"sales_performance"`
	Forecast         Chart `json:"forecast"`
	Distribution     Chart `json:"distribution"`
}
