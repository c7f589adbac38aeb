package service

import (
	"context"
	"fmt"
	"math"

	"farm-analytics/internal/model"
)

// Generator produces a typed analytics result from an aggregated view.
// Implementations must not read the raw history.
type Generator interface {
	Generate(ctx context.Context, agg Aggregation, cropFilter string) (*model.AnalyticsResult, error)
}

// Rule thresholds for the deterministic variant.
const (
	strongDemandRatio  = 0.90
	weakDemandRatio    = 0.60
	delayThresholdMin  = 30.0
	supplyTrendChange  = 0.20
	forecastHorizon    = 2
	maxInsights        = 3
	maxRecommendations = 3
)

// DeterministicGenerator computes fixed rule-based insights, a linear
// extrapolation forecast, and template recommendations keyed by which
// rules fired. It is a pure function of the aggregation with no I/O
// and no failure mode, which makes it the unconditional fallback.
type DeterministicGenerator struct{}

// NewDeterministicGenerator creates "the" deterministic variant.
func NewDeterministicGenerator() *DeterministicGenerator {
	return &DeterministicGenerator{}
}

// Generate never returns an error.
func (g *DeterministicGenerator) Generate(_ context.Context, agg Aggregation, _ string) (*model.AnalyticsResult, error) {
	result := &model.AnalyticsResult{
		Insights:        []model.Insight{},
		Forecast:        []model.ForecastPoint{},
		Recommendations: []string{},
		Source:          model.SourceDeterministic,
	}
	if agg.Empty() {
		return result, nil
	}

	for _, crop := range agg.CropNames() {
		ca := agg.Crops[crop]
		insight, rec, fired := evaluateCropRules(ca, agg.WeeklyTotals(crop))
		if !fired {
			continue
		}
		result.Insights = append(result.Insights, insight)
		if rec != "" {
			result.Recommendations = appendUnique(result.Recommendations, rec)
		}
	}

	if len(result.Insights) == 0 {
		var supplied, sold float64
		for _, ca := range agg.Crops {
			supplied += ca.TotalSupplied
			sold += ca.TotalSold
		}
		result.Insights = append(result.Insights, model.Insight{
			Title: "Stable performance",
			Explanation: fmt.Sprintf("%d crop(s) supplied %.0f kg and sold %.0f kg over the window with no notable anomalies.",
				len(agg.Crops), supplied, sold),
		})
		result.Recommendations = append(result.Recommendations, "Maintain current supply levels and keep monitoring weekly sales.")
	}

	if len(result.Insights) > maxInsights {
		result.Insights = result.Insights[:maxInsights]
	}
	if len(result.Recommendations) > maxRecommendations {
		result.Recommendations = result.Recommendations[:maxRecommendations]
	}

	result.Forecast = extrapolateForecast(agg)
	return result, nil
}

// evaluateCropRules applies the fixed rule set to one crop: the three
// aggregate-level rules plus a supply-trend rule over the last two
// observed weekly totals. Rules are checked in priority order; at most
// one fires per crop.
func evaluateCropRules(ca model.CropAggregate, totals []model.WeeklyRecord) (model.Insight, string, bool) {
	switch {
	case ca.TotalSupplied > 0 && ca.SellThroughRatio >= strongDemandRatio:
		return model.Insight{
				Title: fmt.Sprintf("Strong demand for %s", ca.Crop),
				Explanation: fmt.Sprintf("Sell-through ratio is %.0f%% over the last %d week(s); supply is nearly selling out.",
					ca.SellThroughRatio*100, ca.Weeks),
			},
			fmt.Sprintf("Increase %s supply to capture unmet demand.", ca.Crop),
			true

	case ca.TotalSupplied > 0 && ca.SellThroughRatio < weakDemandRatio:
		return model.Insight{
				Title: fmt.Sprintf("Weak sell-through for %s", ca.Crop),
				Explanation: fmt.Sprintf("Only %.0f%% of supplied %s sold over the last %d week(s).",
					ca.SellThroughRatio*100, ca.Crop, ca.Weeks),
			},
			fmt.Sprintf("Reduce %s volumes or find additional buyers to cut spoilage.", ca.Crop),
			true

	case ca.AvgDelay > delayThresholdMin:
		return model.Insight{
				Title: fmt.Sprintf("Delivery delays on %s", ca.Crop),
				Explanation: fmt.Sprintf("Average delivery delay is %.0f minutes, above the %.0f minute threshold.",
					ca.AvgDelay, delayThresholdMin),
			},
			"Optimize delivery routes to reduce delays.",
			true
	}

	if len(totals) >= 2 {
		last := totals[len(totals)-1].TotalSuppliedKg
		prev := totals[len(totals)-2].TotalSuppliedKg
		if prev > 0 {
			change := (last - prev) / prev
			switch {
			case change >= supplyTrendChange:
				return model.Insight{
						Title: fmt.Sprintf("Rising supply of %s", ca.Crop),
						Explanation: fmt.Sprintf("Supplied volume grew %.0f%% between the last two weeks (%.0f kg to %.0f kg).",
							change*100, prev, last),
					},
					fmt.Sprintf("Confirm buyer demand can absorb the extra %s before the next delivery.", ca.Crop),
					true

			case change <= -supplyTrendChange:
				return model.Insight{
						Title: fmt.Sprintf("Falling supply of %s", ca.Crop),
						Explanation: fmt.Sprintf("Supplied volume dropped %.0f%% between the last two weeks (%.0f kg to %.0f kg).",
							-change*100, prev, last),
					},
					fmt.Sprintf("Investigate what is limiting %s supply; sales can only track what arrives.", ca.Crop),
					true
			}
		}
	}
	return model.Insight{}, "", false
}

// extrapolateForecast predicts the next two weekly sold totals per crop
// by linear extrapolation of the last two observed weeks:
// next = last + (last - previous), floored at 0. Crops with fewer than
// two observed weeks are omitted, not zero-filled.
func extrapolateForecast(agg Aggregation) []model.ForecastPoint {
	forecast := make([]model.ForecastPoint, 0)

	for _, crop := range agg.CropNames() {
		totals := agg.WeeklyTotals(crop)
		if len(totals) < 2 {
			continue
		}

		last := totals[len(totals)-1]
		prev := totals[len(totals)-2]
		step := last.TotalSoldKg - prev.TotalSoldKg

		for i := 1; i <= forecastHorizon; i++ {
			kg := last.TotalSoldKg + float64(i)*step
			forecast = append(forecast, model.ForecastPoint{
				WeekStart: last.WeekStart.AddWeeks(i),
				Crop:      crop,
				Kg:        math.Max(0, round2(kg)),
			})
		}
	}
	return forecast
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}
