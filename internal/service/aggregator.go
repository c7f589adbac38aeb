package service

import (
	"math"
	"sort"

	"farm-analytics/internal/model"
)

// Aggregation is the derived view one analytics request runs on: the
// per-crop summaries plus a time-ordered weekly series per crop. It is
// a pure function of one FarmerHistory snapshot and is never stored.
type Aggregation struct {
	FarmerID string
	// Crops maps crop name to its windowed summary.
	Crops map[string]model.CropAggregate
	// Series maps crop name to its in-window records, ordered by week
	// ascending. Duplicate weeks are kept as given.
	Series map[string][]model.WeeklyRecord
	// LatestWeek is the max week_start across the filtered set; the
	// lookback window is anchored here, not at wall-clock now.
	LatestWeek model.Week
	// Weeks is the lookback window that was applied (0 = unbounded).
	Weeks int
}

// Empty reports whether the filtered window held no records.
func (a Aggregation) Empty() bool {
	return len(a.Crops) == 0
}

// CropNames returns the aggregated crop names in sorted order.
func (a Aggregation) CropNames() []string {
	names := make([]string, 0, len(a.Crops))
	for name := range a.Crops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WeeklyTotals collapses a crop's series into one summed record per
// distinct week, ordered ascending. Accumulated duplicate keys count
// toward the same week's total.
func (a Aggregation) WeeklyTotals(crop string) []model.WeeklyRecord {
	series := a.Series[crop]
	if len(series) == 0 {
		return nil
	}

	byWeek := make(map[string]*model.WeeklyRecord)
	weeks := make([]string, 0)
	for _, r := range series {
		key := r.WeekStart.String()
		total, ok := byWeek[key]
		if !ok {
			weekCopy := r
			byWeek[key] = &weekCopy
			weeks = append(weeks, key)
			continue
		}
		total.TotalSuppliedKg += r.TotalSuppliedKg
		total.TotalSoldKg += r.TotalSoldKg
	}
	sort.Strings(weeks)

	totals := make([]model.WeeklyRecord, 0, len(weeks))
	for _, key := range weeks {
		totals = append(totals, *byWeek[key])
	}
	return totals
}

// Aggregate builds the per-crop view of one history snapshot, filtered
// to an optional crop and to the most recent `weeks` weeks. The window
// is measured from the latest week present in the filtered set, which
// keeps the pipeline deterministic regardless of invocation time.
// An empty filtered set yields an explicit empty aggregation, not an
// error.
func Aggregate(history model.FarmerHistory, cropFilter string, weeks int) Aggregation {
	agg := Aggregation{
		FarmerID: history.FarmerID,
		Crops:    make(map[string]model.CropAggregate),
		Series:   make(map[string][]model.WeeklyRecord),
		Weeks:    weeks,
	}

	filtered := make([]model.WeeklyRecord, 0, len(history.Records))
	for _, r := range history.Records {
		if cropFilter != "" && r.Crop != cropFilter {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) == 0 {
		return agg
	}

	latest := filtered[0].WeekStart
	for _, r := range filtered[1:] {
		if r.WeekStart.After(latest.Time) {
			latest = r.WeekStart
		}
	}
	agg.LatestWeek = latest

	// A window of N weeks keeps the latest week plus the N-1 before it.
	var cutoff model.Week
	if weeks > 0 {
		cutoff = latest.AddWeeks(-(weeks - 1))
	}

	for _, r := range filtered {
		if weeks > 0 && r.WeekStart.Before(cutoff.Time) {
			continue
		}
		agg.Series[r.Crop] = append(agg.Series[r.Crop], r)
	}

	for crop, series := range agg.Series {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].WeekStart.Before(series[j].WeekStart.Time)
		})

		var supplied, sold, delaySum float64
		for _, r := range series {
			supplied += r.TotalSuppliedKg
			sold += r.TotalSoldKg
			delaySum += r.AvgDeliveryDelayMin
		}

		agg.Crops[crop] = model.CropAggregate{
			Crop:             crop,
			TotalSupplied:    round2(supplied),
			TotalSold:        round2(sold),
			SellThroughRatio: sellThroughRatio(sold, supplied),
			AvgDelay:         round2(delaySum / float64(len(series))),
			Weeks:            len(series),
		}
	}

	return agg
}

// sellThroughRatio returns sold/supplied clamped to [0, 1], and exactly
// 0 when nothing was supplied.
func sellThroughRatio(sold, supplied float64) float64 {
	if supplied == 0 {
		return 0
	}
	ratio := sold / supplied
	if ratio > 1 {
		ratio = 1
	}
	return round4(ratio)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
