package service

import (
	"farm-analytics/internal/model"
)

// Number of trailing observed weeks shown on the forecast chart for
// context ahead of the predicted points.
const forecastContextWeeks = 2

// ProjectCharts maps one aggregation snapshot plus its generated
// forecast into the four fixed chart shapes. It is a pure function:
// the forecast argument must come from the AnalyticsResult built on
// the same snapshot so the two stay consistent.
func ProjectCharts(agg Aggregation, forecast []model.ForecastPoint) model.ChartBundle {
	return model.ChartBundle{
		SupplyTrend:      projectSupplyTrend(agg),
		SalesPerformance: projectSalesPerformance(agg),
		Forecast:         projectForecast(agg, forecast),
		Distribution:     projectDistribution(agg),
	}
}

// projectSupplyTrend emits one line point per (week, crop) pair in the
// window, grouped by crop with weeks ascending.
func projectSupplyTrend(agg Aggregation) model.Chart {
	data := make([]model.ChartPoint, 0)
	for _, crop := range agg.CropNames() {
		for _, r := range agg.Series[crop] {
			data = append(data, model.ChartPoint{
				X:    r.WeekStart.String(),
				Y:    r.TotalSuppliedKg,
				Crop: crop,
			})
		}
	}
	return model.Chart{
		ChartType: model.ChartTypeLine,
		Title:     "Supply Trend",
		Data:      data,
	}
}

// projectSalesPerformance emits one bar per crop with the total sold
// over the window.
func projectSalesPerformance(agg Aggregation) model.Chart {
	data := make([]model.ChartPoint, 0, len(agg.Crops))
	for _, crop := range agg.CropNames() {
		data = append(data, model.ChartPoint{
			X:    crop,
			Y:    agg.Crops[crop].TotalSold,
			Crop: crop,
		})
	}
	return model.Chart{
		ChartType: model.ChartTypeBar,
		Title:     "Sales Performance",
		Data:      data,
	}
}

// projectForecast concatenates the last observed weekly totals with
// the predicted points, each tagged so the consumer can style the
// forecast segment (e.g. dashed).
func projectForecast(agg Aggregation, forecast []model.ForecastPoint) model.Chart {
	data := make([]model.ChartPoint, 0, len(forecast))

	for _, crop := range agg.CropNames() {
		totals := agg.WeeklyTotals(crop)
		if len(totals) > forecastContextWeeks {
			totals = totals[len(totals)-forecastContextWeeks:]
		}
		for _, r := range totals {
			data = append(data, model.ChartPoint{
				X:    r.WeekStart.String(),
				Y:    r.TotalSoldKg,
				Crop: crop,
			})
		}
	}

	for _, f := range forecast {
		data = append(data, model.ChartPoint{
			X:          f.WeekStart.String(),
			Y:          f.Kg,
			Crop:       f.Crop,
			IsForecast: true,
		})
	}

	return model.Chart{
		ChartType: model.ChartTypeLine,
		Title:     "2-Week Forecast",
		Data:      data,
	}
}

// projectDistribution emits one pie slice per crop with the total
// supplied over the window; crops with zero in-window supply are
// omitted.
func projectDistribution(agg Aggregation) model.Chart {
	data := make([]model.ChartPoint, 0, len(agg.Crops))
	for _, crop := range agg.CropNames() {
		total := agg.Crops[crop].TotalSupplied
		if total == 0 {
			continue
		}
		data = append(data, model.ChartPoint{
			Label: crop,
			Y:     total,
		})
	}
	return model.Chart{
		ChartType: model.ChartTypePie,
		Title:     "Supply Distribution by Crop",
		Data:      data,
	}
}
