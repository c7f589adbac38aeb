package repository

import (
	"context"
	"fmt"
	"log/slog"

	"farm-analytics/internal/service"
)

// SeedDemoData loads a small two-crop sample history through the full
// ingest pipeline so validation, the store and any configured sink all
// see the same path production data takes.
func SeedDemoData(ctx context.Context, svc service.AnalyticsService, logger *slog.Logger) error {
	rows := []service.Row{
		{"week_start": "2025-09-01", "crop": "tomato", "total_supplied_kg": 500.0, "total_sold_kg": 450.0, "avg_delivery_delay_min": 20.0},
		{"week_start": "2025-09-08", "crop": "tomato", "total_supplied_kg": 520.0, "total_sold_kg": 480.0, "avg_delivery_delay_min": 25.0},
		{"week_start": "2025-09-15", "crop": "tomato", "total_supplied_kg": 480.0, "total_sold_kg": 430.0, "avg_delivery_delay_min": 40.0},
		{"week_start": "2025-09-22", "crop": "tomato", "total_supplied_kg": 600.0, "total_sold_kg": 560.0, "avg_delivery_delay_min": 15.0},
		{"week_start": "2025-09-01", "crop": "mango", "total_supplied_kg": 200.0, "total_sold_kg": 180.0, "avg_delivery_delay_min": 30.0},
		{"week_start": "2025-09-08", "crop": "mango", "total_supplied_kg": 230.0, "total_sold_kg": 210.0, "avg_delivery_delay_min": 20.0},
		{"week_start": "2025-09-15", "crop": "mango", "total_supplied_kg": 210.0, "total_sold_kg": 200.0, "avg_delivery_delay_min": 35.0},
		{"week_start": "2025-09-22", "crop": "mango", "total_supplied_kg": 250.0, "total_sold_kg": 240.0, "avg_delivery_delay_min": 18.0},
	}

	report, err := svc.Ingest(ctx, "demo_farmer", "Demo Farm", rows, map[string]any{"source": "seed"})
	if err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}

	logger.Info("seeded demo data",
		"farmer_id", report.FarmerID,
		"accepted", report.Accepted,
		"rejected", len(report.Rejected),
	)
	return nil
}
