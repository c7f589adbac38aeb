package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"farm-analytics/internal/model"
)

// FarmerRecordRow is the persisted mirror of one ingested weekly
// record. The in-memory store remains the source of truth; this table
// only lets histories survive restarts.
type FarmerRecordRow struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time

	FarmerID            string    `gorm:"not null;size:64;index:idx_farmer_week_crop,priority:1"`
	FarmerName          string    `gorm:"size:255"`
	WeekStart           time.Time `gorm:"not null;index:idx_farmer_week_crop,priority:2"`
	Crop                string    `gorm:"not null;size:128;index:idx_farmer_week_crop,priority:3"`
	TotalSuppliedKg     float64   `gorm:"type:decimal(10,2);not null"`
	TotalSoldKg         float64   `gorm:"type:decimal(10,2);not null"`
	AvgDeliveryDelayMin float64   `gorm:"type:decimal(10,2)"`
}

// TableName specifies the table name for FarmerRecordRow
func (FarmerRecordRow) TableName() string {
	return "farmer_records"
}

// HistoryRepository mirrors farmer histories into Postgres.
type HistoryRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Connect opens the Postgres connection and optionally migrates the
// schema.
func Connect(url string, autoMigrate bool, logger *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if autoMigrate {
		if err := db.AutoMigrate(&FarmerRecordRow{}); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	logger.Info("connected to postgres", "auto_migrate", autoMigrate)
	return db, nil
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *gorm.DB, logger *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// SaveHistory replaces the farmer's mirrored rows with the given
// snapshot, last write wins per farmer.
func (r *HistoryRepository) SaveHistory(ctx context.Context, history model.FarmerHistory) error {
	rows := make([]FarmerRecordRow, 0, len(history.Records))
	for _, rec := range history.Records {
		rows = append(rows, FarmerRecordRow{
			FarmerID:            history.FarmerID,
			FarmerName:          history.FarmerName,
			WeekStart:           rec.WeekStart.Time,
			Crop:                rec.Crop,
			TotalSuppliedKg:     rec.TotalSuppliedKg,
			TotalSoldKg:         rec.TotalSoldKg,
			AvgDeliveryDelayMin: rec.AvgDeliveryDelayMin,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("farmer_id = ?", history.FarmerID).Delete(&FarmerRecordRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// DeleteHistory drops all mirrored rows for one farmer.
func (r *HistoryRepository) DeleteHistory(ctx context.Context, farmerID string) error {
	return r.db.WithContext(ctx).Where("farmer_id = ?", farmerID).Delete(&FarmerRecordRow{}).Error
}

// LoadAll reads every mirrored history, grouped by farmer, for warm
// starts.
func (r *HistoryRepository) LoadAll(ctx context.Context) (map[string]model.FarmerHistory, error) {
	var rows []FarmerRecordRow
	if err := r.db.WithContext(ctx).Order("farmer_id, week_start, crop").Find(&rows).Error; err != nil {
		return nil, err
	}

	histories := make(map[string]model.FarmerHistory)
	for _, row := range rows {
		h := histories[row.FarmerID]
		h.FarmerID = row.FarmerID
		h.FarmerName = row.FarmerName
		h.Records = append(h.Records, model.WeeklyRecord{
			WeekStart:           model.NewWeek(row.WeekStart),
			Crop:                row.Crop,
			TotalSuppliedKg:     row.TotalSuppliedKg,
			TotalSoldKg:         row.TotalSoldKg,
			AvgDeliveryDelayMin: row.AvgDeliveryDelayMin,
		})
		if row.CreatedAt.After(h.UpdatedAt) {
			h.UpdatedAt = row.CreatedAt
		}
		histories[row.FarmerID] = h
	}
	return histories, nil
}
