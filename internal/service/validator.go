package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"farm-analytics/internal/model"
)

// Row is one loosely-typed ingest row, as it arrives from an uploaded
// file or a wire payload.
type Row map[string]any

// RowError describes why a single row was rejected. Row failures never
// abort the batch.
type RowError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Index, e.Field, e.Reason)
}

// ValidatorOptions tunes the record validator.
type ValidatorOptions struct {
	// RejectOversold rejects rows where total_sold_kg exceeds
	// total_supplied_kg. Off by default: oversold rows pass through
	// uncorrected.
	RejectOversold bool
}

// RecordValidator normalizes raw rows into canonical WeeklyRecords.
type RecordValidator struct {
	opts ValidatorOptions
}

// NewRecordValidator creates a validator with the given options.
func NewRecordValidator(opts ValidatorOptions) *RecordValidator {
	return &RecordValidator{opts: opts}
}

// Validate checks and coerces each row independently. It returns the
// accepted records in input order plus one RowError per rejected row,
// so accepted + rejected always equals len(rows). It neither
// deduplicates nor sorts.
func (v *RecordValidator) Validate(rows []Row) ([]model.WeeklyRecord, []RowError) {
	accepted := make([]model.WeeklyRecord, 0, len(rows))
	rejected := make([]RowError, 0)

	for i, row := range rows {
		record, rowErr := v.validateRow(i, row)
		if rowErr != nil {
			rejected = append(rejected, *rowErr)
			continue
		}
		accepted = append(accepted, record)
	}
	return accepted, rejected
}

func (v *RecordValidator) validateRow(index int, row Row) (model.WeeklyRecord, *RowError) {
	var record model.WeeklyRecord

	weekRaw, ok := row["week_start"]
	if !ok || weekRaw == nil {
		return record, &RowError{Index: index, Field: "week_start", Reason: "missing required field"}
	}
	weekStr, ok := weekRaw.(string)
	if !ok {
		return record, &RowError{Index: index, Field: "week_start", Reason: fmt.Sprintf("expected string, got %T", weekRaw)}
	}
	week, err := model.ParseWeek(weekStr)
	if err != nil {
		return record, &RowError{Index: index, Field: "week_start", Reason: err.Error()}
	}
	record.WeekStart = week

	cropRaw, ok := row["crop"]
	if !ok || cropRaw == nil {
		return record, &RowError{Index: index, Field: "crop", Reason: "missing required field"}
	}
	crop, ok := cropRaw.(string)
	if !ok || strings.TrimSpace(crop) == "" {
		return record, &RowError{Index: index, Field: "crop", Reason: "must be a non-empty string"}
	}
	record.Crop = strings.TrimSpace(crop)

	record.TotalSuppliedKg, err = coerceQuantity(row, "total_supplied_kg", true)
	if err != nil {
		return record, &RowError{Index: index, Field: "total_supplied_kg", Reason: err.Error()}
	}
	record.TotalSoldKg, err = coerceQuantity(row, "total_sold_kg", true)
	if err != nil {
		return record, &RowError{Index: index, Field: "total_sold_kg", Reason: err.Error()}
	}
	// Optional, defaults to 0.
	record.AvgDeliveryDelayMin, err = coerceQuantity(row, "avg_delivery_delay_min", false)
	if err != nil {
		return record, &RowError{Index: index, Field: "avg_delivery_delay_min", Reason: err.Error()}
	}

	if v.opts.RejectOversold && record.TotalSoldKg > record.TotalSuppliedKg {
		return record, &RowError{
			Index:  index,
			Field:  "total_sold_kg",
			Reason: fmt.Sprintf("sold (%.2f kg) exceeds supplied (%.2f kg)", record.TotalSoldKg, record.TotalSuppliedKg),
		}
	}

	return record, nil
}

func coerceQuantity(row Row, field string, required bool) (float64, error) {
	raw, ok := row[field]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("missing required field")
		}
		return 0, nil
	}

	value, err := coerceFloat(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("must not be negative, got %.2f", value)
	}
	return value, nil
}

func coerceFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a numeric value: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a numeric value: %T", raw)
	}
}
