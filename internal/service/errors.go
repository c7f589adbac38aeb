package service

import "errors"

var (
	// ErrFarmerNotFound signals that a farmer has no stored history at
	// all. Distinct from a history whose filtered window is empty,
	// which is a valid empty result.
	ErrFarmerNotFound = errors.New("farmer not found")

	// ErrSchemaMismatch signals that a generative response failed
	// strict schema validation. It is never surfaced to the analytics
	// consumer; the pipeline falls back to the deterministic variant.
	ErrSchemaMismatch = errors.New("generated response does not match analytics schema")
)
