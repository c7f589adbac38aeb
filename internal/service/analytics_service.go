package service

import (
	"context"
	"log/slog"
	"sort"

	"farm-analytics/internal/model"
	"farm-analytics/internal/store"
)

// IngestReport summarizes one ingest: every input row is accounted for,
// accepted + len(rejected) == rows submitted.
type IngestReport struct {
	FarmerID string     `json:"farmer_id"`
	Accepted int        `json:"accepted"`
	Rejected []RowError `json:"rejected"`
}

// BulkPayload is one farmer's entry in a bulk ingest.
type BulkPayload struct {
	FarmerName string         `json:"farmer_name"`
	Rows       []Row          `json:"data"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BulkReport is the per-farmer outcome of a bulk ingest. One farmer's
// failure never blocks the others.
type BulkReport struct {
	Succeeded map[string]IngestReport `json:"succeeded"`
	Failed    map[string]string       `json:"failed"`
}

// AnalyticsBundle is the combined output of one analytics request: the
// typed result plus its chart projection, both derived from the same
// aggregation snapshot.
type AnalyticsBundle struct {
	FarmerID   string                `json:"farmer_id"`
	FarmerName string                `json:"farmer_name"`
	Analytics  model.AnalyticsResult `json:"analytics"`
	Charts     model.ChartBundle     `json:"charts"`
	Source     model.Source          `json:"source"`
}

// HistorySink receives ingested histories for out-of-process storage.
// Sink failures are logged, never surfaced: the in-memory store is the
// source of truth.
type HistorySink interface {
	SaveHistory(ctx context.Context, history model.FarmerHistory) error
	DeleteHistory(ctx context.Context, farmerID string) error
}

// AnalyticsService is the externally meaningful surface of the
// pipeline: ingest on one side, analytics generation and
// administrative reads on the other.
type AnalyticsService interface {
	Ingest(ctx context.Context, farmerID, farmerName string, rows []Row, metadata map[string]any) (IngestReport, error)
	BulkIngest(ctx context.Context, batch map[string]BulkPayload) BulkReport
	GenerateAnalytics(ctx context.Context, farmerID, cropFilter string, weeks int) (*AnalyticsBundle, error)
	ListFarmers() []store.FarmerSummary
	GetHistory(farmerID string) (model.FarmerHistory, error)
	RemoveFarmer(ctx context.Context, farmerID string) error
	GenerativeAvailable() bool
}

// Options tunes the analytics pipeline.
type Options struct {
	// PreferGenerative selects the generative variant first; on any
	// failure the deterministic variant takes over silently.
	PreferGenerative bool
	// DefaultWeeks is the lookback window applied when a request
	// passes weeks <= 0.
	DefaultWeeks int
}

type analyticsService struct {
	store         store.FarmerStore
	validator     *RecordValidator
	generative    Generator
	deterministic Generator
	sink          HistorySink
	opts          Options
	logger        *slog.Logger
}

// NewAnalyticsService wires the pipeline. generative and sink may be
// nil; the service then runs deterministic-only with no persistence
// mirror.
func NewAnalyticsService(
	st store.FarmerStore,
	validator *RecordValidator,
	generative Generator,
	sink HistorySink,
	opts Options,
	logger *slog.Logger,
) AnalyticsService {
	if opts.DefaultWeeks <= 0 {
		opts.DefaultWeeks = 12
	}
	return &analyticsService{
		store:         st,
		validator:     validator,
		generative:    generative,
		deterministic: NewDeterministicGenerator(),
		sink:          sink,
		opts:          opts,
		logger:        logger,
	}
}

// Ingest validates rows and appends the accepted ones to the farmer's
// history. A history is only created once at least one row is
// accepted; per-row failures never abort the batch.
func (s *analyticsService) Ingest(ctx context.Context, farmerID, farmerName string, rows []Row, metadata map[string]any) (IngestReport, error) {
	report := IngestReport{FarmerID: farmerID, Rejected: []RowError{}}
	if farmerID == "" {
		return report, store.ErrEmptyFarmerID
	}

	accepted, rejected := s.validator.Validate(rows)
	report.Accepted = len(accepted)
	report.Rejected = rejected

	if len(rejected) > 0 {
		s.logger.Warn("rows rejected during ingest",
			"farmer_id", farmerID,
			"accepted", len(accepted),
			"rejected", len(rejected),
		)
	}
	if len(accepted) == 0 {
		return report, nil
	}

	if err := s.store.Upsert(farmerID, farmerName, accepted, metadata); err != nil {
		return report, err
	}
	s.mirrorHistory(ctx, farmerID)

	s.logger.Info("ingest completed",
		"farmer_id", farmerID,
		"farmer_name", farmerName,
		"accepted", len(accepted),
		"rejected", len(rejected),
	)
	return report, nil
}

// BulkIngest applies Ingest per farmer and reports each outcome
// independently. A farmer whose payload yields no valid rows is
// reported failed and leaves no history behind.
func (s *analyticsService) BulkIngest(ctx context.Context, batch map[string]BulkPayload) BulkReport {
	report := BulkReport{
		Succeeded: make(map[string]IngestReport),
		Failed:    make(map[string]string),
	}

	// Stable iteration keeps logs deterministic.
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, farmerID := range ids {
		payload := batch[farmerID]
		if farmerID == "" {
			report.Failed[farmerID] = store.ErrEmptyFarmerID.Error()
			continue
		}
		if len(payload.Rows) == 0 {
			report.Failed[farmerID] = "payload contains no rows"
			continue
		}

		ingest, err := s.Ingest(ctx, farmerID, payload.FarmerName, payload.Rows, payload.Metadata)
		switch {
		case err != nil:
			report.Failed[farmerID] = err.Error()
		case ingest.Accepted == 0:
			report.Failed[farmerID] = "no valid rows in payload"
		default:
			report.Succeeded[farmerID] = ingest
		}
	}
	return report
}

// GenerateAnalytics runs the full pipeline for one farmer: snapshot,
// aggregate, generate, project. The generative variant's failures are
// recovered locally by the deterministic fallback and only show up in
// the source tag.
func (s *analyticsService) GenerateAnalytics(ctx context.Context, farmerID, cropFilter string, weeks int) (*AnalyticsBundle, error) {
	snapshot, ok := s.store.Get(farmerID)
	if !ok {
		return nil, ErrFarmerNotFound
	}
	if weeks <= 0 {
		weeks = s.opts.DefaultWeeks
	}

	agg := Aggregate(snapshot, cropFilter, weeks)

	result := s.generate(ctx, agg, cropFilter)
	charts := ProjectCharts(agg, result.Forecast)

	return &AnalyticsBundle{
		FarmerID:   snapshot.FarmerID,
		FarmerName: snapshot.FarmerName,
		Analytics:  *result,
		Charts:     charts,
		Source:     result.Source,
	}, nil
}

// generate applies the variant selection policy: preferred generative
// with unconditional deterministic fallback. The deterministic variant
// cannot fail, so this function always returns a result.
func (s *analyticsService) generate(ctx context.Context, agg Aggregation, cropFilter string) *model.AnalyticsResult {
	if s.opts.PreferGenerative && s.generative != nil && !agg.Empty() {
		result, err := s.generative.Generate(ctx, agg, cropFilter)
		if err == nil {
			return result
		}
		s.logger.Warn("generative variant failed, falling back to deterministic",
			"farmer_id", agg.FarmerID,
			"error", err.Error(),
		)
	}

	result, _ := s.deterministic.Generate(ctx, agg, cropFilter)
	return result
}

func (s *analyticsService) ListFarmers() []store.FarmerSummary {
	return s.store.List()
}

func (s *analyticsService) GetHistory(farmerID string) (model.FarmerHistory, error) {
	history, ok := s.store.Get(farmerID)
	if !ok {
		return model.FarmerHistory{}, ErrFarmerNotFound
	}
	return history, nil
}

func (s *analyticsService) RemoveFarmer(ctx context.Context, farmerID string) error {
	if !s.store.Remove(farmerID) {
		return ErrFarmerNotFound
	}
	if s.sink != nil {
		if err := s.sink.DeleteHistory(ctx, farmerID); err != nil {
			s.logger.Error("failed to delete mirrored history",
				"farmer_id", farmerID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

func (s *analyticsService) GenerativeAvailable() bool {
	return s.generative != nil
}

// mirrorHistory writes the current snapshot through to the sink,
// best effort.
func (s *analyticsService) mirrorHistory(ctx context.Context, farmerID string) {
	if s.sink == nil {
		return
	}
	snapshot, ok := s.store.Get(farmerID)
	if !ok {
		return
	}
	if err := s.sink.SaveHistory(ctx, snapshot); err != nil {
		s.logger.Error("failed to mirror history",
			"farmer_id", farmerID,
			"error", err.Error(),
		)
	}
}
