package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"farm-analytics/internal/model"
)

// ErrEmptyFarmerID is returned when an upsert names no farmer.
var ErrEmptyFarmerID = errors.New("farmer id must not be empty")

// FarmerSummary is the administrative listing view of one history.
type FarmerSummary struct {
	FarmerID    string    `json:"farmer_id"`
	FarmerName  string    `json:"farmer_name"`
	RecordCount int       `json:"record_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// UpsertPayload is one farmer's contribution to a bulk upsert.
type UpsertPayload struct {
	FarmerName string
	Records    []model.WeeklyRecord
	Metadata   map[string]any
}

// FarmerStore is the process-wide keyed mapping of farmer ID to record
// history. Mutations for the same farmer are serialized; reads observe
// either the pre- or post-upsert snapshot, never a torn one.
type FarmerStore interface {
	Upsert(farmerID, farmerName string, records []model.WeeklyRecord, metadata map[string]any) error
	BulkUpsert(batch map[string]UpsertPayload) map[string]error
	Get(farmerID string) (model.FarmerHistory, bool)
	ListIDs() []string
	List() []FarmerSummary
	Remove(farmerID string) bool
}

type farmerEntry struct {
	mu      sync.RWMutex
	history model.FarmerHistory
}

// memoryStore keeps all histories in process memory. The outer lock
// only guards the key map; each entry carries its own lock so one
// farmer's slow upsert never blocks another's.
type memoryStore struct {
	mu      sync.RWMutex
	farmers map[string]*farmerEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory farmer store.
func NewMemoryStore() FarmerStore {
	return &memoryStore{
		farmers: make(map[string]*farmerEntry),
		now:     time.Now,
	}
}

func (s *memoryStore) entry(farmerID string) *farmerEntry {
	s.mu.RLock()
	e, ok := s.farmers[farmerID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.farmers[farmerID]; ok {
		return e
	}
	e = &farmerEntry{history: model.FarmerHistory{FarmerID: farmerID}}
	s.farmers[farmerID] = e
	return e
}

// Upsert appends records to the farmer's history, creating it if
// absent, and refreshes name/metadata/timestamp. Records accumulate;
// duplicate (week, crop) keys are never merged.
func (s *memoryStore) Upsert(farmerID, farmerName string, records []model.WeeklyRecord, metadata map[string]any) error {
	if farmerID == "" {
		return ErrEmptyFarmerID
	}

	e := s.entry(farmerID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history.FarmerName = farmerName
	e.history.Records = append(e.history.Records, records...)
	if metadata != nil {
		if e.history.Metadata == nil {
			e.history.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			e.history.Metadata[k] = v
		}
	}
	e.history.UpdatedAt = s.now()
	return nil
}

// BulkUpsert applies Upsert per farmer, taking each farmer's lock
// independently and continuing past failures. The returned map holds
// one entry per input farmer; a nil value means success.
func (s *memoryStore) BulkUpsert(batch map[string]UpsertPayload) map[string]error {
	report := make(map[string]error, len(batch))
	for farmerID, payload := range batch {
		report[farmerID] = s.Upsert(farmerID, payload.FarmerName, payload.Records, payload.Metadata)
	}
	return report
}

// Get returns a deep-copied snapshot of the farmer's history.
func (s *memoryStore) Get(farmerID string) (model.FarmerHistory, bool) {
	s.mu.RLock()
	e, ok := s.farmers[farmerID]
	s.mu.RUnlock()
	if !ok {
		return model.FarmerHistory{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyHistory(e.history), true
}

func (s *memoryStore) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.farmers))
	for id := range s.farmers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *memoryStore) List() []FarmerSummary {
	ids := s.ListIDs()

	summaries := make([]FarmerSummary, 0, len(ids))
	for _, id := range ids {
		history, ok := s.Get(id)
		if !ok {
			continue
		}
		summaries = append(summaries, FarmerSummary{
			FarmerID:    history.FarmerID,
			FarmerName:  history.FarmerName,
			RecordCount: len(history.Records),
			LastUpdated: history.UpdatedAt,
		})
	}
	return summaries
}

// Remove drops the whole history for one farmer. Returns false when the
// farmer was unknown.
func (s *memoryStore) Remove(farmerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.farmers[farmerID]; !ok {
		return false
	}
	delete(s.farmers, farmerID)
	return true
}

func copyHistory(h model.FarmerHistory) model.FarmerHistory {
	out := h
	out.Records = make([]model.WeeklyRecord, len(h.Records))
	copy(out.Records, h.Records)
	if h.Metadata != nil {
		out.Metadata = make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
