// Package learning turns user corrections into retrieval context. Edits
// made during review are buffered per profile; a commit folds them into one
// learned example, persists it on the profile, and indexes its rendered
// text so similar forms retrieve it later.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldpilot/internal/cache"
	"fieldpilot/internal/classify"
	"fieldpilot/internal/ingest"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
)

const (
	// DefaultLearnThreshold is the confidence at or above which an edit is
	// considered noise rather than a correction worth learning.
	DefaultLearnThreshold = 0.95

	// DefaultMaxExamples caps learned examples per profile. Oldest evict.
	DefaultMaxExamples = 100
)

// Edit is one buffered correction awaiting commit.
type Edit struct {
	Field              types.FieldSignature
	Value              string
	OriginalConfidence float64
}

// Service buffers edits and commits them as learned examples.
type Service struct {
	store   *store.LocalStore
	ingest  *ingest.Service
	cache   *cache.Service
	thresh  float64
	maxKeep int

	mu      sync.Mutex
	pending map[string][]Edit // profile id -> buffered edits
}

// NewService wires the learning service. Threshold and cap fall back to
// defaults when zero.
func NewService(st *store.LocalStore, ing *ingest.Service, ca *cache.Service, threshold float64, maxExamples int) *Service {
	if threshold <= 0 {
		threshold = DefaultLearnThreshold
	}
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	return &Service{
		store:   st,
		ingest:  ing,
		cache:   ca,
		thresh:  threshold,
		maxKeep: maxExamples,
		pending: make(map[string][]Edit),
	}
}

// RecordEdit buffers a correction. Edits to mappings that already scored at
// or above the learn threshold are ignored: a high-confidence answer the
// user tweaked is preference drift, not a signal the pipeline was wrong.
// Sensitive fields are never buffered regardless of confidence.
func (s *Service) RecordEdit(profileID string, field types.FieldSignature, value string, originalConfidence float64) {
	if originalConfidence >= s.thresh {
		logging.LearnDebug("skipping edit on %s: confidence %.2f already at threshold", field.ID, originalConfidence)
		return
	}
	if classify.IsSensitive(field) {
		logging.Security("refused to buffer edit on sensitive field %s", field.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Last edit to a field wins within the buffer.
	edits := s.pending[profileID]
	for i := range edits {
		if edits[i].Field.ID == field.ID {
			edits[i].Value = value
			return
		}
	}
	s.pending[profileID] = append(edits, Edit{
		Field:              field,
		Value:              value,
		OriginalConfidence: originalConfidence,
	})
	logging.Learn("buffered edit on %s (was %.2f)", field.ID, originalConfidence)
}

// PendingCount reports how many edits a profile has buffered.
func (s *Service) PendingCount(profileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[profileID])
}

// CancelEdits drops a profile's buffer without learning anything.
func (s *Service) CancelEdits(profileID string) {
	s.mu.Lock()
	n := len(s.pending[profileID])
	delete(s.pending, profileID)
	s.mu.Unlock()
	if n > 0 {
		logging.Learn("discarded %d buffered edits for profile %s", n, profileID)
	}
}

// CommitEdits folds the profile's buffered edits into one learned example:
// appended most-recent-first to the profile, persisted, indexed for
// retrieval, and the profile's fill cache invalidated. Committing with an
// empty buffer is a no-op. The buffer is consumed even when persistence
// fails partway; a failed commit is reported, not retried.
func (s *Service) CommitEdits(ctx context.Context, profile *types.Profile, domain string) (*types.LearnedExample, error) {
	return s.commit(ctx, profile, domain, types.LearnedUserEdit)
}

// SaveExample records the full mapping set of a reviewed fill as a learned
// example, bypassing the confidence threshold. Sensitive fields are still
// excluded.
func (s *Service) SaveExample(ctx context.Context, profile *types.Profile, domain string, mappings []types.FieldMapping) (*types.LearnedExample, error) {
	s.mu.Lock()
	for _, m := range mappings {
		if classify.IsSensitive(m.Field) {
			continue
		}
		s.pending[profile.ID] = append(s.pending[profile.ID], Edit{
			Field: m.Field,
			Value: m.Value,
		})
	}
	s.mu.Unlock()
	return s.commit(ctx, profile, domain, types.LearnedExplicitSave)
}

func (s *Service) commit(ctx context.Context, profile *types.Profile, domain string, prov types.LearnedProvenance) (*types.LearnedExample, error) {
	s.mu.Lock()
	edits := s.pending[profile.ID]
	delete(s.pending, profile.ID)
	s.mu.Unlock()

	if len(edits) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryLearn, "CommitEdits")
	defer timer.Stop()

	mappings := make([]types.FieldMapping, len(edits))
	for i, e := range edits {
		mappings[i] = types.FieldMapping{
			Field:      e.Field,
			Value:      e.Value,
			Confidence: 1.0,
			Provenance: types.ProvenanceLearned,
		}
	}
	ex := types.LearnedExample{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		Domain:     domain,
		Mappings:   mappings,
		Provenance: prov,
	}

	// Most recent first; evict past the cap and drop evicted vectors.
	profile.Learned = append([]types.LearnedExample{ex}, profile.Learned...)
	var evicted []types.LearnedExample
	if len(profile.Learned) > s.maxKeep {
		evicted = profile.Learned[s.maxKeep:]
		profile.Learned = profile.Learned[:s.maxKeep]
	}

	if err := s.store.SaveProfile(profile); err != nil {
		return nil, fmt.Errorf("failed to persist learned example: %w", err)
	}
	for _, old := range evicted {
		if err := s.ingest.DeleteLearnedExample(profile.ID, old.ID); err != nil {
			logging.Learn("eviction cleanup failed for %s: %v", old.ID, err)
		}
	}
	if err := s.ingest.IngestLearnedExample(ctx, profile.ID, ex); err != nil {
		// The example is durable on the profile; only retrieval misses it.
		logging.Learn("indexing learned example %s failed: %v", ex.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(profile.ID); err != nil {
			logging.Learn("cache invalidation failed for profile %s: %v", profile.ID, err)
		}
	}

	logging.Learn("learned example %s on %s (%d corrections, %d evicted)", ex.ID, domain, len(mappings), len(evicted))
	return &ex, nil
}
