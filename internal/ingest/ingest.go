// Package ingest turns profile documents and knowledge-base text into
// vector index entries. Ingestion of a source kind replaces whatever that
// kind held before, so re-ingesting a revised document never leaves
// orphaned chunks behind.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldpilot/internal/embedding"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
	"fieldpilot/internal/vecindex"
)

// DefaultChunkSize is the knowledge-base chunk size in characters.
const DefaultChunkSize = 800

// chunkOverlap keeps adjacent chunks sharing a tail so sentences cut at a
// boundary still retrieve on either side.
const chunkOverlap = 100

// Service embeds and indexes profile knowledge.
type Service struct {
	gateway *embedding.Gateway
	index   *vecindex.Index
}

// NewService wires the ingestion service.
func NewService(gateway *embedding.Gateway, index *vecindex.Index) *Service {
	return &Service{gateway: gateway, index: index}
}

// IngestKnowledgeBase chunks, embeds, and indexes free-text knowledge for a
// profile, replacing any previous knowledge_base vectors. Returns the chunk
// count.
func (s *Service) IngestKnowledgeBase(ctx context.Context, profileID, text string, chunkSize int) (int, error) {
	return s.ingest(ctx, profileID, text, chunkSize, types.SourceKnowledgeBase, "")
}

// IngestDocument chunks, embeds, and indexes one document. Prior vectors
// for the same source kind and reference are replaced wholesale.
func (s *Service) IngestDocument(ctx context.Context, profileID string, doc types.ContextDocument, chunkSize int) (int, error) {
	return s.ingest(ctx, profileID, doc.Text, chunkSize, types.SourceDocument, doc.ID)
}

// IngestLearnedExample embeds one learned correction and adds it to the
// index. Learned vectors accumulate; eviction is the learning service's job.
func (s *Service) IngestLearnedExample(ctx context.Context, profileID string, ex types.LearnedExample) error {
	text := LearnedExampleText(ex)
	if text == "" {
		return nil
	}
	vecs, err := s.gateway.EmbedBatch(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed learned example: %w", err)
	}
	entry := types.VectorEntry{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Embedding: vecs[0],
		Source:    types.SourceLearnedExample,
		SourceRef: ex.ID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := s.index.Upsert(entry); err != nil {
		return err
	}
	logging.Index("indexed learned example %s for profile %s", ex.ID, profileID)
	return nil
}

// DeleteLearnedExample removes the index entry of one learned example,
// used when the per-profile cap evicts old examples.
func (s *Service) DeleteLearnedExample(profileID, exampleID string) error {
	return s.index.DeleteBySourceRef(profileID, types.SourceLearnedExample, exampleID)
}

// LearnedExampleText renders a learned example as the sentence that gets
// embedded and later surfaces verbatim in retrieved context.
func LearnedExampleText(ex types.LearnedExample) string {
	if len(ex.Mappings) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ex.Mappings))
	for _, m := range ex.Mappings {
		parts = append(parts, fmt.Sprintf("%s → %s", m.Field.Label, m.Value))
	}
	return fmt.Sprintf("Form filled on %s: %s", ex.Domain, strings.Join(parts, ", "))
}

func (s *Service) ingest(ctx context.Context, profileID, text string, chunkSize int, source types.VectorSource, ref string) (int, error) {
	if profileID == "" {
		return 0, fmt.Errorf("profile id required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	timer := logging.StartTimer(logging.CategoryIndex, "ingest")
	defer timer.Stop()

	chunks := ChunkText(text, chunkSize)
	if len(chunks) == 0 {
		// Empty text still clears the old vectors of this kind.
		if err := s.index.DeleteBySourceKind(profileID, source); err != nil {
			return 0, err
		}
		return 0, nil
	}

	vecs, err := s.gateway.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s chunks: %w", source, err)
	}

	entries := make([]types.VectorEntry, len(chunks))
	now := time.Now()
	for i, chunk := range chunks {
		entries[i] = types.VectorEntry{
			ID:        uuid.NewString(),
			ProfileID: profileID,
			Embedding: vecs[i],
			Source:    source,
			SourceRef: ref,
			Text:      chunk,
			CreatedAt: now,
		}
	}

	// Replace, don't accumulate: clear the kind first, then write.
	if err := s.index.DeleteBySourceKind(profileID, source); err != nil {
		return 0, err
	}
	if err := s.index.UpsertBatch(entries); err != nil {
		return 0, err
	}

	logging.Index("ingested %d %s chunks for profile %s", len(entries), source, profileID)
	return len(entries), nil
}
