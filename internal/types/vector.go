package types

import "time"

// VectorSource identifies what kind of text a vector entry was built from.
type VectorSource string

const (
	SourceLearnedExample VectorSource = "learned_example"
	SourceDocument       VectorSource = "document"
	SourceKnowledgeBase  VectorSource = "knowledge_base"
)

// VectorEntry is one embedded text chunk owned by a profile. Entries are
// never mutated, only replaced or deleted en masse by profile or source kind.
type VectorEntry struct {
	ID        string       `json:"id"`
	ProfileID string       `json:"profile_id"`
	Embedding []float32    `json:"embedding"`
	Source    VectorSource `json:"source"`
	SourceRef string       `json:"source_ref,omitempty"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
}
