package types

import "time"

// ContextField is one key/value pair in a profile. Keys are unique within
// a profile. Encrypted values are stored opaque and never flattened into
// prompts.
type ContextField struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category,omitempty"`
	IsEncrypted bool   `json:"is_encrypted,omitempty"`
}

// ContextDocument is a free-form document attached to a profile (resume,
// bio, cover letter). Document text feeds both prompt summaries and the
// vector index.
type ContextDocument struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
}

// LearnedProvenance records how a learned example came to exist.
type LearnedProvenance string

const (
	LearnedUserEdit     LearnedProvenance = "user_edit"
	LearnedExplicitSave LearnedProvenance = "explicit_save"
)

// LearnedExample is a stored correction bundle used to improve future
// retrieval context. Examples are only recorded when the original mapping
// scored below the learn threshold.
type LearnedExample struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Domain     string            `json:"domain"`
	Mappings   []FieldMapping    `json:"mappings"`
	Provenance LearnedProvenance `json:"provenance"`
}

// FillSettings controls fill behavior for a profile.
type FillSettings struct {
	AutoFill     bool    `json:"auto_fill"`
	UseCache     bool    `json:"use_cache"`
	MinFillScore float64 `json:"min_fill_score,omitempty"`
}

// Profile is the unit of data isolation. No lookup, cache key, or vector
// ever crosses profile boundaries.
type Profile struct {
	ID            string            `json:"id"`
	Name          string            `json:"name,omitempty"`
	Fields        []ContextField    `json:"fields"`
	Documents     []ContextDocument `json:"documents,omitempty"`
	KnowledgeBase string            `json:"knowledge_base,omitempty"`
	KBChunks      int               `json:"kb_chunks,omitempty"`
	Learned       []LearnedExample  `json:"learned,omitempty"`
	URLBindings   []string          `json:"url_bindings,omitempty"`
	Settings      FillSettings      `json:"settings"`
}

// Field returns the value for a profile key, or "" when absent.
func (p *Profile) Field(key string) string {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// SetField inserts or replaces a profile field, preserving key uniqueness
// and insertion order.
func (p *Profile) SetField(key, value string) {
	for i := range p.Fields {
		if p.Fields[i].Key == key {
			p.Fields[i].Value = value
			return
		}
	}
	p.Fields = append(p.Fields, ContextField{Key: key, Value: value})
}
