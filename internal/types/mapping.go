package types

// Provenance identifies which resolution tier produced a mapping.
type Provenance string

const (
	ProvenanceStatic  Provenance = "static"
	ProvenanceLLM     Provenance = "llm"
	ProvenanceCache   Provenance = "cache"
	ProvenanceLearned Provenance = "learned"
)

// FieldMapping binds a resolved value to one field signature. Confidence is
// the sole arbiter when two mappings target the same field: the strictly
// higher confidence wins, ties keep the earlier-computed mapping.
type FieldMapping struct {
	Field      FieldSignature `json:"field"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	Provenance Provenance     `json:"provenance"`
}

// MergeMappings folds later mapping sets into base. For each field id the
// strictly higher confidence wins; on an exact tie the mapping already in
// base (earlier-computed) is kept. Input order within a set is preserved
// for new field ids.
func MergeMappings(base []FieldMapping, overlays ...[]FieldMapping) []FieldMapping {
	merged := make([]FieldMapping, len(base))
	copy(merged, base)
	index := make(map[string]int, len(base))
	for i, m := range merged {
		index[m.Field.ID] = i
	}
	for _, overlay := range overlays {
		for _, m := range overlay {
			if i, ok := index[m.Field.ID]; ok {
				if m.Confidence > merged[i].Confidence {
					merged[i] = m
				}
				continue
			}
			index[m.Field.ID] = len(merged)
			merged = append(merged, m)
		}
	}
	return merged
}
