package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mapping(id, value string, confidence float64, prov Provenance) FieldMapping {
	return FieldMapping{
		Field:      FieldSignature{ID: id},
		Value:      value,
		Confidence: confidence,
		Provenance: prov,
	}
}

func TestMergeMappings(t *testing.T) {
	tests := []struct {
		name    string
		base    []FieldMapping
		overlay []FieldMapping
		want    []FieldMapping
	}{
		{
			name:    "disjoint_sets_concatenate",
			base:    []FieldMapping{mapping("a", "1", 1.0, ProvenanceStatic)},
			overlay: []FieldMapping{mapping("b", "2", 0.9, ProvenanceLLM)},
			want: []FieldMapping{
				mapping("a", "1", 1.0, ProvenanceStatic),
				mapping("b", "2", 0.9, ProvenanceLLM),
			},
		},
		{
			name:    "higher_confidence_overlay_wins",
			base:    []FieldMapping{mapping("a", "old", 0.7, ProvenanceStatic)},
			overlay: []FieldMapping{mapping("a", "new", 0.9, ProvenanceLLM)},
			want:    []FieldMapping{mapping("a", "new", 0.9, ProvenanceLLM)},
		},
		{
			name:    "lower_confidence_overlay_loses",
			base:    []FieldMapping{mapping("a", "keep", 0.95, ProvenanceStatic)},
			overlay: []FieldMapping{mapping("a", "drop", 0.9, ProvenanceLLM)},
			want:    []FieldMapping{mapping("a", "keep", 0.95, ProvenanceStatic)},
		},
		{
			name:    "exact_tie_keeps_base",
			base:    []FieldMapping{mapping("a", "first", 0.9, ProvenanceStatic)},
			overlay: []FieldMapping{mapping("a", "second", 0.9, ProvenanceLLM)},
			want:    []FieldMapping{mapping("a", "first", 0.9, ProvenanceStatic)},
		},
		{
			name: "base_order_preserved_for_winners",
			base: []FieldMapping{
				mapping("a", "1", 0.7, ProvenanceStatic),
				mapping("b", "2", 1.0, ProvenanceStatic),
			},
			overlay: []FieldMapping{
				mapping("b", "x", 0.9, ProvenanceLLM),
				mapping("a", "3", 0.9, ProvenanceLLM),
				mapping("c", "4", 0.9, ProvenanceLLM),
			},
			want: []FieldMapping{
				mapping("a", "3", 0.9, ProvenanceLLM),
				mapping("b", "2", 1.0, ProvenanceStatic),
				mapping("c", "4", 0.9, ProvenanceLLM),
			},
		},
		{
			name:    "empty_base",
			base:    nil,
			overlay: []FieldMapping{mapping("a", "1", 0.9, ProvenanceLLM)},
			want:    []FieldMapping{mapping("a", "1", 0.9, ProvenanceLLM)},
		},
		{
			name: "empty_overlay",
			base: []FieldMapping{mapping("a", "1", 0.9, ProvenanceStatic)},
			want: []FieldMapping{mapping("a", "1", 0.9, ProvenanceStatic)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeMappings(tt.base, tt.overlay)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeMappingsDoesNotMutateBase(t *testing.T) {
	base := []FieldMapping{mapping("a", "orig", 0.7, ProvenanceStatic)}
	MergeMappings(base, []FieldMapping{mapping("a", "new", 0.9, ProvenanceLLM)})
	if base[0].Value != "orig" {
		t.Errorf("base mutated: %+v", base[0])
	}
}

func TestMergeMappingsMultipleOverlays(t *testing.T) {
	base := []FieldMapping{mapping("a", "static", 0.7, ProvenanceStatic)}
	o1 := []FieldMapping{mapping("a", "cached", 0.9, ProvenanceCache)}
	o2 := []FieldMapping{mapping("a", "learned", 1.0, ProvenanceLearned)}
	got := MergeMappings(base, o1, o2)
	if len(got) != 1 || got[0].Value != "learned" {
		t.Errorf("got %+v", got)
	}
}
