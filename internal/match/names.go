package match

import (
	"strings"

	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

// reconcileNames bridges the split-name/combined-name mismatch between forms
// and profiles. If the form wants first/last but the profile only carries a
// combined name, the name is split on the first whitespace run; the reverse
// case joins with a single space. Inserted mappings carry ConfidenceNameFix
// and never overwrite fields already mapped.
func reconcileNames(fields []types.FieldSignature, profile *types.Profile, mappings []types.FieldMapping) []types.FieldMapping {
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.Field.ID] = true
	}

	var firstField, lastField, fullField *types.FieldSignature
	for i := range fields {
		switch fields[i].Class {
		case types.ClassFirstName:
			firstField = &fields[i]
		case types.ClassLastName:
			lastField = &fields[i]
		case types.ClassFullName:
			fullField = &fields[i]
		}
	}

	first := firstProfileValue(profile, classCandidates[types.ClassFirstName])
	last := firstProfileValue(profile, classCandidates[types.ClassLastName])
	full := firstProfileValue(profile, classCandidates[types.ClassFullName])

	// Form wants split names, profile only has a combined one.
	if full != "" && (first == "" || last == "") {
		splitFirst, splitLast := splitName(full)
		if firstField != nil && !mapped[firstField.ID] && first == "" && splitFirst != "" {
			mappings = append(mappings, mapping(*firstField, splitFirst, ConfidenceNameFix))
			mapped[firstField.ID] = true
			logging.MatchDebug("name reconciliation: split first %q", splitFirst)
		}
		if lastField != nil && !mapped[lastField.ID] && last == "" && splitLast != "" {
			mappings = append(mappings, mapping(*lastField, splitLast, ConfidenceNameFix))
			mapped[lastField.ID] = true
			logging.MatchDebug("name reconciliation: split last %q", splitLast)
		}
	}

	// Form wants one combined name, profile only has parts.
	if fullField != nil && !mapped[fullField.ID] && full == "" && first != "" && last != "" {
		joined := first + " " + last
		mappings = append(mappings, mapping(*fullField, joined, ConfidenceNameFix))
		logging.MatchDebug("name reconciliation: joined %q", joined)
	}

	return mappings
}

// splitName splits on the first whitespace run: first token is the first
// name, the remainder is the last name.
func splitName(full string) (string, string) {
	trimmed := strings.TrimSpace(full)
	if trimmed == "" {
		return "", ""
	}
	parts := strings.Fields(trimmed)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func firstProfileValue(p *types.Profile, keys []string) string {
	for _, k := range keys {
		if v := profileValue(p, k); v != "" {
			return v
		}
	}
	return ""
}
