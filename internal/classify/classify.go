// Package classify turns raw form-field descriptors into normalized
// FieldSignatures with a semantic class. Classification is pure and total:
// it never fails, worst case a field comes back as ClassUnknown.
package classify

import (
	"regexp"
	"strings"

	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	punctuation   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// Normalize lowercases a label, strips punctuation, and collapses
// whitespace runs to single spaces.
func Normalize(label string) string {
	s := strings.ToLower(label)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// deriveLabel picks the best display label for a field, by priority:
// associated label text, ARIA label, placeholder, name, id, then
// sibling/parent text. The raw winner is normalized afterwards.
func deriveLabel(d types.FieldDescriptor) string {
	for _, candidate := range []string{
		d.Context.LabelText,
		d.AriaLabel,
		d.Placeholder,
		d.Name,
		d.ElementID,
		d.Context.SiblingText,
		d.Context.ParentText,
	} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// Classify produces the FieldSignature for one raw descriptor.
// Precedence: autocomplete token table, then direct input-kind mapping,
// then the ordered regex pattern table over the normalized label.
func Classify(d types.FieldDescriptor) types.FieldSignature {
	label := Normalize(deriveLabel(d))

	sig := types.FieldSignature{
		ID:           d.ID,
		Kind:         d.Kind,
		Label:        label,
		Class:        types.ClassUnknown,
		Name:         d.Name,
		ElementID:    d.ElementID,
		Placeholder:  d.Placeholder,
		Autocomplete: d.Autocomplete,
		AriaLabel:    d.AriaLabel,
		Context:      d.Context,
	}

	if class, ok := autocompleteClasses[strings.ToLower(strings.TrimSpace(d.Autocomplete))]; ok {
		sig.Class = class
		logging.ClassifyDebug("field %s: autocomplete %q -> %s", d.ID, d.Autocomplete, class)
		return sig
	}

	if class, ok := inputKindClasses[d.Kind]; ok {
		sig.Class = class
		logging.ClassifyDebug("field %s: input kind %q -> %s", d.ID, d.Kind, class)
		return sig
	}

	// First match wins; the table is ordered specific-before-generic so
	// "address line 2" never falls through to plain "address".
	for _, p := range patternTable() {
		if p.re.MatchString(label) {
			sig.Class = p.class
			logging.ClassifyDebug("field %s: label %q matched pattern -> %s", d.ID, label, p.class)
			return sig
		}
	}

	logging.ClassifyDebug("field %s: label %q unclassified", d.ID, label)
	return sig
}

// ClassifyForm classifies a full descriptor batch into a FormSignature.
func ClassifyForm(domain string, descs []types.FieldDescriptor) types.FormSignature {
	fields := make([]types.FieldSignature, 0, len(descs))
	for _, d := range descs {
		fields = append(fields, Classify(d))
	}
	logging.Classify("classified %d fields for domain %s", len(fields), domain)
	return types.FormSignature{Domain: domain, Fields: fields}
}
