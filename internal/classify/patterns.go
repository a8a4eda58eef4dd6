package classify

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"fieldpilot/internal/types"
)

// autocompleteClasses maps WHATWG autocomplete tokens to semantic classes.
// Credential-bearing tokens map to ClassCredential so they are excluded
// from every downstream tier.
var autocompleteClasses = map[string]types.SemanticClass{
	// additional-name (middle name) is deliberately unmapped: no modeled
	// class holds a middle name and first_name would fill it wrongly.
	"given-name":         types.ClassFirstName,
	"family-name":        types.ClassLastName,
	"name":               types.ClassFullName,
	"email":              types.ClassEmail,
	"tel":                types.ClassPhone,
	"tel-national":       types.ClassPhone,
	"street-address":     types.ClassAddressL1,
	"address-line1":      types.ClassAddressL1,
	"address-line2":      types.ClassAddressL2,
	"address-level2":     types.ClassCity,
	"address-level1":     types.ClassState,
	"postal-code":        types.ClassZip,
	"country":            types.ClassCountry,
	"country-name":       types.ClassCountry,
	"organization":       types.ClassCompany,
	"organization-title": types.ClassJobTitle,
	"url":                types.ClassWebsite,
	"bday":               types.ClassBirthDate,

	"current-password": types.ClassCredential,
	"new-password":     types.ClassCredential,
	"one-time-code":    types.ClassCredential,
	"cc-number":        types.ClassCredential,
	"cc-csc":           types.ClassCredential,
	"cc-exp":           types.ClassCredential,
}

// inputKindClasses maps unambiguous HTML input kinds directly.
var inputKindClasses = map[types.InputKind]types.SemanticClass{
	types.InputEmail:    types.ClassEmail,
	types.InputTel:      types.ClassPhone,
	types.InputURL:      types.ClassWebsite,
	types.InputPassword: types.ClassCredential,
}

// pattern is one ordered row of the label classification table.
type pattern struct {
	expr  string
	class types.SemanticClass
	re    *regexp.Regexp
}

// basePatterns is checked in order; first match wins. Keep specific rows
// above generic ones (address line 2 before address, full name before name
// fragments).
var basePatterns = []pattern{
	{expr: `\b(first|given)\s*name\b`, class: types.ClassFirstName},
	{expr: `\b(last|family)\s*name|surname\b`, class: types.ClassLastName},
	{expr: `\bfull\s*name\b|\byour\s*name\b|^name$`, class: types.ClassFullName},
	{expr: `\be\s?mail\b`, class: types.ClassEmail},
	{expr: `\b(phone|mobile|cell|telephone)\b`, class: types.ClassPhone},
	{expr: `\baddress\s*(line\s*)?2\b|\bapt\b|\bsuite\b|\bunit\b`, class: types.ClassAddressL2},
	{expr: `\b(street|address)\b`, class: types.ClassAddressL1},
	{expr: `\b(city|town)\b`, class: types.ClassCity},
	{expr: `\b(state|province|region)\b`, class: types.ClassState},
	{expr: `\b(zip|postal)\s*(code)?\b`, class: types.ClassZip},
	{expr: `\bcountry\b`, class: types.ClassCountry},
	{expr: `\b(company|organization|organisation|employer)\b`, class: types.ClassCompany},
	{expr: `\b(job\s*title|position|role|occupation)\b`, class: types.ClassJobTitle},
	{expr: `\b(website|url|portfolio|homepage)\b`, class: types.ClassWebsite},
	{expr: `\b(birth|dob|date\s*of\s*birth)\b`, class: types.ClassBirthDate},
	{expr: `\b(message|comments?|cover\s*letter|notes?|additional\s*info)\b`, class: types.ClassMessage},
}

var (
	patternsMu       sync.RWMutex
	compiledPatterns []pattern
)

func init() {
	compiledPatterns = compile(basePatterns)
}

func compile(rows []pattern) []pattern {
	out := make([]pattern, 0, len(rows))
	for _, p := range rows {
		p.re = regexp.MustCompile(p.expr)
		out = append(out, p)
	}
	return out
}

func patternTable() []pattern {
	patternsMu.RLock()
	defer patternsMu.RUnlock()
	return compiledPatterns
}

// overlayFile is the YAML shape for additive pattern rows.
type overlayFile struct {
	Patterns []struct {
		Match string `yaml:"match"`
		Class string `yaml:"class"`
	} `yaml:"patterns"`
}

// LoadPatternOverlay merges extra pattern rows from a YAML file. Overlay
// rows are checked before the built-in table so locale-specific phrasing
// can shadow the defaults. Rows with an unknown class or a bad regex are
// rejected as a whole; the built-in table is never partially replaced.
func LoadPatternOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pattern overlay: %w", err)
	}

	var of overlayFile
	if err := yaml.Unmarshal(data, &of); err != nil {
		return fmt.Errorf("failed to parse pattern overlay: %w", err)
	}

	extra := make([]pattern, 0, len(of.Patterns))
	for i, row := range of.Patterns {
		class := types.SemanticClass(row.Class)
		if !knownClass(class) {
			return fmt.Errorf("pattern overlay row %d: unknown class %q", i, row.Class)
		}
		re, err := regexp.Compile(row.Match)
		if err != nil {
			return fmt.Errorf("pattern overlay row %d: %w", i, err)
		}
		extra = append(extra, pattern{expr: row.Match, class: class, re: re})
	}

	patternsMu.Lock()
	defer patternsMu.Unlock()
	compiledPatterns = append(extra, compile(basePatterns)...)
	return nil
}

func knownClass(c types.SemanticClass) bool {
	switch c {
	case types.ClassFirstName, types.ClassLastName, types.ClassFullName,
		types.ClassEmail, types.ClassPhone, types.ClassAddressL1,
		types.ClassAddressL2, types.ClassCity, types.ClassState,
		types.ClassZip, types.ClassCountry, types.ClassCompany,
		types.ClassJobTitle, types.ClassWebsite, types.ClassBirthDate,
		types.ClassMessage:
		return true
	}
	return false
}
