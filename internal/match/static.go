// Package match maps classified form fields onto a profile's key/value data
// without any model involvement. Three tiers are tried per field, first hit
// wins; tier order encodes trust, and trust becomes the mapping confidence.
package match

import (
	"regexp"
	"strings"

	"fieldpilot/internal/classify"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

// Tier confidences. The merge step compares these against LLM confidences,
// so their absolute values matter, not just their ordering.
const (
	ConfidenceSemantic = 1.0
	ConfidenceExactKey = 0.95
	ConfidencePattern  = 0.8
	ConfidencePartial  = 0.7
	ConfidenceNameFix  = 0.9
)

// classCandidates maps a semantic class to profile keys that may hold its
// value, most conventional spelling first.
var classCandidates = map[types.SemanticClass][]string{
	types.ClassFirstName: {"firstName", "first_name", "givenName"},
	types.ClassLastName:  {"lastName", "last_name", "familyName", "surname"},
	types.ClassFullName:  {"fullName", "full_name", "name"},
	types.ClassEmail:     {"email", "emailAddress", "email_address"},
	types.ClassPhone:     {"phone", "phoneNumber", "phone_number", "mobile"},
	types.ClassAddressL1: {"address", "addressLine1", "address_line1", "street"},
	types.ClassAddressL2: {"addressLine2", "address_line2", "apt", "suite"},
	types.ClassCity:      {"city", "town"},
	types.ClassState:     {"state", "province", "region"},
	types.ClassZip:       {"zip", "zipCode", "zip_code", "postalCode", "postal_code"},
	types.ClassCountry:   {"country"},
	types.ClassCompany:   {"company", "organization", "employer"},
	types.ClassJobTitle:  {"jobTitle", "job_title", "title", "position"},
	types.ClassWebsite:   {"website", "url", "portfolio"},
	types.ClassBirthDate: {"birthDate", "birth_date", "dob", "dateOfBirth"},
}

// labelPattern is one row of the curated fuzzy table: label phrasing that
// commonly appears on forms mapped to the profile keys that answer it.
type labelPattern struct {
	re   *regexp.Regexp
	keys []string
}

// Social-link labels (linkedin, github, ...) are deliberately absent: their
// profile keys contain the label verbatim, so the partial tier covers them.
var labelPatterns = []labelPattern{
	{regexp.MustCompile(`\bpreferred\s+name\b`), []string{"preferredName", "firstName", "first_name"}},
	{regexp.MustCompile(`\bcontact\s+(email|e\s?mail)\b`), []string{"email", "emailAddress"}},
	{regexp.MustCompile(`\bwork\s+(phone|number)\b`), []string{"workPhone", "phone"}},
	{regexp.MustCompile(`\bhome\s+address\b`), []string{"address", "addressLine1"}},
	{regexp.MustCompile(`\bcurrent\s+(employer|company)\b`), []string{"company", "employer"}},
	{regexp.MustCompile(`\bcurrent\s+(title|role|position)\b`), []string{"jobTitle", "title"}},
	{regexp.MustCompile(`\byears?\s+of\s+experience\b`), []string{"yearsExperience", "experience"}},
	{regexp.MustCompile(`\bsalary|compensation\b`), []string{"desiredSalary", "salary"}},
	{regexp.MustCompile(`\bhow\s+did\s+you\s+hear\b`), []string{"referralSource"}},
}

// Match resolves every non-credential field it can from the profile alone.
// Output order follows field order; every mapping carries provenance static.
func Match(fields []types.FieldSignature, profile *types.Profile) []types.FieldMapping {
	timer := logging.StartTimer(logging.CategoryMatch, "Match")
	defer timer.Stop()

	var mappings []types.FieldMapping
	for _, f := range fields {
		if classify.IsSensitive(f) {
			continue
		}
		if m, ok := matchField(f, profile); ok {
			mappings = append(mappings, m)
		}
	}

	mappings = reconcileNames(fields, profile, mappings)

	logging.Match("static matcher resolved %d/%d fields", len(mappings), len(fields))
	return mappings
}

func matchField(f types.FieldSignature, profile *types.Profile) (types.FieldMapping, bool) {
	// Tier 1: semantic class lookup.
	if candidates, ok := classCandidates[f.Class]; ok {
		for _, key := range candidates {
			if v := profileValue(profile, key); v != "" {
				logging.MatchDebug("field %s: class tier hit on key %q", f.ID, key)
				return mapping(f, v, ConfidenceSemantic), true
			}
		}
	}

	// Tier 2a: exact normalized-key equality.
	for _, cf := range profile.Fields {
		if cf.IsEncrypted || cf.Value == "" {
			continue
		}
		if classify.Normalize(cf.Key) == f.Label && f.Label != "" {
			logging.MatchDebug("field %s: exact key match %q", f.ID, cf.Key)
			return mapping(f, cf.Value, ConfidenceExactKey), true
		}
	}

	// Tier 2b: curated label-pattern table.
	for _, lp := range labelPatterns {
		if !lp.re.MatchString(f.Label) {
			continue
		}
		for _, key := range lp.keys {
			if v := profileValue(profile, key); v != "" {
				logging.MatchDebug("field %s: pattern tier hit on key %q", f.ID, key)
				return mapping(f, v, ConfidencePattern), true
			}
		}
	}

	// Tier 3: substring containment either direction.
	if f.Label != "" {
		for _, cf := range profile.Fields {
			if cf.IsEncrypted || cf.Value == "" {
				continue
			}
			nk := classify.Normalize(cf.Key)
			if nk == "" {
				continue
			}
			if contains(f.Label, nk) || contains(nk, f.Label) {
				logging.MatchDebug("field %s: partial tier hit on key %q", f.ID, cf.Key)
				return mapping(f, cf.Value, ConfidencePartial), true
			}
		}
	}

	return types.FieldMapping{}, false
}

func mapping(f types.FieldSignature, value string, confidence float64) types.FieldMapping {
	return types.FieldMapping{
		Field:      f,
		Value:      value,
		Confidence: confidence,
		Provenance: types.ProvenanceStatic,
	}
}

// profileValue returns the unencrypted value for key, or "".
func profileValue(p *types.Profile, key string) string {
	for _, f := range p.Fields {
		if f.Key == key && !f.IsEncrypted {
			return f.Value
		}
	}
	return ""
}

// contains requires the needle to be at least 3 runes so single letters and
// stray bigrams ("id", "no") cannot claim unrelated fields.
func contains(haystack, needle string) bool {
	return len(needle) >= 3 && strings.Contains(haystack, needle)
}
