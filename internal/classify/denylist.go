package classify

import (
	"regexp"
	"strings"

	"fieldpilot/internal/types"
)

// denySubstrings are label/name/id fragments that permanently exclude a
// field from automated values. Substring matching is deliberate: "ssn-last4"
// and "confirm_password" must both trip it.
var denySubstrings = []string{
	"password",
	"passwd",
	"passcode",
	"otp",
	"one time",
	"one-time",
	"2fa",
	"mfa",
	"verification code",
	"security code",
	"cvv",
	"cvc",
	"card number",
	"cardnumber",
	"ssn",
	"social security",
	"tax id",
	"taxid",
	"secret",
	"token",
	"api key",
	"apikey",
}

// pinWord needs a boundary check: a bare "pin" substring would also catch
// "shipping". Underscores count as separators here ("user_pin").
var pinWord = regexp.MustCompile(`(^|[^a-z0-9])pin([^a-z0-9]|$)`)

// denyAutocomplete tokens permanently exclude a field regardless of label.
var denyAutocomplete = map[string]bool{
	"current-password": true,
	"new-password":     true,
	"one-time-code":    true,
	"cc-number":        true,
	"cc-csc":           true,
	"cc-exp":           true,
	"cc-exp-month":     true,
	"cc-exp-year":      true,
}

// IsSensitive reports whether a field may never receive an automated value.
// A sensitive field must not appear in any mapping, vector text, or prompt.
func IsSensitive(f types.FieldSignature) bool {
	if f.Kind == types.InputPassword || f.Class == types.ClassCredential {
		return true
	}
	if denyAutocomplete[strings.ToLower(strings.TrimSpace(f.Autocomplete))] {
		return true
	}
	for _, haystack := range []string{f.Label, f.Name, f.ElementID} {
		h := strings.ToLower(haystack)
		if h == "" {
			continue
		}
		for _, needle := range denySubstrings {
			if strings.Contains(h, needle) {
				return true
			}
		}
		if pinWord.MatchString(h) {
			return true
		}
	}
	return false
}

// FilterSensitive returns the non-credential subset of fields, preserving
// order.
func FilterSensitive(fields []types.FieldSignature) []types.FieldSignature {
	out := make([]types.FieldSignature, 0, len(fields))
	for _, f := range fields {
		if !IsSensitive(f) {
			out = append(out, f)
		}
	}
	return out
}
