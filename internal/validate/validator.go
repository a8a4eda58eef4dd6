// Package validate checks raw model output against the originating form:
// parse, reject unknown and denylisted field ids, and score each surviving
// value by how well its shape fits the field. Validation failures are data,
// not exceptions: an invalid result triggers static fallback upstream.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fieldpilot/internal/classify"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

// Confidence levels assigned to validated LLM values.
const (
	ConfidenceBase      = 0.9 // value present, shape check passed or not applicable
	ConfidenceSoftFail  = 0.6 // semantic-class shape miss (zip, email by class)
	ConfidenceShapeFail = 0.4 // input-kind shape miss (email/tel/url/date/number)
)

// Severity ranks validation issues.
type Severity int

const (
	SeverityWarning  Severity = iota
	SeverityError             // non-blocking: the pair is dropped
	SeverityBlocking          // the whole response is invalid
)

// Issue is one validation finding.
type Issue struct {
	Severity Severity
	FieldID  string
	Message  string
}

// Result is the validator's verdict over one model response.
type Result struct {
	Mappings []types.FieldMapping
	Issues   []Issue
}

// Valid reports whether the response can be used: no blocking issue and at
// least one mapping produced.
func (r *Result) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocking {
			return false
		}
	}
	return len(r.Mappings) > 0
}

// BlockingReason returns the first blocking issue message, or "".
func (r *Result) BlockingReason() string {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocking {
			return issue.Message
		}
	}
	return ""
}

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9\s\-().]{7,20}$`)
	urlPattern     = regexp.MustCompile(`^https?://\S+\.\S+`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	zipPattern     = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z\- ]{2,9}$`)
)

// Validate parses raw model output and produces scored mappings for the
// fields of form. Unknown ids are dropped with a non-blocking error;
// denylisted ids are a blocking security violation.
func Validate(raw string, form types.FormSignature) *Result {
	timer := logging.StartTimer(logging.CategoryValidate, "Validate")
	defer timer.Stop()

	res := &Result{}

	extracted := ExtractJSON(raw)
	if extracted == "" {
		res.Issues = append(res.Issues, Issue{
			Severity: SeverityBlocking,
			Message:  "no JSON object found in model output",
		})
		return res
	}

	var pairs map[string]any
	if err := json.Unmarshal([]byte(extracted), &pairs); err != nil {
		res.Issues = append(res.Issues, Issue{
			Severity: SeverityBlocking,
			Message:  fmt.Sprintf("model output is not a JSON object: %v", err),
		})
		return res
	}

	fieldsByID := make(map[string]types.FieldSignature, len(form.Fields))
	for _, f := range form.Fields {
		fieldsByID[f.ID] = f
	}

	// Iterate the form's field order so output order is deterministic
	// regardless of map iteration.
	for _, f := range form.Fields {
		rawValue, ok := pairs[f.ID]
		if !ok {
			continue
		}

		if classify.IsSensitive(f) {
			logging.Security("model returned a value for denylisted field %s (%s)", f.ID, f.Label)
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityBlocking,
				FieldID:  f.ID,
				Message:  fmt.Sprintf("security violation: value for denylisted field %q", f.Label),
			})
			continue
		}

		value := strings.TrimSpace(coerceString(rawValue))
		if value == "" {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityWarning,
				FieldID:  f.ID,
				Message:  "empty value dropped",
			})
			continue
		}

		res.Mappings = append(res.Mappings, types.FieldMapping{
			Field:      f,
			Value:      value,
			Confidence: scoreValue(f, value),
			Provenance: types.ProvenanceLLM,
		})
	}

	for id := range pairs {
		if _, known := fieldsByID[id]; !known {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityError,
				FieldID:  id,
				Message:  fmt.Sprintf("unknown field id %q dropped", id),
			})
		}
	}

	logging.Validate("validated response: %d mappings, %d issues", len(res.Mappings), len(res.Issues))
	return res
}

// scoreValue starts at the base confidence and downgrades when the value's
// shape contradicts the field's input kind or semantic class.
func scoreValue(f types.FieldSignature, value string) float64 {
	switch f.Kind {
	case types.InputEmail:
		if !emailPattern.MatchString(value) {
			return ConfidenceShapeFail
		}
	case types.InputTel:
		if !phonePattern.MatchString(value) {
			return ConfidenceShapeFail
		}
	case types.InputURL:
		if !urlPattern.MatchString(value) {
			return ConfidenceShapeFail
		}
	case types.InputDate:
		if !isoDatePattern.MatchString(value) {
			return ConfidenceShapeFail
		}
	case types.InputNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return ConfidenceShapeFail
		}
	}

	switch f.Class {
	case types.ClassZip:
		if !zipPattern.MatchString(value) {
			return ConfidenceSoftFail
		}
	case types.ClassEmail:
		if !emailPattern.MatchString(value) {
			return ConfidenceSoftFail
		}
	}

	return ConfidenceBase
}

// coerceString renders scalar JSON values as strings; arrays and objects
// are rejected by rendering empty (and dropped as empty values).
func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
