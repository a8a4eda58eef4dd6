// Package types defines the shared domain model for the field-resolution
// pipeline: field signatures, profiles, mappings, and vector entries.
// Keeping these in one leaf package avoids import cycles between the
// classifier, matcher, retrieval, and orchestration layers.
package types

// InputKind is the raw HTML input kind of a detected field.
type InputKind string

const (
	InputText     InputKind = "text"
	InputEmail    InputKind = "email"
	InputTel      InputKind = "tel"
	InputURL      InputKind = "url"
	InputNumber   InputKind = "number"
	InputDate     InputKind = "date"
	InputPassword InputKind = "password"
	InputSelect   InputKind = "select"
	InputRadio    InputKind = "radio"
	InputCheckbox InputKind = "checkbox"
	InputTextarea InputKind = "textarea"
	InputHidden   InputKind = "hidden"
)

// SemanticClass is the closed category a field is believed to represent.
type SemanticClass string

const (
	ClassFirstName  SemanticClass = "first_name"
	ClassLastName   SemanticClass = "last_name"
	ClassFullName   SemanticClass = "full_name"
	ClassEmail      SemanticClass = "email"
	ClassPhone      SemanticClass = "phone"
	ClassAddressL1  SemanticClass = "address_line1"
	ClassAddressL2  SemanticClass = "address_line2"
	ClassCity       SemanticClass = "city"
	ClassState      SemanticClass = "state"
	ClassZip        SemanticClass = "zip"
	ClassCountry    SemanticClass = "country"
	ClassCompany    SemanticClass = "company"
	ClassJobTitle   SemanticClass = "job_title"
	ClassWebsite    SemanticClass = "website"
	ClassBirthDate  SemanticClass = "birth_date"
	ClassCredential SemanticClass = "credential"
	ClassMessage    SemanticClass = "message"
	ClassUnknown    SemanticClass = "unknown"
)

// FieldContext carries the textual snippets surrounding a detected input.
// All of it is advisory; the classifier decides which snippet wins.
type FieldContext struct {
	LabelText   string `json:"label_text,omitempty"`
	SiblingText string `json:"sibling_text,omitempty"`
	ParentText  string `json:"parent_text,omitempty"`
	PositionX   int    `json:"position_x,omitempty"`
	PositionY   int    `json:"position_y,omitempty"`
}

// FieldDescriptor is the raw per-field shape supplied by form detection.
// It crosses the process boundary as JSON and is never trusted beyond
// classification input.
type FieldDescriptor struct {
	ID           string       `json:"id"`
	DOMPath      string       `json:"dom_path,omitempty"`
	Kind         InputKind    `json:"kind"`
	Name         string       `json:"name,omitempty"`
	ElementID    string       `json:"element_id,omitempty"`
	Placeholder  string       `json:"placeholder,omitempty"`
	Autocomplete string       `json:"autocomplete,omitempty"`
	AriaLabel    string       `json:"aria_label,omitempty"`
	Context      FieldContext `json:"context,omitempty"`
}

// FieldSignature is the normalized description of one detected form input.
// Signatures are immutable once produced: every detection pass regenerates
// them rather than mutating in place.
type FieldSignature struct {
	ID           string        `json:"id"`
	Kind         InputKind     `json:"kind"`
	Label        string        `json:"label"`
	Class        SemanticClass `json:"class"`
	Name         string        `json:"name,omitempty"`
	ElementID    string        `json:"element_id,omitempty"`
	Placeholder  string        `json:"placeholder,omitempty"`
	Autocomplete string        `json:"autocomplete,omitempty"`
	AriaLabel    string        `json:"aria_label,omitempty"`
	Context      FieldContext  `json:"context,omitempty"`
}

// FormSignature is one detected form: the page domain plus its fields.
type FormSignature struct {
	Domain string           `json:"domain"`
	Fields []FieldSignature `json:"fields"`
}
