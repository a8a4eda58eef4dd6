// Package prompt renders the model-facing instructions for a fill: a fixed
// system instruction and a user instruction composed of profile data, the
// unmapped-field schema, and the retrieved context when it fits the budget.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"fieldpilot/internal/classify"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/retrieval"
	"fieldpilot/internal/types"
)

// SystemInstruction is fixed for every fill request. The rules mirror what
// the validator enforces, so a compliant response needs no repair.
const SystemInstruction = `You are a form-filling assistant. You receive a user's profile data, context about the user, and a list of form fields that need values.

Rules:
- Respond with ONLY a JSON object mapping field id to value. No prose, no markdown.
- NEVER provide values for passwords, verification codes, card numbers, or any credential field.
- Omit any field you are not reasonably sure about. An omitted field is better than a wrong value.
- Match the value shape to the input kind: a valid email for email inputs, digits for phone inputs, an ISO date (YYYY-MM-DD) for date inputs.`

// documentSummaryLimit caps each document excerpt in the user instruction.
const documentSummaryLimit = 500

// DefaultPromptBudget caps the user instruction in estimated tokens.
const DefaultPromptBudget = 4000

// fieldSchema is the per-field shape shown to the model.
type fieldSchema struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Kind        string `json:"kind"`
	Class       string `json:"class"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Builder renders user instructions within a token budget.
type Builder struct {
	budget int
}

// NewBuilder creates a builder. A non-positive budget selects the default.
func NewBuilder(budget int) *Builder {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	return &Builder{budget: budget}
}

// Build renders the user instruction. Credential fields never appear in the
// schema; encrypted profile fields never appear in the data section. The
// retrieved context block is appended only if it fits what remains of the
// budget after the mandatory sections.
func (b *Builder) Build(profile *types.Profile, unmapped []types.FieldSignature, retrieved *retrieval.Context) (string, error) {
	var sb strings.Builder

	sb.WriteString("## User profile\n")
	for _, f := range profile.Fields {
		if f.IsEncrypted || f.Value == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", f.Key, f.Value)
	}

	if len(profile.Documents) > 0 {
		sb.WriteString("\n## Documents\n")
		for _, d := range profile.Documents {
			summary := d.Text
			if len(summary) > documentSummaryLimit {
				summary = summary[:documentSummaryLimit] + "..."
			}
			fmt.Fprintf(&sb, "[%s] %s\n", d.Type, summary)
		}
	}

	schema := make([]fieldSchema, 0, len(unmapped))
	for _, f := range unmapped {
		if classify.IsSensitive(f) {
			continue
		}
		schema = append(schema, fieldSchema{
			ID:          f.ID,
			Label:       f.Label,
			Kind:        string(f.Kind),
			Class:       string(f.Class),
			Placeholder: f.Placeholder,
		})
	}
	if len(schema) == 0 {
		return "", fmt.Errorf("no fillable fields to prompt for")
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize field schema: %w", err)
	}
	sb.WriteString("\n## Fields to fill\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n\nRespond with a JSON object mapping field id to value.")

	// Context rides along only when it fits; the schema and profile are
	// mandatory, retrieval is best-effort.
	if retrieved != nil && len(retrieved.Blocks) > 0 {
		contextBlock := "\n\n## Relevant context about the user\n" + strings.Join(retrieved.Blocks, "\n---\n")
		used := retrieval.EstimateTokens(sb.String())
		if used+retrieval.EstimateTokens(contextBlock) <= b.budget {
			sb.WriteString(contextBlock)
		} else {
			logging.Prompt("dropping retrieval context: %d tokens used of %d budget", used, b.budget)
		}
	}

	out := sb.String()
	logging.Prompt("built prompt: %d fields, ~%d tokens", len(schema), retrieval.EstimateTokens(out))
	return out, nil
}
