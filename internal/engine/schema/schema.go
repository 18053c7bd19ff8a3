// Package schema defines the decision shape the triage engine guarantees to
// its consumers and the validator that enforces it. The four decision fields
// plus confidence_source are a stable contract; renaming them or changing
// the category enumeration requires a version bump downstream.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Category is the fixed classification enumeration, canonically upper-case.
type Category string

const (
	CategoryAccount      Category = "ACCOUNT"
	CategoryOrder        Category = "ORDER"
	CategoryBilling      Category = "BILLING"
	CategoryTechnical    Category = "TECHNICAL"
	CategorySubscription Category = "SUBSCRIPTION"
	CategoryOther        Category = "OTHER"
)

// Categories returns the enumeration in declaration order.
func Categories() []Category {
	return []Category{
		CategoryAccount,
		CategoryOrder,
		CategoryBilling,
		CategoryTechnical,
		CategorySubscription,
		CategoryOther,
	}
}

// ParseCategory matches s against the enumeration case-insensitively and
// returns the canonical form.
func ParseCategory(s string) (Category, bool) {
	upper := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range Categories() {
		if c == upper {
			return c, true
		}
	}
	return "", false
}

// SourceRuleFallback tags decisions produced by the deterministic keyword
// fallback rather than a model.
const SourceRuleFallback = "rule_fallback"

// TicketInput is the immutable per-call input. The engine never mutates it.
type TicketInput struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	History string `json:"history,omitempty"`
	Context string `json:"context,omitempty"`
}

// Text returns the ticket text the classifier and fallback rules operate on.
func (t TicketInput) Text() string {
	if t.Subject == "" {
		return t.Body
	}
	return t.Subject + "\n" + t.Body
}

// Decision is the engine's output. Every Decision handed to a caller is
// schema-valid: category is one of the enumeration and the three text
// fields are non-empty.
type Decision struct {
	Category         Category `json:"category"`
	Subcategory      string   `json:"subcategory"`
	Summary          string   `json:"summary"`
	Response         string   `json:"response"`
	ConfidenceSource string   `json:"confidence_source"`
}

// Field failure reasons reported by the validator.
const (
	ReasonMissingField    = "missing_field"
	ReasonWrongType       = "wrong_type"
	ReasonEmptyField      = "empty_field"
	ReasonInvalidCategory = "invalid_category"
)

// FieldError describes a single validation failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError enumerates every failed field so the orchestrator can log
// diagnostics without re-deriving them.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
	}
	return "decision validation failed: " + strings.Join(parts, ", ")
}

// Has reports whether the error contains a failure for field.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var requiredFields = []string{"category", "subcategory", "summary", "response"}

// decisionSchema is the structural contract checked before normalization.
var decisionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"category":    map[string]interface{}{"type": "string"},
		"subcategory": map[string]interface{}{"type": "string"},
		"summary":     map[string]interface{}{"type": "string"},
		"response":    map[string]interface{}{"type": "string"},
	},
	"required": requiredFields,
}

// Validate checks candidate against the decision contract. Pure function:
// it either returns a fully populated Decision (category canonicalized,
// text fields trimmed) or a ValidationError listing every violated field.
// Keys beyond the required four are ignored.
func Validate(candidate map[string]interface{}) (*Decision, *ValidationError) {
	verr := &ValidationError{}

	schemaLoader := gojsonschema.NewGoLoader(decisionSchema)
	documentLoader := gojsonschema.NewGoLoader(candidate)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		// The candidate could not even be loaded as a JSON document.
		for _, f := range requiredFields {
			verr.Fields = append(verr.Fields, FieldError{Field: f, Reason: ReasonWrongType})
		}
		return nil, verr
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			switch desc.Type() {
			case "required":
				if prop, ok := desc.Details()["property"].(string); ok {
					verr.Fields = append(verr.Fields, FieldError{Field: prop, Reason: ReasonMissingField})
				}
			case "invalid_type":
				verr.Fields = append(verr.Fields, FieldError{Field: desc.Field(), Reason: ReasonWrongType})
			}
		}
	}

	// Normalization checks on the fields the structural pass accepted.
	var category Category
	if raw, ok := candidate["category"].(string); ok {
		c, valid := ParseCategory(raw)
		if !valid {
			verr.Fields = append(verr.Fields, FieldError{Field: "category", Reason: ReasonInvalidCategory})
		}
		category = c
	}

	texts := map[string]string{}
	for _, f := range []string{"subcategory", "summary", "response"} {
		raw, ok := candidate[f].(string)
		if !ok {
			continue // already reported by the structural pass
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			verr.Fields = append(verr.Fields, FieldError{Field: f, Reason: ReasonEmptyField})
			continue
		}
		texts[f] = trimmed
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return &Decision{
		Category:    category,
		Subcategory: texts["subcategory"],
		Summary:     texts["summary"],
		Response:    texts["response"],
	}, nil
}
