// Package fhir holds the FHIR R4 shapes the intake API renders: references,
// codings, OperationOutcome for errors and QuestionnaireResponse for
// submitted declarations.
package fhir

import (
	"time"
)

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// FormatReference builds "Type/id".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "processing", diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome("error", "not-found", resourceType+"/"+id+" not found")
}

// InvalidOutcome builds one "invalid" issue per field, keyed by the field's
// expression path. Field order follows the fields slice.
func InvalidOutcome(fields []string, messages map[string]string) *OperationOutcome {
	out := &OperationOutcome{ResourceType: "OperationOutcome"}
	for _, f := range fields {
		msg, ok := messages[f]
		if !ok {
			continue
		}
		out.Issue = append(out.Issue, OperationOutcomeIssue{
			Severity:    "error",
			Code:        "invalid",
			Diagnostics: msg,
			Expression:  []string{f},
		})
	}
	return out
}

// QuestionnaireResponse is the FHIR rendering of a completed questionnaire.
type QuestionnaireResponse struct {
	ResourceType  string                      `json:"resourceType"`
	ID            string                      `json:"id,omitempty"`
	Meta          *Meta                       `json:"meta,omitempty"`
	Identifier    *Identifier                 `json:"identifier,omitempty"`
	Questionnaire string                      `json:"questionnaire,omitempty"`
	Status        string                      `json:"status"`
	Authored      string                      `json:"authored,omitempty"`
	Item          []QuestionnaireResponseItem `json:"item,omitempty"`
}

type QuestionnaireResponseItem struct {
	LinkID string                            `json:"linkId"`
	Text   string                            `json:"text,omitempty"`
	Answer []QuestionnaireResponseItemAnswer `json:"answer,omitempty"`
}

type QuestionnaireResponseItemAnswer struct {
	ValueBoolean *bool   `json:"valueBoolean,omitempty"`
	ValueString  *string `json:"valueString,omitempty"`
	ValueCoding  *Coding `json:"valueCoding,omitempty"`
}

// StringAnswer wraps s as a valueString answer.
func StringAnswer(s string) QuestionnaireResponseItemAnswer {
	return QuestionnaireResponseItemAnswer{ValueString: &s}
}

// BoolAnswer wraps b as a valueBoolean answer.
func BoolAnswer(b bool) QuestionnaireResponseItemAnswer {
	return QuestionnaireResponseItemAnswer{ValueBoolean: &b}
}

// CodingAnswer wraps a code from system as a valueCoding answer.
func CodingAnswer(system, code string) QuestionnaireResponseItemAnswer {
	return QuestionnaireResponseItemAnswer{ValueCoding: &Coding{System: system, Code: code, Display: code}}
}
