package declaration

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/location"
	"github.com/bloodbank/bloodbank/internal/platform/fhir"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeferred Status = "deferred"
	StatusRejected Status = "rejected"
)

// Reviewable reports whether s is a valid outcome of a staff review.
func (s Status) Reviewable() bool {
	return s == StatusApproved || s == StatusDeferred || s == StatusRejected
}

func (s Status) Valid() bool {
	return s == StatusPending || s.Reviewable()
}

var (
	ErrNotFound        = errors.New("declaration not found")
	ErrAlreadyReviewed = errors.New("declaration has already been reviewed")
	ErrInvalidStatus   = errors.New("invalid review status")
)

// Submission is a confirmed declaration waiting for, or past, staff review.
type Submission struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	Summary         string    `json:"summary"`
	Location        string    `json:"location"`
	LocationDisplay string    `json:"location_display"`
	Answers         State     `json:"answers"`
	Status          Status    `json:"status"`
	ReviewNote      *string   `json:"review_note,omitempty"`
	ReviewedBy      *string   `json:"reviewed_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Review is a staff decision on a pending submission.
type Review struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}

const (
	QuestionnaireURL = "urn:bloodbank:questionnaire:donor-medical-declaration"
	SessionSystem    = "urn:bloodbank:intake-session"
	AnswerSystem     = "urn:bloodbank:declaration-answer"
)

// ToFHIR renders the submission as a QuestionnaireResponse with one item per
// answered question in catalog order, followed by the address.
func (s *Submission) ToFHIR() fhir.QuestionnaireResponse {
	qr := fhir.QuestionnaireResponse{
		ResourceType:  "QuestionnaireResponse",
		ID:            s.ID.String(),
		Meta:          &fhir.Meta{LastUpdated: s.UpdatedAt},
		Identifier:    &fhir.Identifier{System: SessionSystem, Value: s.SessionID.String()},
		Questionnaire: QuestionnaireURL,
		Status:        "completed",
		Authored:      s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.Status == StatusRejected {
		qr.Status = "stopped"
	}

	for _, q := range questions {
		item := fhir.QuestionnaireResponseItem{LinkID: string(q.Field), Text: q.Label}
		switch q.Kind {
		case KindText:
			if v := strings.TrimSpace(s.Answers.Text(q.Field)); v != "" {
				item.Answer = append(item.Answer, fhir.StringAnswer(v))
			}
		case KindFlag:
			item.Answer = append(item.Answer, fhir.BoolAnswer(s.Answers.Agreement))
		case KindMulti:
			for _, e := range s.Answers.Multi(q.Field) {
				if e.IsOther() {
					if strings.TrimSpace(*e.Other) != "" {
						item.Answer = append(item.Answer, fhir.StringAnswer(e.Label()))
					}
					continue
				}
				item.Answer = append(item.Answer, fhir.CodingAnswer(AnswerSystem, e.Tag))
			}
		}
		if len(item.Answer) > 0 {
			qr.Item = append(qr.Item, item)
		}
	}

	if s.Location != "" {
		qr.Item = append(qr.Item, addressItems(s.Location, s.LocationDisplay)...)
	}
	return qr
}

func addressItems(value, display string) []fhir.QuestionnaireResponseItem {
	c, err := location.ParseComposite(value)
	if err != nil {
		return []fhir.QuestionnaireResponseItem{{
			LinkID: location.FieldAddress,
			Text:   "Address",
			Answer: []fhir.QuestionnaireResponseItemAnswer{fhir.StringAnswer(display)},
		}}
	}
	return []fhir.QuestionnaireResponseItem{
		{LinkID: "address.province", Text: "Province", Answer: []fhir.QuestionnaireResponseItemAnswer{fhir.StringAnswer(c.Province)}},
		{LinkID: "address.district", Text: "District", Answer: []fhir.QuestionnaireResponseItemAnswer{fhir.StringAnswer(c.District)}},
		{LinkID: "address.ward", Text: "Ward", Answer: []fhir.QuestionnaireResponseItemAnswer{fhir.StringAnswer(c.Ward)}},
	}
}
