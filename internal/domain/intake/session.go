// Package intake hosts donor intake sessions: the form that owns one
// location selector and one declaration wizard between HTTP requests. A
// session belongs to the user who opened it; staff and admins reach every
// session.
package intake

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/declaration"
	"github.com/bloodbank/bloodbank/internal/domain/location"
)

var (
	ErrSessionNotFound    = errors.New("intake session not found")
	ErrReadOnlyField      = errors.New("field is written by the location selector")
	ErrLocationIncomplete = errors.New("select a province, district and ward before submitting")
)

// Session is the persisted form state.
type Session struct {
	ID        uuid.UUID                  `json:"id"`
	Owner     string                     `json:"owner,omitempty"`
	Fields    Fields                     `json:"fields"`
	Location  location.Snapshot          `json:"location"`
	Wizard    declaration.WizardSnapshot `json:"wizard"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Fields holds the form's plain field values, including the address fields
// the selector writes. It implements location.FieldBinder.
type Fields map[string]string

func (f Fields) Field(name string) string { return f[name] }

func (f Fields) SetField(name, value string) { f[name] = value }

func isSelectorField(name string) bool {
	return name == location.FieldAddress || name == location.FieldAddressDisplay
}
