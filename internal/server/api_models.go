package server

import (
	"github.com/raysh454/glimpse/internal/app"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/store"
)

// CreateSessionRequest opens a recording session. A nil design system means
// the defaults.
type CreateSessionRequest struct {
	Name   string              `json:"name" example:"checkout flow"`
	Design *audit.DesignSystem `json:"design_system,omitempty"`
}

// RecordJourneyRequest carries the ordered steps of one journey.
type RecordJourneyRequest struct {
	Steps []app.StepSpec `json:"steps"`
}

// RecordResponse is a stored record and, when a relationship was asked for,
// its children.
type RecordResponse struct {
	Record   *store.Record   `json:"record"`
	Children []*store.Record `json:"children,omitempty"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
