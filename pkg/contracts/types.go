package contracts

import (
	"errors"
	"time"
)

// Status is a contract's lifecycle state
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusSigned   Status = "signed"
	StatusDeclined Status = "declined"
	StatusVoided   Status = "voided"
)

// Party is a person named in a contract
type Party struct {
	Role  string `json:"role" validate:"required,max=64"`
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Order int    `json:"order"`
}

// Contract is a team's agreement for a property, rendered from a template
type Contract struct {
	ID              int64          `json:"id"`
	TeamID          int64          `json:"team_id"`
	PropertyID      int64          `json:"property_id"`
	TemplateID      *int64         `json:"template_id,omitempty"`
	TemplateName    string         `json:"template_name,omitempty"`
	Title           string         `json:"title"`
	Status          Status         `json:"status"`
	Parties         []Party        `json:"parties"`
	Fields          map[string]any `json:"fields"`
	DocumentKey     string         `json:"document_key,omitempty"`
	Revision        int            `json:"revision"`
	Missing         []string       `json:"missing"`
	BillableOverage bool           `json:"billable_overage"`
	CreatedBy       string         `json:"created_by"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CreateContractRequest creates a draft contract. Exactly one of TemplateID (a team
// template) and TemplateName (a built-in template) is set.
type CreateContractRequest struct {
	PropertyID   int64          `json:"property_id" validate:"required,gt=0"`
	TemplateID   *int64         `json:"template_id,omitempty" validate:"required_without=TemplateName,excluded_with=TemplateName"`
	TemplateName string         `json:"template_name,omitempty" validate:"required_without=TemplateID,max=128"`
	Title        string         `json:"title" validate:"required,max=255"`
	Parties      []Party        `json:"parties" validate:"dive"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// UpdateContractRequest updates a draft. Nil fields are left unchanged.
type UpdateContractRequest struct {
	Title   *string        `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Parties []Party        `json:"parties,omitempty" validate:"omitempty,dive"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// StatusRequest moves a sent or draft contract to a final state
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=signed declined voided"`
}

// ListOptions filters and pages contracts, newest first
type ListOptions struct {
	Limit      int
	Offset     int
	Status     Status
	PropertyID int64
}

// Page limits
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Normalize applies the default and maximum page size
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Contract errors
var (
	ErrNotFound          = errors.New("contract not found")
	ErrInvalidTransition = errors.New("invalid contract status transition")
	ErrNotDraft          = errors.New("contract is no longer a draft")
	ErrNotGenerated      = errors.New("contract document has not been generated")
	ErrMissingFields     = errors.New("contract document has unresolved placeholders")
	ErrTemplateRequired  = errors.New("exactly one of template_id and template_name is required")
)
