package templates

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Kind classifies a template
type Kind string

const (
	KindPurchaseAgreement Kind = "purchase_agreement"
	KindListingAgreement  Kind = "listing_agreement"
	KindLeaseAgreement    Kind = "lease_agreement"
	KindAddendum          Kind = "addendum"
	KindDisclosure        Kind = "disclosure"
	KindOther             Kind = "other"
)

// Template is a markdown contract body with placeholders and its signers
type Template struct {
	ID           int64     `json:"id,omitempty" yaml:"-"`
	TeamID       int64     `json:"team_id,omitempty" yaml:"-"`
	Name         string    `json:"name" yaml:"name"`
	Title        string    `json:"title" yaml:"title"`
	Kind         Kind      `json:"kind" yaml:"kind"`
	Body         string    `json:"body" yaml:"body"`
	Signers      []Signer  `json:"signers" yaml:"signers"`
	Builtin      bool      `json:"builtin" yaml:"-"`
	Placeholders []string  `json:"placeholders,omitempty" yaml:"-"`
	CreatedBy    string    `json:"created_by,omitempty" yaml:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// CreateTemplateRequest creates a team template
type CreateTemplateRequest struct {
	Name    string   `json:"name" validate:"required,max=100"`
	Title   string   `json:"title" validate:"required,max=255"`
	Kind    Kind     `json:"kind" validate:"required,oneof=purchase_agreement listing_agreement lease_agreement addendum disclosure other"`
	Body    string   `json:"body" validate:"required"`
	Signers []Signer `json:"signers" validate:"required,min=1,dive"`
}

// UpdateTemplateRequest updates a team template. Nil fields are left unchanged.
type UpdateTemplateRequest struct {
	Title   *string  `json:"title,omitempty" validate:"omitempty,max=255"`
	Kind    *Kind    `json:"kind,omitempty" validate:"omitempty,oneof=purchase_agreement listing_agreement lease_agreement addendum disclosure other"`
	Body    *string  `json:"body,omitempty"`
	Signers []Signer `json:"signers,omitempty" validate:"omitempty,min=1,dive"`
}

// PreviewRequest renders a template with sample data
type PreviewRequest struct {
	Data    map[string]any `json:"data"`
	Signers []Signer       `json:"signers,omitempty" validate:"omitempty,dive"`
}

// Template errors
var (
	ErrNotFound      = errors.New("template not found")
	ErrAlreadyExists = errors.New("template already exists")
	ErrInvalid       = errors.New("invalid template")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the template's name, body syntax and signers
func (t *Template) Validate() error {
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: name %q must be lowercase letters, digits, '-' or '_'", ErrInvalid, t.Name)
	}
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if t.Kind == "" {
		t.Kind = KindOther
	}
	if _, err := Placeholders(t.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(t.Signers) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, ErrNoSigners)
	}
	roles := make(map[string]bool, len(t.Signers))
	for _, s := range t.Signers {
		if s.Role == "" {
			return fmt.Errorf("%w: signer role is required", ErrInvalid)
		}
		if roles[s.Role] {
			return fmt.Errorf("%w: duplicate signer role %q", ErrInvalid, s.Role)
		}
		roles[s.Role] = true
	}
	return nil
}
