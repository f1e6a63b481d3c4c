package properties

import (
	"errors"
	"strings"
	"time"
)

// Address is a US postal address
type Address struct {
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2,omitempty" validate:"max=255"`
	City       string `json:"city" validate:"required,max=128"`
	State      string `json:"state" validate:"required,max=64"`
	PostalCode string `json:"postal_code" validate:"required,max=16"`
}

// String formats the address on one line
func (a Address) String() string {
	street := a.Line1
	if a.Line2 != "" {
		street += " " + a.Line2
	}
	parts := []string{}
	for _, p := range []string{street, a.City, strings.TrimSpace(a.State + " " + a.PostalCode)} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Property is a listing or subject property a team works on
type Property struct {
	ID             int64     `json:"id"`
	TeamID         int64     `json:"team_id"`
	Address        Address   `json:"address"`
	MLSNumber      string    `json:"mls_number,omitempty"`
	ListPriceCents int64     `json:"list_price_cents"`
	Bedrooms       int       `json:"bedrooms"`
	Bathrooms      float64   `json:"bathrooms"`
	SquareFeet     int       `json:"square_feet"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TemplateData exposes the property to contract templates as property.*
func (p *Property) TemplateData() map[string]any {
	return map[string]any{
		"id":               p.ID,
		"address":          p.Address.String(),
		"line1":            p.Address.Line1,
		"line2":            p.Address.Line2,
		"city":             p.Address.City,
		"state":            p.Address.State,
		"postal_code":      p.Address.PostalCode,
		"mls_number":       p.MLSNumber,
		"list_price_cents": p.ListPriceCents,
		"bedrooms":         p.Bedrooms,
		"bathrooms":        p.Bathrooms,
		"square_feet":      p.SquareFeet,
	}
}

// CreatePropertyRequest creates a property
type CreatePropertyRequest struct {
	Address        Address `json:"address" validate:"required"`
	MLSNumber      string  `json:"mls_number,omitempty" validate:"max=64"`
	ListPriceCents int64   `json:"list_price_cents" validate:"gte=0"`
	Bedrooms       int     `json:"bedrooms" validate:"gte=0"`
	Bathrooms      float64 `json:"bathrooms" validate:"gte=0"`
	SquareFeet     int     `json:"square_feet" validate:"gte=0"`
	Notes          string  `json:"notes,omitempty"`
}

// UpdatePropertyRequest updates a property. Nil fields are left unchanged.
type UpdatePropertyRequest struct {
	Address        *Address `json:"address,omitempty"`
	MLSNumber      *string  `json:"mls_number,omitempty" validate:"omitempty,max=64"`
	ListPriceCents *int64   `json:"list_price_cents,omitempty" validate:"omitempty,gte=0"`
	Bedrooms       *int     `json:"bedrooms,omitempty" validate:"omitempty,gte=0"`
	Bathrooms      *float64 `json:"bathrooms,omitempty" validate:"omitempty,gte=0"`
	SquareFeet     *int     `json:"square_feet,omitempty" validate:"omitempty,gte=0"`
	Notes          *string  `json:"notes,omitempty"`
}

// Page limits
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListOptions pages through properties, newest first
type ListOptions struct {
	Limit  int
	Offset int
}

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

// Property errors
var (
	ErrNotFound = errors.New("property not found")
	ErrInUse    = errors.New("property has contracts")
)
