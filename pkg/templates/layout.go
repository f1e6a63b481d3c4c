package templates

import (
	"errors"
	"fmt"
	"sort"
)

// Page describes a page in PDF points. Margins are measured from each edge.
type Page struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	MarginTop    float64 `json:"margin_top"`
	MarginBottom float64 `json:"margin_bottom"`
	MarginLeft   float64 `json:"margin_left"`
	MarginRight  float64 `json:"margin_right"`
}

// Letter is US Letter with one-inch margins
var Letter = Page{
	Width:        612,
	Height:       792,
	MarginTop:    72,
	MarginBottom: 72,
	MarginLeft:   72,
	MarginRight:  72,
}

// PrintableWidth is the width between the side margins
func (p Page) PrintableWidth() float64 {
	return p.Width - p.MarginLeft - p.MarginRight
}

// PrintableHeight is the height between the top and bottom margins
func (p Page) PrintableHeight() float64 {
	return p.Height - p.MarginTop - p.MarginBottom
}

// ZoneSpec sizes signature zones and the grid they are placed on
type ZoneSpec struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	GapX    float64 `json:"gap_x"`
	GapY    float64 `json:"gap_y"`
	Columns int     `json:"columns"`
}

// DefaultZoneSpec places two 216x60 zones per row, spanning the Letter printable width
var DefaultZoneSpec = ZoneSpec{
	Width:   216,
	Height:  60,
	GapX:    36,
	GapY:    36,
	Columns: 2,
}

// Signer is a party that signs the document
type Signer struct {
	Role  string `json:"role" yaml:"role" validate:"required"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Order int    `json:"order" yaml:"order"`
}

// Zone is a signature box. Y is measured from the top edge of the page.
type Zone struct {
	Signer string  `json:"signer"`
	Role   string  `json:"role"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout errors
var (
	ErrNoSigners       = errors.New("at least one signer is required")
	ErrZonesDoNotFit   = errors.New("signature zones do not fit the printable area")
	ErrInvalidZoneSpec = errors.New("invalid signature zone spec")
)

// LayoutZones places one zone per signer, ordered by Order (ties keep their input
// order), left to right and top to bottom, starting startY points below the top edge of
// startPage. A row that would cross the bottom margin starts at the top margin of the
// next page. Columns are centered in the printable width.
func LayoutZones(signers []Signer, page Page, spec ZoneSpec, startPage int, startY float64) ([]Zone, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	if spec.Columns <= 0 || spec.Width <= 0 || spec.Height <= 0 || spec.GapX < 0 || spec.GapY < 0 {
		return nil, ErrInvalidZoneSpec
	}

	gridWidth := float64(spec.Columns)*spec.Width + float64(spec.Columns-1)*spec.GapX
	if gridWidth > page.PrintableWidth() {
		return nil, fmt.Errorf("%w: %d columns need %.0fpt, page has %.0fpt",
			ErrZonesDoNotFit, spec.Columns, gridWidth, page.PrintableWidth())
	}
	if spec.Height > page.PrintableHeight() {
		return nil, fmt.Errorf("%w: zone height %.0fpt exceeds %.0fpt",
			ErrZonesDoNotFit, spec.Height, page.PrintableHeight())
	}

	ordered := make([]Signer, len(signers))
	copy(ordered, signers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	left := page.MarginLeft + (page.PrintableWidth()-gridWidth)/2
	bottom := page.Height - page.MarginBottom

	pageNum := startPage
	if pageNum < 1 {
		pageNum = 1
	}
	y := startY
	if y < page.MarginTop {
		y = page.MarginTop
	}

	zones := make([]Zone, 0, len(ordered))
	for i, s := range ordered {
		col := i % spec.Columns
		if col == 0 {
			if i > 0 {
				y += spec.Height + spec.GapY
			}
			if y+spec.Height > bottom {
				pageNum++
				y = page.MarginTop
			}
		}

		name := s.Name
		if name == "" {
			name = s.Role
		}
		zones = append(zones, Zone{
			Signer: name,
			Role:   s.Role,
			Page:   pageNum,
			X:      left + float64(col)*(spec.Width+spec.GapX),
			Y:      y,
			Width:  spec.Width,
			Height: spec.Height,
		})
	}
	return zones, nil
}
