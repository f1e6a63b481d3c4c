package templates

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/closingroom/pkg/templates")

// Position is a point on a page, Y measured from the top edge
type Position struct {
	Page int     `json:"page"`
	Y    float64 `json:"y"`
}

// Document is a rendered template
type Document struct {
	Title          string   `json:"title"`
	HTML           string   `json:"html"`
	Missing        []string `json:"missing"`
	Zones          []Zone   `json:"zones"`
	SignatureStart Position `json:"signature_start"`
	Pages          int      `json:"pages"`
}

// Renderer turns templates into HTML documents with signature zones
type Renderer struct {
	Page         Page
	Zones        ZoneSpec
	LineHeight   float64 // points per estimated line
	CharsPerLine int     // wrap budget used for the height estimate
	SignatureGap float64 // space between the body and the first zone row
	Missing      MissingPolicy
	Metrics      *observability.Metrics

	md goldmark.Markdown
}

// NewRenderer creates a renderer for US Letter pages
func NewRenderer() *Renderer {
	return &Renderer{
		Page:         Letter,
		Zones:        DefaultZoneSpec,
		LineHeight:   14,
		CharsPerLine: 90,
		SignatureGap: 36,
		Missing:      MissingMark,
		md:           goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

var defaultRenderer = NewRenderer()

// RenderDocument renders a template with the default renderer. When signers is empty
// the template's own signers are used.
func RenderDocument(tmpl *Template, data map[string]any, signers []Signer) (*Document, error) {
	return defaultRenderer.Render(context.Background(), tmpl, data, signers)
}

// Render substitutes placeholders (HTML-escaped), converts the markdown to HTML, finds
// where the body ends and lays out the signature zones below it
func (r *Renderer) Render(ctx context.Context, tmpl *Template, data map[string]any, signers []Signer) (doc *Document, err error) {
	_, span := tracer.Start(ctx, "templates.Render")
	span.SetAttributes(attribute.String("template.name", tmpl.Name))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "render failed")
		}
		span.End()
		r.Metrics.RecordDocumentRender(time.Since(start), err)
	}()

	if len(signers) == 0 {
		signers = tmpl.Signers
	}

	res, err := Render(tmpl.Body, data, RenderOptions{Missing: r.Missing, Escape: true})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.markdown().Convert([]byte(res.Text), &buf); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	pos := r.signatureStart(res.Text)
	zones, err := LayoutZones(signers, r.Page, r.Zones, pos.Page, pos.Y)
	if err != nil {
		return nil, err
	}

	pages := pos.Page
	if n := len(zones); n > 0 && zones[n-1].Page > pages {
		pages = zones[n-1].Page
	}

	span.SetAttributes(
		attribute.Int("document.pages", pages),
		attribute.Int("document.missing", len(res.Missing)),
	)
	return &Document{
		Title:          tmpl.Title,
		HTML:           buf.String(),
		Missing:        res.Missing,
		Zones:          zones,
		SignatureStart: pos,
		Pages:          pages,
	}, nil
}

func (r *Renderer) markdown() goldmark.Markdown {
	if r.md == nil {
		r.md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	}
	return r.md
}

// EstimateLines approximates the number of printed lines of a markdown body. Long lines
// wrap at CharsPerLine, blank lines count once and headings count double.
func (r *Renderer) EstimateLines(text string) int {
	perLine := r.CharsPerLine
	if perLine <= 0 {
		perLine = 90
	}

	lines := 0
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		line = strings.TrimRight(line, " \t")
		n := utf8.RuneCountInString(line)
		if n == 0 {
			lines++
			continue
		}
		wrapped := (n + perLine - 1) / perLine
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			wrapped *= 2
		}
		lines += wrapped
	}
	return lines
}

// signatureStart converts the estimated body height into the page and offset where the
// first zone row may start
func (r *Renderer) signatureStart(text string) Position {
	height := float64(r.EstimateLines(text)) * r.LineHeight
	printable := r.Page.PrintableHeight()

	pageIdx := math.Floor(height / printable)
	offset := height - pageIdx*printable

	return Position{
		Page: int(pageIdx) + 1,
		Y:    r.Page.MarginTop + offset + r.SignatureGap,
	}
}

var standalone = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article class="contract">
{{.Body}}
</article>
<section class="signatures">
{{- range .Zones}}
<div class="signature-zone" data-role="{{.Role}}" data-page="{{.Page}}" data-x="{{.X}}" data-y="{{.Y}}" data-width="{{.Width}}" data-height="{{.Height}}">{{.Signer}}</div>
{{- end}}
</section>
</body>
</html>
`))

// Standalone wraps the document in a complete HTML page with zone markers for the
// signing service
func (d *Document) Standalone() ([]byte, error) {
	var buf bytes.Buffer
	err := standalone.Execute(&buf, struct {
		Title string
		Body  template.HTML
		Zones []Zone
	}{
		Title: d.Title,
		Body:  template.HTML(d.HTML),
		Zones: d.Zones,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build document page: %w", err)
	}
	return buf.Bytes(), nil
}
