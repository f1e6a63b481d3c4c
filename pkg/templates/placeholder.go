package templates

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// MissingPolicy controls how an unresolved placeholder without a fallback is rendered
type MissingPolicy string

const (
	// MissingKeep leaves the placeholder text intact
	MissingKeep MissingPolicy = "keep"
	// MissingBlank replaces the placeholder with nothing
	MissingBlank MissingPolicy = "blank"
	// MissingMark replaces the placeholder with [[path]]
	MissingMark MissingPolicy = "mark"
)

// Valid reports whether the policy is known
func (p MissingPolicy) Valid() bool {
	return p == MissingKeep || p == MissingBlank || p == MissingMark
}

// DateLayout is the layout used for time.Time values
const DateLayout = "January 2, 2006"

// RenderOptions configures placeholder substitution
type RenderOptions struct {
	Missing MissingPolicy
	// Escape HTML-escapes substituted values and fallbacks
	Escape bool
}

// Result is the output of Render
type Result struct {
	Text string `json:"text"`
	// Missing lists unresolved paths once each, in order of first appearance.
	// Placeholders resolved through a fallback are not missing.
	Missing []string `json:"missing"`
}

// SyntaxError reports a malformed placeholder
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at byte %d: %s", e.Offset, e.Msg)
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

type placeholder struct {
	start, end  int // byte range of the whole {{ ... }}
	path        string
	fallback    string
	hasFallback bool
}

// parse finds every placeholder in body
func parse(body string) ([]placeholder, error) {
	var out []placeholder
	pos := 0
	for {
		i := strings.Index(body[pos:], openDelim)
		if i < 0 {
			return out, nil
		}
		start := pos + i
		inner := start + len(openDelim)

		j := strings.Index(body[inner:], closeDelim)
		if j < 0 {
			return nil, &SyntaxError{Offset: start, Msg: "unterminated placeholder"}
		}
		content := body[inner : inner+j]
		if k := strings.Index(content, openDelim); k >= 0 {
			return nil, &SyntaxError{Offset: start, Msg: "unterminated placeholder"}
		}

		p := placeholder{start: start, end: inner + j + len(closeDelim)}
		path := content
		if bar := strings.IndexByte(content, '|'); bar >= 0 {
			path = content[:bar]
			p.fallback = strings.TrimSpace(content[bar+1:])
			p.hasFallback = true
		}
		p.path = strings.TrimSpace(path)
		if err := validatePath(p.path); err != nil {
			return nil, &SyntaxError{Offset: start, Msg: err.Error()}
		}

		out = append(out, p)
		pos = p.end
	}
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty placeholder")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid path %q", path)
		}
		for _, r := range seg {
			if !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return fmt.Errorf("invalid character %q in path %q", r, path)
			}
		}
	}
	return nil
}

// Placeholders lists the distinct placeholder paths in body, in order of first appearance
func Placeholders(body string) ([]string, error) {
	phs, err := parse(body)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(phs))
	paths := make([]string, 0, len(phs))
	for _, p := range phs {
		if !seen[p.path] {
			seen[p.path] = true
			paths = append(paths, p.path)
		}
	}
	return paths, nil
}

// Render substitutes every placeholder in body with its value from data
func Render(body string, data map[string]any, opts RenderOptions) (Result, error) {
	if opts.Missing == "" {
		opts.Missing = MissingKeep
	}
	if !opts.Missing.Valid() {
		return Result{}, fmt.Errorf("unknown missing policy %q", opts.Missing)
	}

	phs, err := parse(body)
	if err != nil {
		return Result{}, err
	}

	var b strings.Builder
	b.Grow(len(body))
	missing := []string{}
	reported := make(map[string]bool)
	last := 0

	for _, p := range phs {
		b.WriteString(body[last:p.start])
		last = p.end

		if v, ok := lookup(data, p.path); ok {
			b.WriteString(escape(formatValue(lastSegment(p.path), v), opts.Escape))
			continue
		}
		if p.hasFallback {
			b.WriteString(escape(p.fallback, opts.Escape))
			continue
		}

		if !reported[p.path] {
			reported[p.path] = true
			missing = append(missing, p.path)
		}
		switch opts.Missing {
		case MissingKeep:
			b.WriteString(body[p.start:p.end])
		case MissingMark:
			b.WriteString("[[" + p.path + "]]")
		}
	}
	b.WriteString(body[last:])

	return Result{Text: b.String(), Missing: missing}, nil
}

func escape(s string, on bool) string {
	if on {
		return html.EscapeString(s)
	}
	return s
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// lookup walks nested maps along a dot-separated path. Nil values, blank strings and
// nil times count as missing.
func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}

	switch v := cur.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, false
		}
	case *time.Time:
		if v == nil {
			return nil, false
		}
		return *v, true
	case map[string]any, map[string]string:
		// a path must end at a scalar
		return nil, false
	}
	return cur, true
}

// formatValue renders a scalar. Keys ending in _cents hold money in cents.
func formatValue(key string, v any) string {
	money := strings.HasSuffix(key, "_cents")

	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case time.Time:
		return x.Format(DateLayout)
	case int:
		return formatInt(int64(x), money)
	case int32:
		return formatInt(int64(x), money)
	case int64:
		return formatInt(x, money)
	case uint:
		return formatInt(int64(x), money)
	case uint32:
		return formatInt(int64(x), money)
	case uint64:
		return formatInt(int64(x), money)
	case float32:
		return formatFloat(float64(x), money)
	case float64:
		return formatFloat(x, money)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatInt(n int64, money bool) string {
	if money {
		return FormatCents(n)
	}
	return strconv.FormatInt(n, 10)
}

func formatFloat(f float64, money bool) string {
	if money {
		if f < 0 {
			return FormatCents(int64(f - 0.5))
		}
		return FormatCents(int64(f + 0.5))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatCents formats an amount in cents as dollars with thousands separators, e.g.
// 123456 -> $1,234.56
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	dollars := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, r := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}
