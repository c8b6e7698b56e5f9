package security

import (
	"fmt"
	"regexp"
	"strings"

	"planforge/internal/config"
)

// Sanitizer holds the compiled PII filters. It is immutable and safe for
// concurrent use; placeholder mappings live in per-request Sessions.
type Sanitizer struct {
	filters []piiFilter
	enabled bool
}

type piiFilter struct {
	name    string
	pattern *regexp.Regexp
	prefix  string
}

var defaultFilters = []struct {
	name    string
	pattern string
	prefix  string
}{
	{"email", `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "EMAIL"},
	{"card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, "CARD"},
	{"ssn", `\b\d{3}-\d{2}-\d{4}\b`, "SSN"},
	{"ip", `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`, "IP"},
	{"phone", `(?:\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`, "PHONE"},
}

// NewSanitizer creates a PII sanitizer from config.
func NewSanitizer(cfg config.PIIFilterConfig) *Sanitizer {
	s := &Sanitizer{enabled: cfg.Enabled}

	enableMap := map[string]bool{
		"email": cfg.FilterEmails,
		"phone": cfg.FilterPhones,
		"card":  cfg.FilterCards,
		"ip":    cfg.FilterIPs,
		"ssn":   cfg.FilterSSN,
	}
	for _, f := range defaultFilters {
		if enableMap[f.name] {
			s.filters = append(s.filters, piiFilter{
				name:    f.name,
				pattern: regexp.MustCompile(f.pattern),
				prefix:  f.prefix,
			})
		}
	}
	return s
}

// Enabled reports whether any filter is active.
func (s *Sanitizer) Enabled() bool {
	return s != nil && s.enabled && len(s.filters) > 0
}

// Session starts a redaction scope for one plan request.
func (s *Sanitizer) Session() *Session {
	return &Session{
		sanitizer:    s,
		placeholders: make(map[string]string),
		originals:    make(map[string]string),
		counter:      make(map[string]int),
	}
}

// Session replaces PII with stable placeholders and can put the originals
// back into text produced from the redacted input. Not safe for concurrent use.
type Session struct {
	sanitizer    *Sanitizer
	placeholders map[string]string // original → placeholder
	originals    map[string]string // placeholder → original
	counter      map[string]int
}

// Sanitize replaces PII in text with placeholders. The same value maps to
// the same placeholder for the life of the session.
func (s *Session) Sanitize(text string) string {
	if !s.sanitizer.Enabled() {
		return text
	}

	result := text
	for _, f := range s.sanitizer.filters {
		result = f.pattern.ReplaceAllStringFunc(result, func(match string) string {
			if isPlaceholder(match) {
				return match
			}
			if p, ok := s.placeholders[match]; ok {
				return p
			}
			s.counter[f.prefix]++
			p := fmt.Sprintf("[%s_%d]", f.prefix, s.counter[f.prefix])
			s.placeholders[match] = p
			s.originals[p] = match
			return p
		})
	}
	return result
}

// Restore replaces placeholders back with original values.
func (s *Session) Restore(text string) string {
	if len(s.originals) == 0 {
		return text
	}
	pairs := make([]string, 0, len(s.originals)*2)
	for placeholder, original := range s.originals {
		pairs = append(pairs, placeholder, original)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Redactions returns how many distinct values were replaced.
func (s *Session) Redactions() int {
	return len(s.originals)
}

var placeholderPattern = regexp.MustCompile(`^\[[A-Z]+_\d+\]$`)

func isPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}
