package extractor

import (
	"strings"

	"github.com/maltedev/seller-scraper/internal/models"
)

// RegexFallback runs the full-text patterns of a field against the whole
// page without requiring a nearby label.
type RegexFallback struct {
	patterns *PatternLibrary
}

func NewRegexFallback(patterns *PatternLibrary) *RegexFallback {
	return &RegexFallback{patterns: patterns}
}

func (r *RegexFallback) Name() string {
	return string(TierRegexFallback)
}

func (r *RegexFallback) ExtractField(page *Page, field models.Field) string {
	if page.Text == "" {
		return ""
	}

	for _, re := range r.patterns.Fallback(field) {
		m := re.FindStringSubmatch(page.Text)
		if len(m) < 2 {
			continue
		}
		value := strings.TrimSpace(m[1])
		if Validate(field, value) {
			return value
		}
	}
	return ""
}
