package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/maltedev/seller-scraper/internal/models"
)

const (
	addressLineBudget = 4
	addressMinLine    = 2
	addressEnough     = 20
)

// Contextual looks for the first occurrence of each label in the flattened
// text and reads the value that follows it.
type Contextual struct {
	taxonomy *Taxonomy
	patterns *PatternLibrary
}

func NewContextual(taxonomy *Taxonomy, patterns *PatternLibrary) *Contextual {
	return &Contextual{taxonomy: taxonomy, patterns: patterns}
}

func (c *Contextual) Name() string {
	return string(TierContextual)
}

func (c *Contextual) ExtractField(page *Page, field models.Field) string {
	if page.Text == "" {
		return ""
	}

	for _, m := range c.taxonomy.matchersFor(field) {
		loc := m.re.FindStringIndex(page.Text)
		if loc == nil {
			continue
		}
		rest := leadingSeparators.ReplaceAllString(page.Text[loc[1]:], "")
		if rest == "" {
			continue
		}

		candidate := c.valueAfterLabel(field, rest)
		if candidate != "" && Validate(field, candidate) {
			return candidate
		}
	}
	return ""
}

func (c *Contextual) valueAfterLabel(field models.Field, rest string) string {
	switch field {
	case models.FieldPhone, models.FieldFax, models.FieldEmail:
		return c.firstShape(field, rest)
	case models.FieldAddress:
		return addressLines(rest)
	default:
		line, _, _ := strings.Cut(rest, "\n")
		if loc := fieldSeparator.FindStringIndex(line); loc != nil {
			line = line[:loc[0]]
		}
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= 1 {
			return ""
		}
		return line
	}
}

// firstShape returns the match of the first shape, in declared order, that
// occurs anywhere after the label.
func (c *Contextual) firstShape(field models.Field, rest string) string {
	for _, re := range c.patterns.Shapes(field) {
		if m := re.FindString(rest); m != "" {
			return m
		}
	}
	return ""
}

func addressLines(rest string) string {
	lines := strings.SplitN(rest, "\n", addressLineBudget+1)
	if len(lines) > addressLineBudget {
		lines = lines[:addressLineBudget]
	}

	var parts []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= addressMinLine {
			continue
		}
		parts = append(parts, line)
		if utf8.RuneCountInString(strings.Join(parts, " ")) > addressEnough {
			break
		}
	}
	return strings.Join(parts, " ")
}
