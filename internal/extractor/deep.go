package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/maltedev/seller-scraper/internal/models"
)

const (
	phoneContextLines = 2
	minDeepAddress    = 10
)

var phoneContextWords = []string{"电话", "電話", "tel", "phone", "連絡"}

// DeepAnalysis scans the text line by line for values that carry no label:
// phone numbers near a phone word, bare e-mail addresses, postal-code lines
// and company names with a corporate suffix.
type DeepAnalysis struct {
	patterns *PatternLibrary
}

func NewDeepAnalysis(patterns *PatternLibrary) *DeepAnalysis {
	return &DeepAnalysis{patterns: patterns}
}

func (d *DeepAnalysis) Name() string {
	return string(TierDeepAnalysis)
}

func (d *DeepAnalysis) ExtractField(page *Page, field models.Field) string {
	if page.Text == "" {
		return ""
	}
	lines := strings.Split(page.Text, "\n")

	switch field {
	case models.FieldPhone:
		return d.phone(lines)
	case models.FieldEmail, models.FieldBusinessName:
		return d.firstShape(lines, field)
	case models.FieldAddress:
		return d.address(lines)
	}
	return ""
}

func (d *DeepAnalysis) phone(lines []string) string {
	for i, line := range lines {
		m := deepPhoneShape.FindString(line)
		if m == "" || !Validate(models.FieldPhone, m) {
			continue
		}
		lo := max(0, i-phoneContextLines)
		hi := min(len(lines), i+phoneContextLines+1)
		context := strings.ToLower(strings.Join(lines[lo:hi], " "))
		for _, w := range phoneContextWords {
			if strings.Contains(context, w) {
				return m
			}
		}
	}
	return ""
}

func (d *DeepAnalysis) firstShape(lines []string, field models.Field) string {
	shapes := d.patterns.Shapes(field)
	for _, line := range lines {
		for _, re := range shapes {
			if m := strings.TrimSpace(re.FindString(line)); m != "" && Validate(field, m) {
				return m
			}
		}
	}
	return ""
}

func (d *DeepAnalysis) address(lines []string) string {
	shapes := d.patterns.Shapes(models.FieldAddress)
	for i, line := range lines {
		if !matchesAny(shapes, line) {
			continue
		}
		candidate := line
		if i+1 < len(lines) {
			candidate += " " + lines[i+1]
		}
		if utf8.RuneCountInString(candidate) > minDeepAddress && Validate(models.FieldAddress, candidate) {
			return candidate
		}
	}
	return ""
}
