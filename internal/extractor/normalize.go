package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/maltedev/seller-scraper/internal/models"
)

const (
	addressCap      = 200
	businessNameCap = 100
	defaultCap      = 80
)

// Normalize cleans an accepted value: whitespace runs collapse to one space,
// separator punctuation is trimmed from both ends, phone and fax keep only
// digits and +-() and the result is cut to the field's length cap.
func Normalize(field models.Field, value string) string {
	if value == "" {
		return ""
	}

	if field == models.FieldAddress {
		value = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
	}

	value = whitespaceRun.ReplaceAllString(value, " ")
	value = trimSeparators(value)

	switch field {
	case models.FieldPhone, models.FieldFax:
		value = phoneDisallowed.ReplaceAllString(value, "")
		value = whitespaceRun.ReplaceAllString(value, "")
	case models.FieldEmail:
		value = whitespaceRun.ReplaceAllString(value, "")
	}

	return strings.TrimSpace(truncate(value, capFor(field)))
}

func trimSeparators(s string) string {
	s = leadingSeparators.ReplaceAllString(s, "")
	s = trailingSeparators.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func capFor(field models.Field) int {
	switch field {
	case models.FieldAddress:
		return addressCap
	case models.FieldBusinessName:
		return businessNameCap
	default:
		return defaultCap
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
