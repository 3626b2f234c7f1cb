package extractor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maltedev/seller-scraper/internal/models"
)

const (
	minValueRunes = 2

	minPhoneDigits = 8
	maxPhoneDigits = 20

	minAddressRunes = 8

	minBusinessNameRunes   = 3
	maxBusinessNameRunes   = 100
	minRepresentativeRunes = 2
	maxRepresentativeRunes = 50
	minStoreNameRunes      = 2
	maxStoreNameRunes      = 60
)

// Validate reports whether value is a plausible value for field.
func Validate(field models.Field, value string) bool {
	value = strings.TrimSpace(value)
	n := utf8.RuneCountInString(value)
	if n < minValueRunes {
		return false
	}

	switch field {
	case models.FieldPhone, models.FieldFax:
		digits := countDigits(value)
		return digits >= minPhoneDigits && digits <= maxPhoneDigits
	case models.FieldEmail:
		return emailExact.MatchString(value)
	case models.FieldAddress:
		return n >= minAddressRunes && hasLetterOrCJK(value)
	case models.FieldBusinessName:
		return n >= minBusinessNameRunes && n <= maxBusinessNameRunes
	case models.FieldRepresentative:
		return n >= minRepresentativeRunes && n <= maxRepresentativeRunes
	case models.FieldStoreName:
		return n >= minStoreNameRunes && n <= maxStoreNameRunes
	}

	return true
}

func countDigits(s string) int {
	return len(digit.FindAllStringIndex(s, -1))
}

func hasLetterOrCJK(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}
