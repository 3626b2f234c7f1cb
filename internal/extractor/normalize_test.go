package extractor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/seller-scraper/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		field    models.Field
		value    string
		expected string
	}{
		{"phone inner space", models.FieldPhone, "+861380013 8000", "+8613800138000"},
		{"phone keeps hyphens", models.FieldPhone, "+86 138-0013-8000", "+86138-0013-8000"},
		{"phone strips label text", models.FieldPhone, "TEL: (03) 1234-5678 ", "(03)1234-5678"},
		{"fax same rules", models.FieldFax, " 03 1234 5679", "0312345679"},
		{"email drops whitespace", models.FieldEmail, " info @example.com ", "info@example.com"},
		{"address newlines", models.FieldAddress, "東京都\n千代田区  丸の内", "東京都 千代田区 丸の内"},
		{"separators trimmed", models.FieldBusinessName, "： ACME Trading Ltd -", "ACME Trading Ltd"},
		{"equals sign trimmed", models.FieldRepresentative, "= Li Ming =", "Li Ming"},
		{"empty", models.FieldStoreName, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.field, tt.value)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, Normalize(tt.field, got), "normalizing twice must not change the value")
		})
	}
}

func TestNormalizeLengthCaps(t *testing.T) {
	tests := []struct {
		field models.Field
		cap   int
	}{
		{models.FieldAddress, 200},
		{models.FieldBusinessName, 100},
		{models.FieldStoreName, 80},
		{models.FieldRepresentative, 80},
	}

	for _, tt := range tests {
		t.Run(tt.field.String(), func(t *testing.T) {
			got := Normalize(tt.field, strings.Repeat("あ", 250))
			assert.Equal(t, tt.cap, utf8.RuneCountInString(got))
		})
	}
}

func TestNormalizePhoneCharset(t *testing.T) {
	got := Normalize(models.FieldPhone, "電話 +81 (3) 1234-5678 内線 12")
	for _, r := range got {
		assert.Contains(t, "0123456789+-()", string(r))
	}
}
