package extractor

import (
	"regexp"

	"github.com/maltedev/seller-scraper/internal/models"
)

// Separator characters between a label and its value, half and full width.
const separatorChars = `：:\s\-=`

var (
	leadingSeparators  = regexp.MustCompile(`^[` + separatorChars + `]+`)
	trailingSeparators = regexp.MustCompile(`[` + separatorChars + `]+$`)
	fieldSeparator     = regexp.MustCompile(`[：:]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	phoneDisallowed    = regexp.MustCompile(`[^\d+\-()\s]`)
	digit              = regexp.MustCompile(`\d`)
	emailExact         = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// PatternEntry lists the regular expressions of one field, tried in order.
type PatternEntry struct {
	Field    models.Field
	Patterns []*regexp.Regexp
}

// PatternLibrary holds value-shape patterns used next to a label and the
// full-text fallback patterns whose first capture group is the candidate.
type PatternLibrary struct {
	shapes   map[models.Field][]*regexp.Regexp
	fallback []PatternEntry
}

// phoneShapes are tried in this order and the first match wins, so the
// order is part of the behavior. The last two cover separated international
// and short area-code numbers none of the others accept.
var phoneShapes = []*regexp.Regexp{
	regexp.MustCompile(`\+?\d{1,4}[\- ]?\d{10,12}`),
	regexp.MustCompile(`\+?\d{11,15}`),
	regexp.MustCompile(`\d{2,4}[\- ]\d{4}[\- ]\d{4}`),
	regexp.MustCompile(`\(\d{2,4}\) ?\d{4}[\- ]?\d{4}`),
	regexp.MustCompile(`\+\d{1,4}[ \-]?(?:\d{1,4}[ \-]?){1,3}\d{4}`),
	regexp.MustCompile(`\d{2,4}[\- ]\d{2,4}[\- ]\d{3,4}`),
}

// looser phone shape used by line scanning, where a nearby phone word is
// required as well
var deepPhoneShape = regexp.MustCompile(`\+?\d{1,4}[\- ]?\d{8,12}`)

var emailShapes = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

// address shapes mark a line as the start of an address: a Japanese postal
// mark, a Chinese postcode run, or a trailing country code
var addressShapes = []*regexp.Regexp{
	regexp.MustCompile(`〒\s?\d{3}-?\d{4}`),
	regexp.MustCompile(`(?:^|\D)\d{6}(?:\D|$)`),
	regexp.MustCompile(`\b(?:CN|JP)\s*$`),
}

var businessNameShapes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[A-Za-z0-9][A-Za-z0-9 .,&'\-]{2,60}?(?:Co\., ?Ltd|Ltd|Limited|Corporation|Corp|Inc|Company|GmbH|LLC)\b\.?`),
	regexp.MustCompile(`(?:株式会社|有限会社|合同会社)[^\s　]{1,40}`),
	regexp.MustCompile(`[^\s　]{1,40}(?:株式会社|有限会社|合同会社|有限公司|股份有限公司)`),
}

// phone digits may be separated by spaces, hyphens or brackets but never by
// a line break, otherwise unrelated numbers on the next line get merged in
const phoneBody = `(\+?[\d\-\(\) \t　]{8,25})`

var defaultFallback = []PatternEntry{
	{
		Field: models.FieldBusinessName,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Business\s*Name[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`(?i)Company\s*Name[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`会社名[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`商号[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`事業者名[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`法人名称[：: \t]*([^\n\r]{3,80})`),
			regexp.MustCompile(`(?i)([A-Za-z0-9][A-Za-z0-9 .,&'\-]{2,60}?(?:Co\., ?Ltd|Ltd|Limited|Corporation|Corp|Inc|Company)\b\.?)`),
			regexp.MustCompile(`((?:株式会社|有限会社)[^\s　]{1,40}|[^\s　]{1,40}(?:株式会社|有限会社|有限公司))`),
		},
	},
	{
		Field: models.FieldPhone,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`咨询用电话号码[：: \t]*` + phoneBody),
			regexp.MustCompile(`電話番号[：: \t]*` + phoneBody),
			regexp.MustCompile(`(?i)TEL[：: \t]*` + phoneBody),
			regexp.MustCompile(`(?i)Phone[：: \t]*` + phoneBody),
			regexp.MustCompile(`(\+?\d{1,4}[\- ]?\d{10,12})`),
			regexp.MustCompile(`(\d{2,4}[\- ]\d{4}[\- ]\d{4})`),
			regexp.MustCompile(`(\(\d{2,4}\) ?\d{4}[\- ]?\d{4})`),
		},
	},
	{
		Field: models.FieldAddress,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`地址[：: \t]*([^\n\r]{10,150})`),
			regexp.MustCompile(`住所[：: \t]*([^\n\r]{10,150})`),
			regexp.MustCompile(`(?i)Address[：: \t]*([^\n\r]{10,150})`),
			regexp.MustCompile(`所在地[：: \t]*([^\n\r]{10,150})`),
			regexp.MustCompile(`(〒\s?\d{3}-?\d{4}[^\n\r]{5,120})`),
			regexp.MustCompile(`(\d{6}[^\n\r]{8,120})`),
			regexp.MustCompile(`([^\n\r]{10,200}\b(?:CN|JP)\b)`),
		},
	},
	{
		Field: models.FieldRepresentative,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`购物代表的姓名[：: \t]*([^\n\r]{2,40})`),
			regexp.MustCompile(`代表者[：: \t]*([^\n\r]{2,40})`),
			regexp.MustCompile(`代表取締役[：: \t]*([^\n\r]{2,40})`),
			regexp.MustCompile(`(?i)Representative[：: \t]*([^\n\r]{2,40})`),
			regexp.MustCompile(`責任者[：: \t]*([^\n\r]{2,40})`),
			regexp.MustCompile(`担当者[：: \t]*([^\n\r]{2,40})`),
		},
	},
	{
		Field: models.FieldStoreName,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`商店名[：: \t]*([^\n\r]{2,50})`),
			regexp.MustCompile(`店舗名[：: \t]*([^\n\r]{2,50})`),
			regexp.MustCompile(`(?i)Store\s*Name[：: \t]*([^\n\r]{2,50})`),
			regexp.MustCompile(`ショップ名[：: \t]*([^\n\r]{2,50})`),
			regexp.MustCompile(`販売店名[：: \t]*([^\n\r]{2,50})`),
		},
	},
	{
		Field: models.FieldEmail,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)E-?mail[：: \t]*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
			regexp.MustCompile(`メール[：: \t]*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
			regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
		},
	},
	{
		Field: models.FieldFax,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Fax[：: \t]*` + phoneBody),
			regexp.MustCompile(`ファックス[：: \t]*` + phoneBody),
			regexp.MustCompile(`ファクス[：: \t]*` + phoneBody),
			regexp.MustCompile(`传真[：: \t]*` + phoneBody),
		},
	},
}

var defaultPatterns = &PatternLibrary{
	shapes: map[models.Field][]*regexp.Regexp{
		models.FieldPhone:        phoneShapes,
		models.FieldFax:          phoneShapes,
		models.FieldEmail:        emailShapes,
		models.FieldAddress:      addressShapes,
		models.FieldBusinessName: businessNameShapes,
	},
	fallback: defaultFallback,
}

// DefaultPatterns returns the built-in pattern library.
func DefaultPatterns() *PatternLibrary {
	return defaultPatterns
}

// NewPatternLibrary builds a library from explicit tables. Fields without
// shapes fall back to the built-in shapes.
func NewPatternLibrary(shapes map[models.Field][]*regexp.Regexp, fallback []PatternEntry) *PatternLibrary {
	merged := make(map[models.Field][]*regexp.Regexp, len(defaultPatterns.shapes))
	for f, s := range defaultPatterns.shapes {
		merged[f] = s
	}
	for f, s := range shapes {
		merged[f] = s
	}

	return &PatternLibrary{
		shapes:   merged,
		fallback: append([]PatternEntry(nil), fallback...),
	}
}

// Shapes returns the value-shape patterns of a field.
func (l *PatternLibrary) Shapes(field models.Field) []*regexp.Regexp {
	return l.shapes[field]
}

// Fallback returns the full-text patterns of a field.
func (l *PatternLibrary) Fallback(field models.Field) []*regexp.Regexp {
	for _, entry := range l.fallback {
		if entry.Field == field {
			return entry.Patterns
		}
	}
	return nil
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
