package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/seller-scraper/internal/models"
)

// seller info blocks that lay out "label: value" as sibling inline elements
// instead of table cells
const labelledContainerSelector = `[id*="seller"], [class*="seller"], [class*="merchant"], [class*="store"]`

const maxLabelRunes = 40

// KeyValue is one label/value pair found in the page markup.
type KeyValue struct {
	Key   string
	Value string
}

// Structural reads values out of table rows, definition lists and labelled
// seller blocks whose key text contains a taxonomy label.
type Structural struct {
	taxonomy *Taxonomy
}

func NewStructural(taxonomy *Taxonomy) *Structural {
	return &Structural{taxonomy: taxonomy}
}

func (s *Structural) Name() string {
	return string(TierStructural)
}

func (s *Structural) ExtractField(page *Page, field models.Field) string {
	for _, kv := range page.Pairs() {
		if !s.taxonomy.MatchesKey(field, kv.Key) {
			continue
		}
		if Validate(field, kv.Value) {
			return kv.Value
		}
	}
	return ""
}

// collectPairs returns key/value pairs in document order per source:
// table rows first, then dt/dd pairs, then labelled containers.
func collectPairs(doc *goquery.Document) []KeyValue {
	if doc == nil {
		return nil
	}

	var pairs []KeyValue
	add := func(key, value string) {
		if key == "" || value == "" {
			return
		}
		pairs = append(pairs, KeyValue{Key: key, Value: value})
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return
		}
		add(flattenSelection(cells.Eq(0)), flattenSelection(cells.Eq(1)))
	})

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.ChildrenFiltered("dt")
		descs := dl.ChildrenFiltered("dd")
		n := min(terms.Length(), descs.Length())
		for i := 0; i < n; i++ {
			add(flattenSelection(terms.Eq(i)), flattenSelection(descs.Eq(i)))
		}
	})

	doc.Find(labelledContainerSelector).Find("span, b, strong, label").Each(func(_ int, label *goquery.Selection) {
		key := flattenSelection(label)
		if key == "" || utf8.RuneCountInString(key) > maxLabelRunes {
			return
		}
		next := label.Next()
		if next.Length() == 0 {
			return
		}
		add(strings.TrimSpace(key), flattenSelection(next))
	})

	return pairs
}
