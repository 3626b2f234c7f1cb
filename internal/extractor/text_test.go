package extractor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenDocument(t *testing.T) {
	html := `<html><head><title>ignored</title><style>.x{}</style></head><body>
		<div>Seller<span> info</span></div>
		<script>var tel = "0000";</script>
		<p>line one<br>line two</p>
		<table><tr><td>TEL</td><td>03-1234-5678</td></tr></table>
		<!-- comment -->
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	got := FlattenDocument(doc)
	assert.Equal(t, "Seller info\nline one\nline two\nTEL\n03-1234-5678", got)
}

func TestFlattenDocumentNil(t *testing.T) {
	assert.Equal(t, "", FlattenDocument(nil))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"drops blank lines", "  a  \n\n\t b \r\n", "a\nb"},
		{"full width folded", "ＴＥＬ：０３－１２３４－５６７８", "TEL:03-1234-5678"},
		{"ideographic space", "住所　東京都", "住所 東京都"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}
