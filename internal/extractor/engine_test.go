package extractor

import (
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/models"
)

const sellerPageHTML = `<html><body>
<div id="page-section-detail-seller-info">
  <div class="a-row"><span class="a-text-bold">Business Name:</span><span>Shenzhen Chuanzheng Technology CO.,Ltd</span></div>
  <div class="a-row"><span class="a-text-bold">Business Address:</span></div>
  <div class="a-row indent-left"><span>Nanshan District</span></div>
  <div class="a-row indent-left"><span>Shenzhen Guangdong 518000</span></div>
  <div class="a-row indent-left"><span>CN</span></div>
</div>
<table>
  <tr><th>電話番号</th><td>03-1234-5678</td></tr>
  <tr><th>Email</th><td>support@chuanzheng.example.com</td></tr>
</table>
<dl><dt>代表者</dt><dd>李明</dd></dl>
</body></html>`

func TestEngineEmptyInput(t *testing.T) {
	engine := Ultimate()

	tests := []struct {
		name  string
		input Input
	}{
		{"zero input", Input{}},
		{"empty html", Input{HTML: ""}},
		{"whitespace html", Input{HTML: "   \n\t"}},
		{"empty text", Input{Text: ""}},
		{"markup without text", Input{HTML: "<html><body><div></div></body></html>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Extract(tt.input)
			assert.Equal(t, models.SellerRecord{}, result.Record)
			assert.Empty(t, result.Sources)
		})
	}
}

func TestEngineBusinessNameAndPhoneFromText(t *testing.T) {
	text := "Business Name: Shenzhen Chuanzheng Technology CO.,Ltd\n咨询用电话号码: 13800138000"

	result := Baseline().Extract(Input{Text: text})

	assert.Equal(t, models.SellerRecord{
		BusinessName: "Shenzhen Chuanzheng Technology CO.,Ltd",
		Phone:        "13800138000",
	}, result.Record)
	assert.Equal(t, string(TierContextual), result.Sources[models.FieldBusinessName])
	assert.Equal(t, string(TierContextual), result.Sources[models.FieldPhone])
}

func TestContextualPhoneShapesTriedInDeclaredOrder(t *testing.T) {
	contextual := NewContextual(DefaultTaxonomy(), DefaultPatterns())

	tests := []struct {
		name     string
		field    models.Field
		text     string
		expected string
	}{
		{"earlier shape wins over earlier position", models.FieldPhone, "TEL: 03-1234-5678 / +8613800138000", "+8613800138000"},
		{"later shape when earlier ones miss", models.FieldPhone, "TEL: 03-1234-5678", "03-1234-5678"},
		{"bracketed area code", models.FieldPhone, "TEL: (03) 1234-5678", "(03) 1234-5678"},
		{"fax uses the same order", models.FieldFax, "FAX: 06-6123-4567, 13800138000", "13800138000"},
		{"number does not continue onto the next line", models.FieldPhone, "TEL: 03\n1234567890", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, contextual.ExtractField(&Page{Text: tt.text}, tt.field))
		})
	}

	result := Baseline().Extract(Input{Text: "TEL: 03-1234-5678 / +8613800138000"})
	assert.Equal(t, "+8613800138000", result.Record.Phone)
	assert.Equal(t, string(TierContextual), result.Sources[models.FieldPhone])
}

func TestEngineUnlabelledPhoneUsesRegexFallback(t *testing.T) {
	result := Baseline().Extract(Input{Text: "Call 090-1234-5678 for details."})

	assert.Equal(t, "090-1234-5678", result.Record.Phone)
	assert.Equal(t, string(TierRegexFallback), result.Sources[models.FieldPhone])

	structuralOnly := New(WithTiers(TierStructural, TierContextual))
	assert.Empty(t, structuralOnly.ExtractText("Call 090-1234-5678 for details.").Phone)
}

func TestEngineRejectsShortAddress(t *testing.T) {
	record := Baseline().ExtractText("Address: Tokyo")
	assert.Empty(t, record.Address)

	html := `<table>
		<tr><td>Address</td><td>Tokyo</td></tr>
		<tr><td>住所</td><td>東京都千代田区丸の内1-1-1</td></tr>
	</table>`
	result := Baseline().Extract(Input{HTML: html})
	assert.Equal(t, "東京都千代田区丸の内1-1-1", result.Record.Address)
	assert.Equal(t, string(TierStructural), result.Sources[models.FieldAddress])
}

func TestEngineStructuralWinsOverContextual(t *testing.T) {
	html := `<html><body>
		<p>Business Name: Contextual Holdings Inc</p>
		<table><tr><td>Business Name</td><td>Structural Trading Co., Ltd</td></tr></table>
	</body></html>`

	result := Baseline().Extract(Input{HTML: html})
	assert.Equal(t, "Structural Trading Co., Ltd", result.Record.BusinessName)
	assert.Equal(t, string(TierStructural), result.Sources[models.FieldBusinessName])

	contextualOnly := New(WithTiers(TierContextual))
	assert.Equal(t, "Contextual Holdings Inc", contextualOnly.ExtractHTML(html).BusinessName)
}

func TestEngineSellerPage(t *testing.T) {
	result := Baseline().Extract(Input{HTML: sellerPageHTML})

	assert.Equal(t, models.SellerRecord{
		BusinessName:   "Shenzhen Chuanzheng Technology CO.,Ltd",
		Phone:          "03-1234-5678",
		Address:        "Nanshan District Shenzhen Guangdong 518000",
		Representative: "李明",
		Email:          "support@chuanzheng.example.com",
	}, result.Record)

	assert.Equal(t, string(TierStructural), result.Sources[models.FieldBusinessName])
	assert.Equal(t, string(TierStructural), result.Sources[models.FieldPhone])
	assert.Equal(t, string(TierContextual), result.Sources[models.FieldAddress])
	assert.Equal(t, string(TierStructural), result.Sources[models.FieldRepresentative])
}

func TestEngineValidatorGatesStructuralValues(t *testing.T) {
	html := `<table>
		<tr><td>TEL</td><td>123</td></tr>
		<tr><td>Phone</td><td>06-6123-4567</td></tr>
	</table>`

	result := Baseline().Extract(Input{HTML: html})
	assert.Equal(t, "06-6123-4567", result.Record.Phone)
	assert.Equal(t, string(TierStructural), result.Sources[models.FieldPhone])
}

func TestEngineTruncatedMarkup(t *testing.T) {
	record := Baseline().ExtractHTML("<table><tr><td>TEL<td>03-1234-5678")
	assert.Equal(t, "03-1234-5678", record.Phone)
}

func TestEngineFullWidthLabels(t *testing.T) {
	record := Baseline().ExtractText("ＴＥＬ：０３－１２３４－５６７８")
	assert.Equal(t, "03-1234-5678", record.Phone)
}

func TestEngineDeepAnalysisIsLowestPriority(t *testing.T) {
	text := "連絡先\n06 12345678"

	assert.Empty(t, Baseline().ExtractText(text).Phone)

	result := Ultimate().Extract(Input{Text: text})
	assert.Equal(t, "0612345678", result.Record.Phone)
	assert.Equal(t, string(TierDeepAnalysis), result.Sources[models.FieldPhone])

	result = Ultimate().Extract(Input{Text: text + "\nCall 090-1234-5678"})
	assert.Equal(t, "090-1234-5678", result.Record.Phone)
	assert.Equal(t, string(TierRegexFallback), result.Sources[models.FieldPhone])
}

func TestEngineIsIdempotent(t *testing.T) {
	engine := Ultimate()

	first := engine.Extract(Input{HTML: sellerPageHTML})
	second := engine.Extract(Input{HTML: sellerPageHTML})

	assert.Equal(t, first, second)
}

func TestEngineExtractDocumentUsesCallerText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div>nothing here</div>`))
	require.NoError(t, err)

	record := Baseline().ExtractDocument(doc, "Email: sales@example.org")
	assert.Equal(t, "sales@example.org", record.Email)
}

func TestEngineConcurrentUse(t *testing.T) {
	engine := Ultimate()
	want := engine.ExtractHTML(sellerPageHTML)

	var wg sync.WaitGroup
	results := make([]models.SellerRecord, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.ExtractHTML(sellerPageHTML)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

type fixedStrategy struct {
	values map[models.Field]string
}

func (f fixedStrategy) Name() string { return "fixed" }

func (f fixedStrategy) ExtractField(_ *Page, field models.Field) string {
	return f.values[field]
}

func TestEngineCustomStrategies(t *testing.T) {
	engine := New(WithStrategies(
		fixedStrategy{values: map[models.Field]string{
			models.FieldStoreName: "  Maple   Store ",
			models.FieldPhone:     "123",
		}},
		NewRegexFallback(DefaultPatterns()),
	))

	assert.Equal(t, []string{"fixed", string(TierRegexFallback)}, engine.StrategyNames())

	result := engine.Extract(Input{Text: "Call 090-1234-5678"})
	assert.Equal(t, "Maple Store", result.Record.StoreName)
	assert.Equal(t, "fixed", result.Sources[models.FieldStoreName])
	assert.Equal(t, "090-1234-5678", result.Record.Phone)
	assert.Equal(t, string(TierRegexFallback), result.Sources[models.FieldPhone])
}

func TestPresetTiers(t *testing.T) {
	assert.Equal(t, []string{"structural", "contextual", "regex_fallback"}, New().StrategyNames())
	assert.Equal(t, []string{"structural", "contextual", "regex_fallback", "deep_analysis"}, Ultimate().StrategyNames())
}
