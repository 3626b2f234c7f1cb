package extractor

import (
	"regexp"

	"github.com/maltedev/seller-scraper/internal/models"
)

// TaxonomyVersion is bumped whenever labels are added or removed so exported
// data can be traced back to the label set that produced it.
const TaxonomyVersion = "2024.4"

type Lang string

const (
	LangZH     Lang = "zh"
	LangJA     Lang = "ja"
	LangEN     Lang = "en"
	LangKO     Lang = "ko"
	LangSymbol Lang = "sym"
)

// Label is one human readable field name variant that tends to precede a value.
type Label struct {
	Text string
	Lang Lang
}

// KeywordEntry lists the labels of one field. Order is iteration order only.
type KeywordEntry struct {
	Field  models.Field
	Labels []Label
}

type labelMatcher struct {
	label Label
	re    *regexp.Regexp
}

// Taxonomy is an immutable field -> labels table shared by all strategies.
type Taxonomy struct {
	version  string
	entries  []KeywordEntry
	matchers map[models.Field][]labelMatcher
}

var defaultEntries = []KeywordEntry{
	{
		Field: models.FieldBusinessName,
		Labels: []Label{
			{"Business Name", LangEN},
			{"Company Name", LangEN},
			{"Legal Name", LangEN},
			{"会社名", LangJA},
			{"商号", LangJA},
			{"事業者名", LangJA},
			{"販売業者", LangJA},
			{"販売事業者名", LangJA},
			{"企业名称", LangZH},
			{"公司名称", LangZH},
			{"法人名称", LangZH},
			{"상호", LangKO},
			{"회사명", LangKO},
			// legal-form words; matched last so explicit name labels win
			{"株式会社", LangJA},
			{"有限会社", LangJA},
			{"Corporation", LangEN},
			{"Corp", LangEN},
			{"Ltd", LangEN},
			{"Inc", LangEN},
		},
	},
	{
		Field: models.FieldPhone,
		Labels: []Label{
			{"咨询用电话号码", LangZH},
			{"电话号码", LangZH},
			{"联系电话", LangZH},
			{"咨询电话", LangZH},
			{"客服电话", LangZH},
			{"服务电话", LangZH},
			{"電話番号", LangJA},
			{"電話", LangJA},
			{"でんわ", LangJA},
			{"Phone Number", LangEN},
			{"Telephone", LangEN},
			{"Contact Number", LangEN},
			{"Phone", LangEN},
			{"TEL", LangEN},
			{"전화번호", LangKO},
			{"☎", LangSymbol},
			{"📞", LangSymbol},
		},
	},
	{
		Field: models.FieldAddress,
		Labels: []Label{
			{"Business Address", LangEN},
			{"Address", LangEN},
			{"住所", LangJA},
			{"所在地", LangJA},
			{"本社所在地", LangJA},
			{"事業所所在地", LangJA},
			{"営業所", LangJA},
			{"事務所", LangJA},
			{"事业所所在地", LangZH},
			{"地址", LangZH},
			{"联系地址", LangZH},
			{"公司地址", LangZH},
			{"营业地址", LangZH},
			{"事务所", LangZH},
			{"주소", LangKO},
		},
	},
	{
		Field: models.FieldRepresentative,
		Labels: []Label{
			{"购物代表的姓名", LangZH},
			{"负责人", LangZH},
			{"联系人", LangZH},
			{"代表人", LangZH},
			{"代表者氏名", LangJA},
			{"代表取締役氏名", LangJA},
			{"代表者", LangJA},
			{"代表取締役", LangJA},
			{"責任者氏名", LangJA},
			{"責任者", LangJA},
			{"担当者", LangJA},
			{"Representative", LangEN},
			{"Contact Person", LangEN},
			{"President", LangEN},
			{"CEO", LangEN},
			{"대표자", LangKO},
		},
	},
	{
		Field: models.FieldStoreName,
		Labels: []Label{
			{"Store Name", LangEN},
			{"Shop Name", LangEN},
			{"Seller Name", LangEN},
			{"商店名", LangJA},
			{"店舗名", LangJA},
			{"ショップ名", LangJA},
			{"ストア名", LangJA},
			{"販売店名", LangJA},
			{"店名", LangJA},
			{"店铺名称", LangZH},
			{"상점명", LangKO},
		},
	},
	{
		Field: models.FieldEmail,
		Labels: []Label{
			{"Contact Email", LangEN},
			{"E-mail", LangEN},
			{"Email", LangEN},
			{"メールアドレス", LangJA},
			{"メール", LangJA},
			{"电子邮件", LangZH},
			{"联系邮箱", LangZH},
			{"邮箱", LangZH},
			{"이메일", LangKO},
			{"@", LangSymbol},
		},
	},
	{
		Field: models.FieldFax,
		Labels: []Label{
			{"Fax Number", LangEN},
			{"Fax", LangEN},
			{"ファックス", LangJA},
			{"ファクス", LangJA},
			{"传真号码", LangZH},
			{"传真", LangZH},
			{"팩스", LangKO},
		},
	},
}

var defaultTaxonomy = NewTaxonomy(TaxonomyVersion, defaultEntries)

// DefaultTaxonomy returns the built-in multi-language label table.
func DefaultTaxonomy() *Taxonomy {
	return defaultTaxonomy
}

func NewTaxonomy(version string, entries []KeywordEntry) *Taxonomy {
	t := &Taxonomy{
		version:  version,
		entries:  copyEntries(entries),
		matchers: make(map[models.Field][]labelMatcher, len(entries)),
	}

	for _, entry := range t.entries {
		for _, label := range entry.Labels {
			if label.Text == "" {
				continue
			}
			t.matchers[entry.Field] = append(t.matchers[entry.Field], labelMatcher{
				label: label,
				re:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label.Text)),
			})
		}
	}

	return t
}

// With returns a new taxonomy with extra labels appended to the given field.
func (t *Taxonomy) With(field models.Field, labels ...Label) *Taxonomy {
	entries := copyEntries(t.entries)

	found := false
	for i := range entries {
		if entries[i].Field == field {
			entries[i].Labels = append(entries[i].Labels, labels...)
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, KeywordEntry{Field: field, Labels: labels})
	}

	return NewTaxonomy(t.version+"+ext", entries)
}

func (t *Taxonomy) Version() string {
	return t.version
}

// Labels returns the label texts of a field in iteration order.
func (t *Taxonomy) Labels(field models.Field) []string {
	matchers := t.matchers[field]
	labels := make([]string, 0, len(matchers))
	for _, m := range matchers {
		labels = append(labels, m.label.Text)
	}
	return labels
}

// Entries returns a copy of the underlying table.
func (t *Taxonomy) Entries() []KeywordEntry {
	return copyEntries(t.entries)
}

// MatchesKey reports whether a key text (table header, dt, label span)
// contains any label of the field, ignoring case.
func (t *Taxonomy) MatchesKey(field models.Field, key string) bool {
	for _, m := range t.matchers[field] {
		if m.re.MatchString(key) {
			return true
		}
	}
	return false
}

func (t *Taxonomy) matchersFor(field models.Field) []labelMatcher {
	return t.matchers[field]
}

func copyEntries(entries []KeywordEntry) []KeywordEntry {
	out := make([]KeywordEntry, len(entries))
	for i, e := range entries {
		out[i] = KeywordEntry{
			Field:  e.Field,
			Labels: append([]Label(nil), e.Labels...),
		}
	}
	return out
}
