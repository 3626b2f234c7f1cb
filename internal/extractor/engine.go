// Package extractor turns a seller or product detail page into a
// models.SellerRecord. An Engine runs an ordered list of strategies per
// field and keeps the first value that survives validation and cleaning.
//
// Engines are immutable after construction and safe for concurrent use.
// Nothing in this package performs I/O or returns errors for bad input;
// empty or malformed pages yield an empty record.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/seller-scraper/internal/models"
)

type Tier string

const (
	TierStructural    Tier = "structural"
	TierContextual    Tier = "contextual"
	TierRegexFallback Tier = "regex_fallback"
	TierDeepAnalysis  Tier = "deep_analysis"
)

var (
	BaselineTiers = []Tier{TierStructural, TierContextual, TierRegexFallback}
	UltimateTiers = []Tier{TierStructural, TierContextual, TierRegexFallback, TierDeepAnalysis}
)

// Strategy attempts one field on one page. It returns a validated raw value
// or "" when it has nothing to offer.
type Strategy interface {
	Name() string
	ExtractField(page *Page, field models.Field) string
}

// Page is the per-call view of the input shared by all strategies.
type Page struct {
	Doc  *goquery.Document
	Text string

	pairs     []KeyValue
	pairsDone bool
}

// Pairs returns the label/value pairs of the markup, computed on first use.
func (p *Page) Pairs() []KeyValue {
	if !p.pairsDone {
		p.pairs = collectPairs(p.Doc)
		p.pairsDone = true
	}
	return p.pairs
}

// Input is what the fetch layer hands over. Any combination may be empty.
type Input struct {
	HTML string
	Doc  *goquery.Document
	// Text is pre-flattened page text; when empty it is derived from the markup.
	Text string
}

// Result carries the record and, per populated field, the name of the
// strategy that supplied it.
type Result struct {
	Record  models.SellerRecord
	Sources map[models.Field]string
}

type Engine struct {
	taxonomy   *Taxonomy
	patterns   *PatternLibrary
	tiers      []Tier
	strategies []Strategy
}

type Option func(*Engine)

func WithTaxonomy(t *Taxonomy) Option {
	return func(e *Engine) {
		if t != nil {
			e.taxonomy = t
		}
	}
}

func WithPatterns(p *PatternLibrary) Option {
	return func(e *Engine) {
		if p != nil {
			e.patterns = p
		}
	}
}

// WithTiers selects built-in strategies in the given priority order.
func WithTiers(tiers ...Tier) Option {
	return func(e *Engine) {
		e.tiers = append([]Tier(nil), tiers...)
	}
}

// WithStrategies replaces the built-in tiers with custom strategies, highest
// priority first.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = append([]Strategy(nil), strategies...)
	}
}

// New builds an engine running the baseline tiers unless options say otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{
		taxonomy: DefaultTaxonomy(),
		patterns: DefaultPatterns(),
		tiers:    BaselineTiers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = e.buildStrategies()
	}
	return e
}

// Baseline runs structural, contextual and regex fallback extraction.
func Baseline(opts ...Option) *Engine {
	return New(append([]Option{WithTiers(BaselineTiers...)}, opts...)...)
}

// Ultimate adds line-based deep text analysis below regex fallback.
func Ultimate(opts ...Option) *Engine {
	return New(append([]Option{WithTiers(UltimateTiers...)}, opts...)...)
}

func (e *Engine) buildStrategies() []Strategy {
	strategies := make([]Strategy, 0, len(e.tiers))
	for _, tier := range e.tiers {
		switch tier {
		case TierStructural:
			strategies = append(strategies, NewStructural(e.taxonomy))
		case TierContextual:
			strategies = append(strategies, NewContextual(e.taxonomy, e.patterns))
		case TierRegexFallback:
			strategies = append(strategies, NewRegexFallback(e.patterns))
		case TierDeepAnalysis:
			strategies = append(strategies, NewDeepAnalysis(e.patterns))
		}
	}
	return strategies
}

// StrategyNames lists the active strategies in priority order.
func (e *Engine) StrategyNames() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

func (e *Engine) Taxonomy() *Taxonomy {
	return e.taxonomy
}

func (e *Engine) Extract(in Input) Result {
	page := newPage(in)
	result := Result{Sources: make(map[models.Field]string)}

	values := make(map[models.Field]string, len(models.AllFields))
	for _, field := range models.AllFields {
		for _, s := range e.strategies {
			raw := s.ExtractField(page, field)
			if raw == "" {
				continue
			}
			value := Normalize(field, raw)
			if !Validate(field, value) {
				continue
			}
			values[field] = value
			result.Sources[field] = s.Name()
			break
		}
	}

	result.Record = models.NewSellerRecord(values)
	return result
}

func (e *Engine) ExtractHTML(html string) models.SellerRecord {
	return e.Extract(Input{HTML: html}).Record
}

func (e *Engine) ExtractDocument(doc *goquery.Document, text string) models.SellerRecord {
	return e.Extract(Input{Doc: doc, Text: text}).Record
}

func (e *Engine) ExtractText(text string) models.SellerRecord {
	return e.Extract(Input{Text: text}).Record
}

func newPage(in Input) *Page {
	doc := in.Doc
	if doc == nil && strings.TrimSpace(in.HTML) != "" {
		// parse errors can only come from the reader
		if parsed, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML)); err == nil {
			doc = parsed
		}
	}

	text := NormalizeText(in.Text)
	if text == "" {
		text = FlattenDocument(doc)
	}

	return &Page{Doc: doc, Text: text}
}
