package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/seller-scraper/internal/models"
)

const minTitleRunes = 6

type AmazonParser struct {
	baseURL *url.URL

	productSelectors []string
	linkSelectors    []string
	titleSelectors   []string
	priceSelectors   []string
	productPaths     []string

	sellerContainers []string
	sellerWords      []string
	buyboxLinks      []string
}

func NewAmazonParser(baseURL string) (*AmazonParser, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	return &AmazonParser{
		baseURL: base,
		productSelectors: []string{
			`div[data-component-type="s-search-result"]`,
			`.s-result-item[data-component-type="s-search-result"]`,
			`.s-search-result`,
			`.sg-col-inner .s-widget-container`,
			`[data-asin]:not([data-asin=""])`,
			`.s-card-container`,
			`.AdHolder`,
			`.s-sponsored-list-item`,
		},
		linkSelectors: []string{
			`h2 a`,
			`.a-link-normal`,
			`a[href*="/dp/"]`,
			`a[href*="/gp/product/"]`,
			`.s-link-style a`,
			`.a-size-mini a`,
			`.a-size-base-plus a`,
		},
		titleSelectors: []string{
			`h2 a span`,
			`.a-size-mini span`,
			`.a-size-base-plus`,
			`.s-size-mini`,
			`h2 span`,
			`.a-link-normal span`,
		},
		priceSelectors: []string{
			`.a-price .a-offscreen`,
			`.a-price-whole`,
			`.a-price-range .a-offscreen`,
			`.a-price-symbol + .a-price-whole`,
			`.s-price-instructions-style .a-price .a-offscreen`,
			`.a-price-range`,
			`span[data-a-color="price"]`,
		},
		productPaths: []string{"/dp/", "/gp/product/", "/sspa/click", "/gp/slredirect/"},
		sellerContainers: []string{
			`#merchant-info`,
			`#merchantInfoFeature_feature_div`,
			`#tabular-buybox`,
			`#buybox`,
			`#tabular-buybox .a-section`,
			`#buybox-see-all-buying-choices`,
			`.a-box-group .a-box`,
			`.a-section`,
			`span`,
		},
		sellerWords: []string{"出售方", "販売", "Sold by", "销售"},
		buyboxLinks: []string{
			`#buybox .a-section a[href*="/sp?"]`,
			`.a-box-group a[href*="/sp?"]`,
			`#merchant-info a`,
		},
	}, nil
}

// BaseURL returns the marketplace origin links are resolved against.
func (p *AmazonParser) BaseURL() string {
	return p.baseURL.String()
}

// SearchURL builds the result page URL for a keyword. An empty sort keeps
// the marketplace's default ordering.
func (p *AmazonParser) SearchURL(keyword string, page int, sort string) string {
	u := p.baseURL.ResolveReference(&url.URL{Path: "/s"})

	q := url.Values{}
	q.Set("k", keyword)
	q.Set("page", strconv.Itoa(page))
	q.Set("ref", fmt.Sprintf("sr_pg_%d", page))
	if sort != "" {
		q.Set("s", sort)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func (p *AmazonParser) ParseSearchResults(html string) ([]*models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var products []*models.Product
	seen := make(map[string]bool)

	for _, selector := range p.productSelectors {
		doc.Find(selector).Each(func(i int, item *goquery.Selection) {
			product := p.parseProductCard(item)
			if product == nil || seen[product.URL] {
				return
			}
			seen[product.URL] = true
			products = append(products, product)
		})
	}

	return products, nil
}

func (p *AmazonParser) parseProductCard(item *goquery.Selection) *models.Product {
	var href string
	for _, selector := range p.linkSelectors {
		if h, ok := item.Find(selector).First().Attr("href"); ok && h != "" {
			href = h
			break
		}
	}
	if href == "" {
		return nil
	}

	link := p.resolve(href)
	if link == "" || !p.isProductLink(link) {
		return nil
	}

	asin, _ := item.Attr("data-asin")
	product := models.NewProduct(strings.TrimSpace(asin), link, p.findTitle(item))
	product.Price = p.findPrice(item)
	product.Rating = strings.TrimSpace(item.Find(".a-icon-alt").First().Text())
	product.ReviewCount = strings.TrimSpace(item.Find(".a-size-base").First().Text())
	product.ImageURL, _ = item.Find("img").First().Attr("src")

	return product
}

func (p *AmazonParser) findTitle(item *goquery.Selection) string {
	title := ""
	for _, selector := range p.titleSelectors {
		el := item.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		title = strings.TrimSpace(el.Text())
		if utf8.RuneCountInString(title) >= minTitleRunes {
			return title
		}
	}
	if title == "" {
		return models.UnknownTitle
	}
	return title
}

func (p *AmazonParser) findPrice(item *goquery.Selection) string {
	for _, selector := range p.priceSelectors {
		text := strings.TrimSpace(item.Find(selector).First().Text())
		if strings.IndexFunc(text, unicode.IsDigit) >= 0 {
			return text
		}
	}
	return models.UnknownPrice
}

func (p *AmazonParser) isProductLink(link string) bool {
	for _, path := range p.productPaths {
		if strings.Contains(link, path) {
			return true
		}
	}
	return false
}

// ParseSellerLink finds the "sold by" seller profile on a product page.
func (p *AmazonParser) ParseSellerLink(html string) (*SellerLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, selector := range p.sellerContainers {
		var found *SellerLink
		doc.Find(selector).EachWithBreak(func(i int, el *goquery.Selection) bool {
			if !p.mentionsSeller(el.Text()) {
				return true
			}
			a := el.Find(`a[href*="/sp?"]`).First()
			if a.Length() == 0 {
				return true
			}
			found = p.sellerLink(a)
			return found == nil
		})
		if found != nil {
			return found, nil
		}
	}

	for _, selector := range p.buyboxLinks {
		if link := p.sellerLink(doc.Find(selector).First()); link != nil {
			return link, nil
		}
	}

	return nil, ErrSellerNotFound
}

func (p *AmazonParser) mentionsSeller(text string) bool {
	for _, w := range p.sellerWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (p *AmazonParser) sellerLink(a *goquery.Selection) *SellerLink {
	href, ok := a.Attr("href")
	if !ok || href == "" {
		return nil
	}
	resolved := p.resolve(href)
	if resolved == "" {
		return nil
	}

	link := &SellerLink{
		Name: strings.TrimSpace(a.Text()),
		URL:  resolved,
	}
	if u, err := url.Parse(resolved); err == nil {
		link.SellerID = u.Query().Get("seller")
	}
	return link
}

// HasNextPage reports whether the result page links to a further page.
func (p *AmazonParser) HasNextPage(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("failed to parse HTML: %w", err)
	}

	next := doc.Find(".s-pagination-next").First()
	if next.Length() == 0 {
		return false, nil
	}
	return !next.HasClass("s-pagination-disabled"), nil
}

func (p *AmazonParser) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(ref).String()
}
