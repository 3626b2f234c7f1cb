package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxTitleRunes = 150

// Placeholders written to exports when a listing or product page lacks a value.
const (
	UnknownTitle    = "未知产品"
	UnknownPrice    = "价格未知"
	UnknownSeller   = "未知卖家"
	SponsoredSeller = "赞助商品"
)

// Product is one listing found on a marketplace search results page.
type Product struct {
	ASIN        string    `json:"asin"`
	Title       string    `json:"title"`
	Price       string    `json:"price"`
	Rating      string    `json:"rating"`
	ReviewCount string    `json:"review_count"`
	ImageURL    string    `json:"image_url"`
	URL         string    `json:"url"`
	ExtractedAt time.Time `json:"extracted_at"`
}

func NewProduct(asin, url, title string) *Product {
	return &Product{
		ASIN:        asin,
		URL:         url,
		Title:       truncateRunes(strings.TrimSpace(title), maxTitleRunes),
		ExtractedAt: time.Now(),
	}
}

// IsSponsoredRedirect reports whether the product link is an ad redirect that
// does not lead to a product page with seller information.
func (p *Product) IsSponsoredRedirect() bool {
	return strings.Contains(p.URL, "/sspa/click") || strings.Contains(p.URL, "/gp/slredirect/")
}

func (p *Product) Validate() []string {
	var errors []string

	if p.URL == "" {
		errors = append(errors, "URL is required")
	}

	if p.Title == "" {
		errors = append(errors, "Title is required")
	}

	return errors
}

// SellerResult ties an extracted seller record to the product it was found on.
type SellerResult struct {
	Seller       SellerRecord `json:"seller"`
	ProductTitle string       `json:"product_title"`
	ProductURL   string       `json:"product_url"`
	ProductASIN  string       `json:"product_asin"`
	ExtractedAt  time.Time    `json:"extracted_at"`
}

func NewSellerResult(seller SellerRecord, product *Product) SellerResult {
	return SellerResult{
		Seller:       seller,
		ProductTitle: product.Title,
		ProductURL:   product.URL,
		ProductASIN:  product.ASIN,
		ExtractedAt:  time.Now(),
	}
}

type ScrapeResult struct {
	Product *Product      `json:"product,omitempty"`
	Seller  *SellerResult `json:"seller,omitempty"`
	Error   *Error        `json:"error,omitempty"`
	Success bool          `json:"success"`
}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
