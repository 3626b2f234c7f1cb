package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/seller-scraper/internal/fetch"
	"github.com/maltedev/seller-scraper/internal/models"
	"github.com/maltedev/seller-scraper/internal/parser"
)

var ErrEmptyKeyword = errors.New("search keyword is empty")

// PageFetcher loads marketplace pages. fetch.Session implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// SearchParser is the marketplace page parser plus search URL construction.
type SearchParser interface {
	parser.Parser
	SearchURL(keyword string, page int, sort string) string
}

// SellerSink receives every resolved seller, e.g. for persistence.
type SellerSink interface {
	SaveSeller(ctx context.Context, result models.SellerResult) error
}

// Saver writes crawl snapshots and the final export.
type Saver interface {
	Snapshot(products []*models.Product, sellers []models.SellerResult) error
	Final(products []*models.Product, sellers []models.SellerResult) error
}

type Options struct {
	MaxPages            int
	MaxConsecutiveEmpty int
	SortVariants        []string
	Workers             int
	AutoSaveEvery       int
	PagePause           time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConsecutiveEmpty: 5,
		SortVariants:        []string{"", "price-asc-rank", "price-desc-rank", "review-rank", "date-desc-rank"},
		Workers:             1,
		AutoSaveEvery:       50,
	}
}

// Progress is reported after every result page.
type Progress struct {
	Keyword  string
	Page     int
	Products int
	Sellers  int
	NewFound int
}

type Result struct {
	Keyword  string
	Products []*models.Product
	Sellers  []models.SellerResult
	Pages    int
	Failed   int
	Stopped  string
}

const (
	StopMaxPages  = "max_pages"
	StopExhausted = "no_new_products"
	StopLastPage  = "last_page"
	StopCancelled = "cancelled"
)
