package scraper

import (
	"context"
	"log/slog"

	"github.com/maltedev/seller-scraper/internal/models"
)

// SearchPage is one result page fetched under every sort variant.
type SearchPage struct {
	Products []*models.Product
	Fetched  int
	HasNext  bool
}

type SearchScraper struct {
	fetcher  PageFetcher
	parser   SearchParser
	variants []string
	logger   *slog.Logger
}

func NewSearchScraper(f PageFetcher, p SearchParser, variants []string, logger *slog.Logger) *SearchScraper {
	if len(variants) == 0 {
		variants = []string{""}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchScraper{
		fetcher:  f,
		parser:   p,
		variants: variants,
		logger:   logger.With("component", "search_scraper"),
	}
}

// ScrapePage collects the listings of one page number across all sort
// variants. A failing variant is logged and skipped.
func (s *SearchScraper) ScrapePage(ctx context.Context, keyword string, page int) (*SearchPage, error) {
	result := &SearchPage{}

	for _, sort := range s.variants {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		url := s.parser.SearchURL(keyword, page, sort)
		fetched, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("search page failed", "page", page, "sort", sort, "error", err)
			continue
		}

		html := fetched.HTML()
		products, err := s.parser.ParseSearchResults(html)
		if err != nil {
			s.logger.Warn("failed to parse search page", "page", page, "sort", sort, "error", err)
			continue
		}
		result.Fetched++
		result.Products = append(result.Products, products...)

		if next, err := s.parser.HasNextPage(html); err == nil && next {
			result.HasNext = true
		}

		s.logger.Debug("search page parsed", "page", page, "sort", sort, "products", len(products))
	}

	return result, nil
}

// dedupe keeps products whose URL and ASIN were not seen before and records
// them as seen.
func dedupe(products []*models.Product, seenURLs, seenASINs map[string]bool) []*models.Product {
	var unique []*models.Product
	for _, p := range products {
		if seenURLs[p.URL] || (p.ASIN != "" && seenASINs[p.ASIN]) {
			continue
		}
		seenURLs[p.URL] = true
		if p.ASIN != "" {
			seenASINs[p.ASIN] = true
		}
		unique = append(unique, p)
	}
	return unique
}
