package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/seller-scraper/internal/models"
)

// SearchCrawler runs a keyword search to exhaustion: page after page under
// every sort variant, resolving the sellers of each new product as it goes.
type SearchCrawler struct {
	search  *SearchScraper
	sellers *SellerScraper
	saver   Saver
	opts    Options
	logger  *slog.Logger

	onProgress func(Progress)
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewSearchCrawler(search *SearchScraper, sellers *SellerScraper, opts Options, logger *slog.Logger) *SearchCrawler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConsecutiveEmpty < 1 {
		opts.MaxConsecutiveEmpty = DefaultOptions().MaxConsecutiveEmpty
	}
	return &SearchCrawler{
		search:  search,
		sellers: sellers,
		opts:    opts,
		logger:  logger.With("component", "search_crawler"),
		sleep:   sleep,
	}
}

func (c *SearchCrawler) WithSaver(s Saver) *SearchCrawler {
	c.saver = s
	return c
}

func (c *SearchCrawler) OnProgress(fn func(Progress)) *SearchCrawler {
	c.onProgress = fn
	return c
}

// Crawl stops after MaxPages, after MaxConsecutiveEmpty pages without a new
// product, when no variant links to a further page, or when ctx ends. What
// was collected is saved in every case; a cancelled crawl returns its partial
// result with ctx's error.
func (c *SearchCrawler) Crawl(ctx context.Context, keyword string) (*Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}

	result := &Result{Keyword: keyword}
	seenURLs := make(map[string]bool)
	seenASINs := make(map[string]bool)
	consecutiveEmpty := 0
	lastSaved := 0

	c.logger.Info("starting search crawl", "keyword", keyword)

	var crawlErr error
	for page := 1; ; page++ {
		if c.opts.MaxPages > 0 && page > c.opts.MaxPages {
			result.Stopped = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			result.Stopped = StopCancelled
			crawlErr = err
			break
		}

		sp, err := c.search.ScrapePage(ctx, keyword, page)
		if err != nil {
			result.Stopped = StopCancelled
			crawlErr = err
			break
		}
		result.Pages = page

		unique := dedupe(sp.Products, seenURLs, seenASINs)
		c.logger.Info("search page processed",
			"page", page,
			"listings", len(sp.Products),
			"new", len(unique),
			"total", len(result.Products))

		if len(unique) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= c.opts.MaxConsecutiveEmpty {
				result.Stopped = StopExhausted
				break
			}
		} else {
			consecutiveEmpty = 0
			result.Products = append(result.Products, unique...)

			sellers, failed, err := c.sellers.ScrapeAll(ctx, unique)
			result.Sellers = append(result.Sellers, sellers...)
			result.Failed += failed
			if err != nil {
				result.Stopped = StopCancelled
				crawlErr = err
				break
			}
		}

		c.report(Progress{
			Keyword:  keyword,
			Page:     page,
			Products: len(result.Products),
			Sellers:  len(result.Sellers),
			NewFound: len(unique),
		})

		if c.opts.AutoSaveEvery > 0 && len(result.Products)-lastSaved >= c.opts.AutoSaveEvery {
			c.snapshot(result)
			lastSaved = len(result.Products)
		}

		if sp.Fetched > 0 && !sp.HasNext {
			result.Stopped = StopLastPage
			break
		}

		if err := c.sleep(ctx, c.opts.PagePause); err != nil {
			result.Stopped = StopCancelled
			crawlErr = err
			break
		}
	}

	c.finish(result)

	c.logger.Info("search crawl completed",
		"keyword", keyword,
		"pages", result.Pages,
		"products", len(result.Products),
		"sellers", len(result.Sellers),
		"failed", result.Failed,
		"stopped", result.Stopped)

	if errors.Is(crawlErr, context.Canceled) || errors.Is(crawlErr, context.DeadlineExceeded) {
		return result, crawlErr
	}
	return result, nil
}

func (c *SearchCrawler) report(p Progress) {
	if c.onProgress != nil {
		c.onProgress(p)
	}
}

func (c *SearchCrawler) snapshot(r *Result) {
	if c.saver == nil {
		return
	}
	if err := c.saver.Snapshot(r.Products, r.Sellers); err != nil {
		c.logger.Error("auto save failed", "error", err)
		return
	}
	c.logger.Info("auto saved", "products", len(r.Products), "sellers", len(r.Sellers))
}

func (c *SearchCrawler) finish(r *Result) {
	if c.saver == nil || len(r.Products) == 0 {
		return
	}
	if err := c.saver.Final(r.Products, r.Sellers); err != nil {
		c.logger.Error("final save failed", "error", err)
	}
}

// SellersWithContact returns the sellers that carry at least one contact field.
func (r *Result) SellersWithContact() []models.SellerResult {
	var out []models.SellerResult
	for _, s := range r.Sellers {
		if !s.Seller.IsEmpty() {
			out = append(out, s)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
