package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/seller-scraper/internal/extractor"
	"github.com/maltedev/seller-scraper/internal/models"
	"github.com/maltedev/seller-scraper/internal/parser"
	"github.com/maltedev/seller-scraper/internal/queue"
	"github.com/maltedev/seller-scraper/internal/storage"
)

type SellerScraper struct {
	fetcher  PageFetcher
	parser   SearchParser
	engine   *extractor.Engine
	progress *storage.LinkStorage
	sink     SellerSink
	workers  int
	logger   *slog.Logger
}

func NewSellerScraper(f PageFetcher, p SearchParser, engine *extractor.Engine, workers int, logger *slog.Logger) *SellerScraper {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SellerScraper{
		fetcher: f,
		parser:  p,
		engine:  engine,
		workers: workers,
		logger:  logger.With("component", "seller_scraper"),
	}
}

// WithProgress records per-product status and skips products completed in
// an earlier run.
func (s *SellerScraper) WithProgress(ls *storage.LinkStorage) *SellerScraper {
	s.progress = ls
	return s
}

func (s *SellerScraper) WithSink(sink SellerSink) *SellerScraper {
	s.sink = sink
	return s
}

// ScrapeSeller resolves the seller of one product: the product page yields
// the seller link, the seller page yields the contact record. A product
// without a seller link still produces a record named UnknownSeller.
func (s *SellerScraper) ScrapeSeller(ctx context.Context, product *models.Product) (models.SellerResult, error) {
	if product.IsSponsoredRedirect() {
		record := models.SellerRecord{}.WithProvenance(models.SponsoredSeller, "")
		return models.NewSellerResult(record, product), nil
	}

	page, err := s.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		return models.SellerResult{}, fmt.Errorf("failed to fetch product page: %w", err)
	}

	link, err := s.parser.ParseSellerLink(page.HTML())
	if errors.Is(err, parser.ErrSellerNotFound) {
		record := models.SellerRecord{}.WithProvenance(models.UnknownSeller, "")
		return models.NewSellerResult(record, product), nil
	}
	if err != nil {
		return models.SellerResult{}, err
	}

	name := link.Name
	if name == "" {
		name = models.UnknownSeller
	}

	sellerPage, err := s.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		if ctx.Err() != nil {
			return models.SellerResult{}, ctx.Err()
		}
		s.logger.Warn("seller page failed, keeping seller link only", "seller_url", link.URL, "error", err)
		record := models.SellerRecord{}.WithProvenance(name, link.URL)
		return models.NewSellerResult(record, product), nil
	}

	record := s.engine.ExtractHTML(sellerPage.HTML()).WithProvenance(name, link.URL)
	s.logger.Info("seller extracted",
		"seller", name,
		"asin", product.ASIN,
		"fields", record.FoundCount())

	return models.NewSellerResult(record, product), nil
}

// ScrapeAll resolves sellers for products with a pool of workers fed by a
// priority queue. Failures are logged and skipped. Results keep the input
// order.
func (s *SellerScraper) ScrapeAll(ctx context.Context, products []*models.Product) ([]models.SellerResult, int, error) {
	q := queue.NewInMemoryQueue()
	order := make(map[*models.Product]int, len(products))

	for i, p := range products {
		if s.progress != nil && s.progress.IsDone(linkKey(p)) {
			continue
		}
		order[p] = i
		if err := q.Push(queue.NewTask(p, 0)); err != nil {
			return nil, 0, err
		}
	}
	q.Close()

	var mu sync.Mutex
	var failed int
	slots := make([]*models.SellerResult, len(products))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				task, err := q.Pop(gctx)
				if errors.Is(err, queue.ErrQueueClosed) {
					return nil
				}
				if err != nil {
					return err
				}

				result, err := s.scrapeTask(gctx, task)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				mu.Lock()
				slots[order[task.Product]] = &result
				mu.Unlock()
			}
		})
	}

	err := g.Wait()

	results := make([]models.SellerResult, 0, len(products))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, failed, err
}

func (s *SellerScraper) scrapeTask(ctx context.Context, task *queue.Task) (models.SellerResult, error) {
	product := task.Product
	key := linkKey(product)

	if s.progress != nil {
		if _, err := s.progress.Add(storage.LinkFromProduct(product)); err != nil {
			s.logger.Warn("failed to record product link", "key", key, "error", err)
		}
		if err := s.progress.UpdateStatus(key, storage.StatusProcessing, ""); err != nil {
			s.logger.Warn("failed to update progress status", "key", key, "status", storage.StatusProcessing, "error", err)
		}
	}

	result, err := s.ScrapeSeller(ctx, product)
	if err != nil {
		s.logger.Warn("failed to extract seller", "asin", product.ASIN, "url", product.URL, "error", err)
		if s.progress != nil && ctx.Err() == nil {
			if uerr := s.progress.UpdateStatus(key, storage.StatusFailed, err.Error()); uerr != nil {
				s.logger.Warn("failed to update progress status", "key", key, "status", storage.StatusFailed, "error", uerr)
			}
		}
		return result, err
	}

	if s.progress != nil {
		if err := s.progress.Complete(key, result.Seller.SellerName, result.Seller.SellerURL); err != nil {
			s.logger.Warn("failed to record progress", "key", key, "error", err)
		}
	}

	if s.sink != nil {
		if err := s.sink.SaveSeller(ctx, result); err != nil {
			s.logger.Error("failed to save seller", "seller", result.Seller.SellerName, "error", err)
		}
	}

	return result, nil
}

func linkKey(p *models.Product) string {
	return (&storage.ProductLink{ASIN: p.ASIN, URL: p.URL}).Key()
}
