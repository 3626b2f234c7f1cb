package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/maltedev/seller-scraper/internal/browser"
	"github.com/maltedev/seller-scraper/internal/config"
	"github.com/maltedev/seller-scraper/internal/extractor"
	"github.com/maltedev/seller-scraper/internal/fetch"
	"github.com/maltedev/seller-scraper/internal/parser"
	"github.com/maltedev/seller-scraper/internal/ratelimit"
	"github.com/maltedev/seller-scraper/internal/scraper"
	"github.com/maltedev/seller-scraper/internal/storage"
)

// Pipeline holds the long-lived pieces of a crawl: one fetch session shared by
// every crawl, the marketplace parser and the extraction engine.
type Pipeline struct {
	cfg     config.ScraperConfig
	Session *fetch.Session
	Parser  *parser.AmazonParser
	Engine  *extractor.Engine
	logger  *slog.Logger

	browser *browser.Browser
}

// CrawlOptions customize a single crawl on top of the configuration.
type CrawlOptions struct {
	// MaxPages overrides the configured page limit when positive.
	MaxPages   int
	Saver      scraper.Saver
	Sink       scraper.SellerSink
	Progress   *storage.LinkStorage
	OnProgress func(scraper.Progress)
}

func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc := cfg.Scraper

	p, err := parser.NewAmazonParser(sc.BaseURL)
	if err != nil {
		return nil, err
	}

	engine := extractor.Baseline()
	if sc.DeepAnalysis {
		engine = extractor.Ultimate()
	}

	httpFetcher, err := fetch.NewHTTPFetcher(fetch.Options{
		Headers:  fetch.DefaultHeaders(sc.AcceptLanguage),
		Timeout:  sc.RequestTimeout,
		ProxyURL: sc.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create http fetcher: %w", err)
	}

	pl := &Pipeline{
		cfg:    sc,
		Parser: p,
		Engine: engine,
		logger: logger,
	}

	var backend fetch.Backend = httpFetcher
	if sc.FetchMode == config.FetchModeBrowser {
		b, err := browser.New(browserOptions(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		pl.browser = b
		renderer := fetch.NewBrowserFetcher(b, sc.UserAgents[0], sc.MaxRetries, logger)
		backend = fetch.NewComposite(renderer, httpFetcher, logger)
	}

	pl.Session = fetch.NewSession(backend, Limiter(sc), sessionOptions(sc), logger)

	logger.Info("pipeline ready",
		"fetch_mode", sc.FetchMode,
		"strategies", engine.StrategyNames(),
		"base_url", p.BaseURL())

	return pl, nil
}

// Crawler builds a search crawler over the shared session.
func (p *Pipeline) Crawler(opts CrawlOptions) *scraper.SearchCrawler {
	scrapeOpts := ScrapeOptions(p.cfg)
	if opts.MaxPages > 0 {
		scrapeOpts.MaxPages = opts.MaxPages
	}

	search := scraper.NewSearchScraper(p.Session, p.Parser, scrapeOpts.SortVariants, p.logger)
	sellers := scraper.NewSellerScraper(p.Session, p.Parser, p.Engine, scrapeOpts.Workers, p.logger)
	if opts.Progress != nil {
		sellers.WithProgress(opts.Progress)
	}
	if opts.Sink != nil {
		sellers.WithSink(opts.Sink)
	}

	crawler := scraper.NewSearchCrawler(search, sellers, scrapeOpts, p.logger)
	if opts.Saver != nil {
		crawler.WithSaver(opts.Saver)
	}
	if opts.OnProgress != nil {
		crawler.OnProgress(opts.OnProgress)
	}
	return crawler
}

func (p *Pipeline) Close() error {
	if p.browser == nil {
		return nil
	}
	return p.browser.Close()
}

// Limiter paces requests with jittered delays that adapt to blocking, capped
// by a token bucket at RequestsPerSec.
func Limiter(sc config.ScraperConfig) ratelimit.RateLimiter {
	return ratelimit.Chain{
		ratelimit.NewTokenBucketRateLimiter(sc.RequestsPerSec, 1),
		ratelimit.NewAdaptiveRateLimiter(sc.RequestDelayMin, sc.RequestDelayMax),
	}
}

func ScrapeOptions(sc config.ScraperConfig) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.MaxPages = sc.MaxPages
	opts.MaxConsecutiveEmpty = sc.MaxConsecutiveEmpty
	opts.Workers = sc.Workers
	opts.AutoSaveEvery = sc.AutoSaveEvery
	if len(sc.SortVariants) > 0 {
		opts.SortVariants = sc.SortVariants
	}
	return opts
}

func sessionOptions(sc config.ScraperConfig) fetch.SessionOptions {
	opts := fetch.DefaultSessionOptions(sc.BaseURL)
	opts.UserAgents = sc.UserAgents
	opts.RotateEvery = sc.UserAgentRotateEvery
	opts.MaxRequests = sc.MaxRequestsPerSession
	opts.Cooldown = sc.SessionCooldown
	opts.WarmupPaths = sc.WarmupPaths
	return opts
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.AcceptLanguage = cfg.Scraper.AcceptLanguage
	opts.ProxyServer = cfg.Scraper.ProxyURL
	if len(cfg.Scraper.UserAgents) > 0 {
		opts.UserAgent = cfg.Scraper.UserAgents[0]
	}
	return opts
}
