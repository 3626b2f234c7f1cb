package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/seller-scraper/internal/browser"
)

// BrowserFetcher renders pages in Playwright. A browser context carries a
// single user agent, so a request with a different one recreates it.
type BrowserFetcher struct {
	browser    *browser.Browser
	maxRetries int
	humanize   bool
	logger     *slog.Logger

	mu        sync.Mutex
	userAgent string
}

func NewBrowserFetcher(b *browser.Browser, userAgent string, maxRetries int, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BrowserFetcher{
		browser:    b,
		maxRetries: maxRetries,
		humanize:   true,
		userAgent:  userAgent,
		logger:     logger.With("component", "browser_fetcher"),
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.UserAgent != "" && req.UserAgent != f.userAgent {
		if err := f.reset(req.UserAgent); err != nil {
			return nil, err
		}
	}

	page, err := f.browser.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	start := time.Now()
	status, err := f.browser.NavigateWithRetry(ctx, page, req.URL, f.maxRetries)
	if err != nil {
		if errors.Is(err, browser.ErrBotCheck) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, req.URL)
		}
		return nil, err
	}

	if f.humanize {
		if err := f.browser.HumanizeInteraction(ctx, page); err != nil {
			f.logger.Debug("humanize interaction failed", "error", err)
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}

	return &Page{
		URL:        req.URL,
		FinalURL:   page.URL(),
		StatusCode: status,
		Body:       []byte(content),
		FetchedAt:  time.Now(),
		Latency:    time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *BrowserFetcher) Reset(userAgent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reset(userAgent)
}

func (f *BrowserFetcher) reset(userAgent string) error {
	if err := f.browser.ResetContext(userAgent); err != nil {
		return err
	}
	f.userAgent = userAgent
	return nil
}
