package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	ErrBotCheck  = errors.New("bot check page")
	ErrErrorPage = errors.New("marketplace error page")
)

// markers of the interstitial shown instead of the requested page
var botCheckMarkers = []string{
	"/errors/validateCaptcha",
	"Enter the characters you see below",
	"画像に表示されている文字を入力してください",
	"Klicke auf die Schaltfläche unten",
	"Click the button below to continue shopping",
	"ショッピングを続ける",
	"Weiter shoppen",
}

var errorPageMarkers = []string{
	"Tut uns Leid",
	"Sorry! Something went wrong",
	"申し訳ございません。",
}

var continueButtons = []string{
	`button:has-text("ショッピングを続ける")`,
	`button:has-text("Continue shopping")`,
	`button:has-text("Weiter shoppen")`,
	`input[type="submit"][value*="Continue"]`,
	`.a-button-primary`,
	`button.a-button-text`,
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger

	mu      sync.Mutex
	context playwright.BrowserContext
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8,zh-CN;q=0.7,zh;q=0.6",
		TimezoneID:     "Asia/Tokyo",
		Locale:         "ja-JP",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}

	if err := b.ResetContext(opts.UserAgent); err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}

	return b, nil
}

// ResetContext replaces the browser context, dropping cookies and storage,
// and continues with the given user agent.
func (b *Browser) ResetContext(userAgent string) error {
	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &userAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	next, err := b.browser.NewContext(ctxOpts)
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	b.mu.Lock()
	prev := b.context
	b.context = next
	b.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			b.logger.Warn("failed to close previous context", "error", err)
		}
	}

	b.logger.Debug("browser context ready", "user_agent", userAgent)
	return nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	b.mu.Lock()
	bctx := b.context
	b.mu.Unlock()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Close() error {
	var errs []error

	b.mu.Lock()
	bctx := b.context
	b.context = nil
	b.mu.Unlock()

	if bctx != nil {
		if err := bctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// NavigateWithRetry loads url and returns the HTTP status of the final
// response. Bot checks are clicked through when a continue button exists.
func (b *Browser) NavigateWithRetry(ctx context.Context, page playwright.Page, url string, maxRetries int) (int, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := sleep(ctx, time.Duration(i+1)*time.Second); err != nil {
				return 0, err
			}
		}

		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Error("navigation failed", "error", err, "attempt", i+1)
			continue
		}

		status := 0
		if resp != nil {
			status = resp.Status()
		}

		bypassed, err := b.CheckAndBypassBotProtection(ctx, page)
		if err != nil {
			b.logger.Error("failed to check bot protection", "error", err)
			lastErr = err
			continue
		}
		if bypassed {
			b.logger.Info("bot protection bypassed")
		}
		return status, nil
	}

	return 0, fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// CheckAndBypassBotProtection inspects the loaded page and clicks through a
// continue-shopping interstitial. It reports whether a bypass happened.
func (b *Browser) CheckAndBypassBotProtection(ctx context.Context, page playwright.Page) (bool, error) {
	if err := sleep(ctx, time.Second); err != nil {
		return false, err
	}

	title, err := page.Title()
	if err != nil {
		return false, fmt.Errorf("failed to get page title: %w", err)
	}

	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}

	switch DetectInterstitial(title, content) {
	case ErrErrorPage:
		return false, ErrErrorPage
	case nil:
		return false, nil
	}

	b.logger.Info("bot protection detected, attempting bypass")

	for _, selector := range continueButtons {
		button := page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		b.logger.Info("found bot check button", "selector", selector)
		if err := button.Click(); err != nil {
			b.logger.Error("failed to click button", "error", err)
			continue
		}

		if err := sleep(ctx, 3*time.Second); err != nil {
			return false, err
		}

		newTitle, _ := page.Title()
		newContent, _ := page.Content()
		if DetectInterstitial(newTitle, newContent) == nil {
			return true, nil
		}
	}

	return false, ErrBotCheck
}

// DetectInterstitial classifies page content: ErrBotCheck for a captcha or
// continue-shopping wall, ErrErrorPage for a marketplace error, nil otherwise.
func DetectInterstitial(title, content string) error {
	for _, m := range botCheckMarkers {
		if strings.Contains(content, m) {
			return ErrBotCheck
		}
	}
	for _, m := range errorPageMarkers {
		if strings.Contains(title, m) || strings.Contains(content, m) {
			return ErrErrorPage
		}
	}
	return nil
}

// HumanizeInteraction moves the mouse and scrolls a little before reading the page.
func (b *Browser) HumanizeInteraction(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 3; i++ {
		x := float64(100 + i*200)
		y := float64(100 + i*150)
		if err := page.Mouse().Move(x, y); err != nil {
			return fmt.Errorf("failed to move mouse: %w", err)
		}
		if err := sleep(ctx, time.Millisecond*time.Duration(200+i*100)); err != nil {
			return err
		}
	}

	if _, err := page.Evaluate(`window.scrollBy(0, Math.random() * 300)`); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return sleep(ctx, time.Second)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
