package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

const defaultMaxBodyBytes = 8 * 1024 * 1024

var (
	ErrBlocked            = errors.New("request blocked by bot protection")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrSessionInit        = errors.New("session initialization failed")
	ErrUnexpectedStatus   = errors.New("unexpected status")
	ErrBodyTooLarge       = errors.New("response body too large")
)

// Request is a single page load.
type Request struct {
	URL       string
	UserAgent string
	Referer   string
}

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Header     http.Header
	FetchedAt  time.Time
	Latency    time.Duration
	Rendered   bool
}

func (p *Page) HTML() string {
	return string(p.Body)
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// Backend is a fetcher whose client state (cookies, browser context) can be
// discarded and recreated under a new user agent.
type Backend interface {
	Fetcher
	Reset(userAgent string) error
}

type Options struct {
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// DefaultHeaders are sent with every HTTP request unless overridden.
func DefaultHeaders(acceptLanguage string) map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           acceptLanguage,
		"Accept-Encoding":           "gzip, deflate, br",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
		"DNT":                       "1",
	}
}

type HTTPFetcher struct {
	client       *http.Client
	headers      map[string]string
	maxBodyBytes int64

	mu sync.Mutex
}

func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		headers:      headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range f.headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
		httpReq.Header.Set("Sec-Fetch-Site", "same-origin")
	}

	f.mu.Lock()
	client := f.client
	f.mu.Unlock()

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:        req.URL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header.Clone(),
		FetchedAt:  time.Now(),
		Latency:    time.Since(start),
	}, nil
}

// Reset drops all cookies. The user agent is per request.
func (f *HTTPFetcher) Reset(string) error {
	jar, err := newJar()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	client := *f.client
	client.Jar = jar
	f.client = &client
	return nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// Composite loads pages through a renderer and falls back to plain HTTP when
// the renderer fails for a reason other than bot protection.
type Composite struct {
	renderer Backend
	http     Backend
	logger   *slog.Logger
}

func NewComposite(renderer, httpFetcher Backend, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		renderer: renderer,
		http:     httpFetcher,
		logger:   logger.With("component", "composite_fetcher"),
	}
}

func (c *Composite) Fetch(ctx context.Context, req Request) (*Page, error) {
	page, err := c.renderer.Fetch(ctx, req)
	if err == nil || errors.Is(err, ErrBlocked) || ctx.Err() != nil {
		return page, err
	}

	c.logger.Warn("renderer failed, falling back to HTTP fetch", "url", req.URL, "error", err)
	return c.http.Fetch(ctx, req)
}

func (c *Composite) Reset(userAgent string) error {
	return errors.Join(c.renderer.Reset(userAgent), c.http.Reset(userAgent))
}
