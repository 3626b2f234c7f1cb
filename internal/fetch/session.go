package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/seller-scraper/internal/browser"
	"github.com/maltedev/seller-scraper/internal/ratelimit"
)

type SessionOptions struct {
	BaseURL     string
	UserAgents  []string
	RotateEvery int
	MaxRequests int
	Cooldown    time.Duration
	WarmupPaths []string
	WarmupPause time.Duration
	RetryPause  time.Duration
}

func DefaultSessionOptions(baseURL string) SessionOptions {
	return SessionOptions{
		BaseURL:     baseURL,
		RotateEvery: 5,
		MaxRequests: 20,
		Cooldown:    30 * time.Second,
		WarmupPaths: []string{"/gp/bestsellers", "/gp/new-releases"},
		WarmupPause: 2 * time.Second,
		RetryPause:  10 * time.Second,
	}
}

type SessionStats struct {
	Requests    int
	Resets      int
	Unavailable int
	Blocked     int
	UserAgent   string
}

// Session issues requests the way a single browsing user would: it warms up
// on the storefront, rotates the user agent every RotateEvery requests,
// starts over after MaxRequests, and cools down when the site answers 503.
// Requests are serialized.
type Session struct {
	backend Backend
	limiter ratelimit.RateLimiter
	opts    SessionOptions
	logger  *slog.Logger

	mu          sync.Mutex
	initialized bool
	count       int
	uaIndex     int
	stats       SessionStats

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

func NewSession(backend Backend, limiter ratelimit.RateLimiter, opts SessionOptions, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{browser.DefaultOptions().UserAgent}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Session{
		backend: backend,
		limiter: limiter,
		opts:    opts,
		logger:  logger.With("component", "fetch_session"),
		sleep:   sleep,
		jitter:  jitter,
	}
}

// Fetch loads url through the session. A page is returned together with
// ErrBlocked or ErrServiceUnavailable so callers can inspect it.
func (s *Session) Fetch(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		if err := s.initialize(ctx); err != nil {
			return nil, err
		}
	}

	if s.count > 0 && s.opts.RotateEvery > 0 && s.count%s.opts.RotateEvery == 0 {
		s.rotateUserAgent()
	}

	if s.opts.MaxRequests > 0 && s.count >= s.opts.MaxRequests {
		s.logger.Info("session request limit reached, resetting", "requests", s.count)
		if err := s.reset(); err != nil {
			return nil, err
		}
		if err := s.initialize(ctx); err != nil {
			return nil, err
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := Request{URL: url, UserAgent: s.userAgent()}
	if s.count > 0 {
		req.Referer = s.opts.BaseURL
	}

	page, err := s.backend.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if page.StatusCode == http.StatusServiceUnavailable {
		s.logger.Warn("service unavailable, cooling down", "url", url)
		s.stats.Unavailable++
		if err := s.handleUnavailable(ctx); err != nil {
			return nil, err
		}
		if err := s.sleep(ctx, s.jitter(s.opts.RetryPause)); err != nil {
			return nil, err
		}

		req.UserAgent = s.userAgent()
		page, err = s.backend.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	s.count++
	s.stats.Requests++

	return page, s.classify(page)
}

func (s *Session) classify(page *Page) error {
	switch {
	case page.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, page.URL)
	case browser.DetectInterstitial("", page.HTML()) == browser.ErrBotCheck:
		s.stats.Blocked++
		if b, ok := s.limiter.(interface{ RecordBlocked() }); ok {
			b.RecordBlocked()
		}
		return fmt.Errorf("%w: %s", ErrBlocked, page.URL)
	case page.StatusCode >= http.StatusBadRequest:
		if e, ok := s.limiter.(interface{ RecordError() }); ok {
			e.RecordError()
		}
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, page.StatusCode, page.URL)
	}

	if r, ok := s.limiter.(interface{ RecordSuccess() }); ok {
		r.RecordSuccess()
	}
	return nil
}

// initialize visits the storefront and a few browse pages so the session
// carries ordinary cookies before the first real request.
func (s *Session) initialize(ctx context.Context) error {
	home, err := s.backend.Fetch(ctx, Request{URL: s.opts.BaseURL, UserAgent: s.userAgent()})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	if home.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: storefront returned %d", ErrSessionInit, home.StatusCode)
	}

	for _, path := range s.opts.WarmupPaths {
		if err := s.sleep(ctx, s.jitter(s.opts.WarmupPause)); err != nil {
			return err
		}
		req := Request{URL: s.opts.BaseURL + path, UserAgent: s.userAgent(), Referer: s.opts.BaseURL}
		if _, err := s.backend.Fetch(ctx, req); err != nil {
			s.logger.Debug("warmup page failed", "path", path, "error", err)
		}
	}

	if err := s.sleep(ctx, s.jitter(s.opts.WarmupPause)); err != nil {
		return err
	}

	s.initialized = true
	s.count = 0
	s.logger.Info("session initialized", "user_agent", s.userAgent())
	return nil
}

func (s *Session) reset() error {
	if err := s.backend.Reset(s.userAgent()); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	s.initialized = false
	s.count = 0
	s.stats.Resets++
	return nil
}

func (s *Session) handleUnavailable(ctx context.Context) error {
	s.rotateUserAgent()
	if err := s.backend.Reset(s.userAgent()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if b, ok := s.limiter.(interface{ RecordBlocked() }); ok {
		b.RecordBlocked()
	}

	cooldown := s.opts.Cooldown + time.Duration(rand.Int63n(int64(s.opts.Cooldown/2)+1))
	if err := s.sleep(ctx, cooldown); err != nil {
		return err
	}

	s.initialized = false
	return nil
}

func (s *Session) rotateUserAgent() {
	s.uaIndex = (s.uaIndex + 1) % len(s.opts.UserAgents)
	s.logger.Debug("rotated user agent", "user_agent", s.userAgent())
}

func (s *Session) userAgent() string {
	return s.opts.UserAgents[s.uaIndex]
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.UserAgent = s.userAgent()
	return stats
}

// jitter returns a duration in [d, 2d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)))
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
