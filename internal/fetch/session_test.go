package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/ratelimit"
)

const base = "https://www.amazon.co.jp"

func newTestSession(backend Backend, limiter ratelimit.RateLimiter, mutate func(*SessionOptions)) *Session {
	opts := DefaultSessionOptions(base + "/")
	opts.UserAgents = []string{"ua-0", "ua-1", "ua-2"}
	opts.WarmupPaths = []string{"/gp/bestsellers"}
	if mutate != nil {
		mutate(&opts)
	}

	s := NewSession(backend, limiter, opts, nil)
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	s.jitter = func(d time.Duration) time.Duration { return d }
	return s
}

func urls(calls []Request) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.URL
	}
	return out
}

func TestSessionWarmsUpOnce(t *testing.T) {
	backend := &stubBackend{}
	s := newTestSession(backend, nil, nil)
	ctx := context.Background()

	_, err := s.Fetch(ctx, base+"/s?k=cable")
	require.NoError(t, err)
	_, err = s.Fetch(ctx, base+"/dp/B0TEST0001")
	require.NoError(t, err)

	assert.Equal(t, []string{
		base,
		base + "/gp/bestsellers",
		base + "/s?k=cable",
		base + "/dp/B0TEST0001",
	}, urls(backend.calls))

	assert.Empty(t, backend.calls[2].Referer)
	assert.Equal(t, base, backend.calls[3].Referer)
}

func TestSessionInitFailure(t *testing.T) {
	backend := &stubBackend{pages: map[string]*Page{
		base: {URL: base, StatusCode: http.StatusForbidden},
	}}
	s := newTestSession(backend, nil, nil)

	_, err := s.Fetch(context.Background(), base+"/s?k=cable")
	assert.ErrorIs(t, err, ErrSessionInit)

	backend = &stubBackend{err: errors.New("dial tcp: refused")}
	s = newTestSession(backend, nil, nil)
	_, err = s.Fetch(context.Background(), base+"/s?k=cable")
	assert.ErrorIs(t, err, ErrSessionInit)
}

func TestSessionRotatesUserAgent(t *testing.T) {
	backend := &stubBackend{}
	s := newTestSession(backend, nil, func(o *SessionOptions) {
		o.RotateEvery = 2
		o.MaxRequests = 0
		o.WarmupPaths = nil
	})

	for i := 0; i < 5; i++ {
		_, err := s.Fetch(context.Background(), base+"/dp/X")
		require.NoError(t, err)
	}

	var agents []string
	for _, c := range backend.calls[1:] {
		agents = append(agents, c.UserAgent)
	}
	assert.Equal(t, []string{"ua-0", "ua-0", "ua-1", "ua-1", "ua-2"}, agents)
}

func TestSessionResetsAfterMaxRequests(t *testing.T) {
	backend := &stubBackend{}
	s := newTestSession(backend, nil, func(o *SessionOptions) {
		o.RotateEvery = 0
		o.MaxRequests = 2
		o.WarmupPaths = nil
	})

	for i := 0; i < 3; i++ {
		_, err := s.Fetch(context.Background(), base+"/dp/X")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{base, base + "/dp/X", base + "/dp/X", base, base + "/dp/X"}, urls(backend.calls))
	assert.Len(t, backend.resets, 1)
	assert.Equal(t, 1, s.Stats().Resets)
}

type flakyBackend struct {
	stubBackend
	unavailable int
}

func (b *flakyBackend) Fetch(ctx context.Context, req Request) (*Page, error) {
	if req.URL != base && b.unavailable > 0 {
		b.unavailable--
		b.calls = append(b.calls, req)
		return &Page{URL: req.URL, StatusCode: http.StatusServiceUnavailable}, nil
	}
	return b.stubBackend.Fetch(ctx, req)
}

func TestSessionRecoversFromServiceUnavailable(t *testing.T) {
	backend := &flakyBackend{unavailable: 1}
	limiter := ratelimit.NewAdaptiveRateLimiter(time.Millisecond, 2*time.Millisecond)
	s := newTestSession(backend, limiter, func(o *SessionOptions) { o.WarmupPaths = nil })

	page, err := s.Fetch(context.Background(), base+"/sp?seller=A1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)

	assert.Equal(t, []string{"ua-1"}, backend.resets)
	last := backend.calls[len(backend.calls)-1]
	assert.Equal(t, "ua-1", last.UserAgent)

	min, _ := limiter.Delays()
	assert.Greater(t, min, time.Millisecond)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Unavailable)

	_, err = s.Fetch(context.Background(), base+"/dp/B0TEST0001")
	require.NoError(t, err)
	assert.Equal(t, base, backend.calls[len(backend.calls)-2].URL, "session re-initializes after a 503")
}

func TestSessionReportsPersistentServiceUnavailable(t *testing.T) {
	backend := &flakyBackend{unavailable: 2}
	s := newTestSession(backend, nil, func(o *SessionOptions) { o.WarmupPaths = nil })

	page, err := s.Fetch(context.Background(), base+"/sp?seller=A1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	require.NotNil(t, page)
	assert.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
}

func TestSessionDetectsBotCheck(t *testing.T) {
	backend := &stubBackend{pages: map[string]*Page{
		base + "/dp/X": {
			URL:        base + "/dp/X",
			StatusCode: http.StatusOK,
			Body:       []byte(`<form action="/errors/validateCaptcha"></form>`),
		},
		base + "/dp/Y": {URL: base + "/dp/Y", StatusCode: http.StatusNotFound},
	}}
	s := newTestSession(backend, nil, func(o *SessionOptions) { o.WarmupPaths = nil })

	_, err := s.Fetch(context.Background(), base+"/dp/X")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 1, s.Stats().Blocked)

	_, err = s.Fetch(context.Background(), base+"/dp/Y")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestSessionHonoursContext(t *testing.T) {
	backend := &stubBackend{}
	s := newTestSession(backend, ratelimit.NewSimpleRateLimiter(time.Hour, time.Hour), func(o *SessionOptions) {
		o.WarmupPaths = nil
	})

	_, err := s.Fetch(context.Background(), base+"/dp/X")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Fetch(ctx, base+"/dp/Y")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
