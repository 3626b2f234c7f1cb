package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/config"
	"github.com/maltedev/seller-scraper/internal/extractor"
	"github.com/maltedev/seller-scraper/internal/ratelimit"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewHTTPPipeline(t *testing.T) {
	cfg := loadConfig(t)

	p, err := New(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Session)
	assert.Equal(t, "https://www.amazon.co.jp", p.Parser.BaseURL())
	assert.Equal(t, extractor.Ultimate().StrategyNames(), p.Engine.StrategyNames())
	assert.NotNil(t, p.Crawler(CrawlOptions{MaxPages: 2}))
}

func TestNewPipelineBaselineEngine(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Scraper.DeepAnalysis = false

	p, err := New(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, extractor.Baseline().StrategyNames(), p.Engine.StrategyNames())
}

func TestNewPipelineRejectsBadProxy(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Scraper.ProxyURL = "://bad"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestScrapeOptions(t *testing.T) {
	sc := loadConfig(t).Scraper
	sc.MaxPages = 7
	sc.Workers = 3
	sc.SortVariants = nil

	opts := ScrapeOptions(sc)
	assert.Equal(t, 7, opts.MaxPages)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 5, opts.MaxConsecutiveEmpty)
	assert.Len(t, opts.SortVariants, 5)
}

func TestSessionAndBrowserOptions(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Scraper.UserAgents = []string{"ua-1", "ua-2"}
	cfg.Scraper.SessionCooldown = time.Minute

	so := sessionOptions(cfg.Scraper)
	assert.Equal(t, []string{"ua-1", "ua-2"}, so.UserAgents)
	assert.Equal(t, time.Minute, so.Cooldown)
	assert.Equal(t, cfg.Scraper.WarmupPaths, so.WarmupPaths)

	bo := browserOptions(cfg)
	assert.Equal(t, "ua-1", bo.UserAgent)
	assert.Equal(t, "Asia/Tokyo", bo.TimezoneID)
}

func TestLimiterChainsAdaptiveDelays(t *testing.T) {
	limiter := Limiter(loadConfig(t).Scraper)

	chain, ok := limiter.(ratelimit.Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)

	adaptive, ok := chain[1].(*ratelimit.AdaptiveRateLimiter)
	require.True(t, ok)
	min, max := adaptive.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 8*time.Second, max)
}
