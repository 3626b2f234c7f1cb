package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/models"
	"github.com/maltedev/seller-scraper/internal/scraper"
)

func crawlResult(keyword string) *scraper.Result {
	p1 := models.NewProduct("B0TEST0001", "https://www.amazon.co.jp/dp/B0TEST0001", "商品1")
	p2 := models.NewProduct("B0TEST0002", "https://www.amazon.co.jp/dp/B0TEST0002", "商品2")
	return &scraper.Result{
		Keyword:  keyword,
		Products: []*models.Product{p1, p2},
		Sellers: []models.SellerResult{
			models.NewSellerResult(models.SellerRecord{SellerName: "ACME", Phone: "03-1234-5678"}, p1),
			models.NewSellerResult(models.SellerRecord{SellerName: models.UnknownSeller}, p2),
		},
		Pages:   3,
		Stopped: scraper.StopLastPage,
	}
}

func waitForStatus(t *testing.T, m *Manager, id, status string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.GetJob(context.Background(), id)
		return err == nil && job.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func startWorker(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.StartWorker(ctx)
}

func TestManager_CreateJob(t *testing.T) {
	ctx := context.Background()
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		return nil, nil
	}), Options{QueueSize: 1}, nil)

	t.Run("rejects empty keyword", func(t *testing.T) {
		_, err := m.CreateJob(ctx, Request{Keyword: "  "})
		assert.ErrorIs(t, err, scraper.ErrEmptyKeyword)
	})

	t.Run("rejects negative pages", func(t *testing.T) {
		_, err := m.CreateJob(ctx, Request{Keyword: "マグカップ", MaxPages: -1})
		assert.ErrorIs(t, err, ErrInvalidPages)
	})

	t.Run("queues job", func(t *testing.T) {
		job, err := m.CreateJob(ctx, Request{Keyword: " マグカップ ", MaxPages: 2})
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "マグカップ", job.Keyword)
		assert.Equal(t, StatusPending, job.Status)
	})

	t.Run("full queue", func(t *testing.T) {
		_, err := m.CreateJob(ctx, Request{Keyword: "タオル"})
		assert.ErrorIs(t, err, ErrQueueFull)
	})
}

func TestManager_RunJob(t *testing.T) {
	ctx := context.Background()

	var got Request
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		got = req
		progress(scraper.Progress{Keyword: req.Keyword, Page: 1, Products: 2, Sellers: 1})
		return crawlResult(req.Keyword), nil
	}), Options{}, nil)
	startWorker(t, m)

	job, err := m.CreateJob(ctx, Request{Keyword: "マグカップ", MaxPages: 3})
	require.NoError(t, err)

	done := waitForStatus(t, m, job.ID, StatusCompleted)
	assert.Equal(t, Request{Keyword: "マグカップ", MaxPages: 3}, got)
	assert.Equal(t, 3, done.PagesScraped)
	assert.Equal(t, 2, done.ProductsFound)
	assert.Equal(t, 2, done.SellersFound)
	assert.Equal(t, 1, done.SellersWithContact)
	assert.Equal(t, scraper.StopLastPage, done.StopReason)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	sellers, err := m.JobSellers(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, sellers, 2)

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 2, stats.TotalSellers)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.001)
}

func TestManager_FailedJob(t *testing.T) {
	ctx := context.Background()
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		return nil, errors.New("session initialization failed")
	}), Options{}, nil)
	startWorker(t, m)

	job, err := m.CreateJob(ctx, Request{Keyword: "マグカップ"})
	require.NoError(t, err)

	failed := waitForStatus(t, m, job.ID, StatusFailed)
	assert.Contains(t, failed.Error, "session initialization failed")
}

func TestManager_CancelRunningJob(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		close(started)
		<-ctx.Done()
		return &scraper.Result{Keyword: req.Keyword, Stopped: scraper.StopCancelled}, ctx.Err()
	}), Options{}, nil)
	startWorker(t, m)

	job, err := m.CreateJob(ctx, Request{Keyword: "マグカップ"})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.CancelJob(ctx, job.ID))

	cancelled := waitForStatus(t, m, job.ID, StatusCancelled)
	assert.Equal(t, scraper.StopCancelled, cancelled.StopReason)
	assert.ErrorIs(t, m.CancelJob(ctx, job.ID), ErrJobFinished)
}

func TestManager_CancelPendingJob(t *testing.T) {
	ctx := context.Background()
	ran := false
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		ran = true
		return nil, nil
	}), Options{}, nil)

	job, err := m.CreateJob(ctx, Request{Keyword: "マグカップ"})
	require.NoError(t, err)
	require.NoError(t, m.CancelJob(ctx, job.ID))

	m.processJob(ctx, job.ID)
	assert.False(t, ran)

	got, err := m.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestManager_UnknownJob(t *testing.T) {
	ctx := context.Background()
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		return nil, nil
	}), Options{}, nil)

	_, err := m.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.JobSellers(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, m.CancelJob(ctx, "missing"), ErrJobNotFound)
}

func TestManager_ListAndRetention(t *testing.T) {
	ctx := context.Background()
	m := NewManager(RunnerFunc(func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		return crawlResult(req.Keyword), nil
	}), Options{Retention: 2}, nil)

	var ids []string
	for _, kw := range []string{"a", "b", "c"} {
		job, err := m.CreateJob(ctx, Request{Keyword: kw})
		require.NoError(t, err)
		ids = append(ids, job.ID)
		m.processJob(ctx, <-m.pending)
		time.Sleep(time.Millisecond)
	}

	jobs, err := m.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].Keyword)
	assert.Equal(t, "b", jobs[1].Keyword)

	_, err = m.GetJob(ctx, ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)
}
