package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/seller-scraper/internal/scraper"
)

// StartWorker runs queued jobs until ctx is done.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case id := <-m.pending:
			m.processJob(ctx, id)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, ok := m.markRunning(jobID, cancel)
	if !ok {
		return
	}

	m.logger.Info("processing job", "id", jobID, "keyword", req.Keyword)

	result, err := m.runner.Run(jobCtx, req, func(p scraper.Progress) {
		m.updateProgress(jobID, p)
	})

	m.finish(jobID, result, err, ctx.Err() == nil && jobCtx.Err() != nil)
}

// markRunning returns false when the job was cancelled or evicted while queued.
func (m *Manager) markRunning(jobID string, cancel context.CancelFunc) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok || e.job.Status != StatusPending {
		return Request{}, false
	}

	now := time.Now()
	e.job.Status = StatusRunning
	e.job.StartedAt = &now
	e.cancel = cancel
	return Request{Keyword: e.job.Keyword, MaxPages: e.job.MaxPages}, true
}

func (m *Manager) updateProgress(jobID string, p scraper.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.jobs[jobID]; ok {
		e.job.PagesScraped = p.Page
		e.job.ProductsFound = p.Products
		e.job.SellersFound = p.Sellers
	}
}

func (m *Manager) finish(jobID string, result *scraper.Result, runErr error, cancelled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return
	}

	now := time.Now()
	e.job.CompletedAt = &now
	e.cancel = nil

	if result != nil {
		e.sellers = result.Sellers
		e.job.PagesScraped = result.Pages
		e.job.ProductsFound = len(result.Products)
		e.job.SellersFound = len(result.Sellers)
		e.job.SellersWithContact = len(result.SellersWithContact())
		e.job.SellersFailed = result.Failed
		e.job.StopReason = result.Stopped
	}

	switch {
	case cancelled:
		e.job.Status = StatusCancelled
		m.logger.Info("job cancelled", "id", jobID)
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		e.job.Status = StatusFailed
		e.job.Error = runErr.Error()
		m.logger.Error("job failed", "id", jobID, "error", runErr)
	case runErr != nil:
		e.job.Status = StatusCancelled
		m.logger.Info("job interrupted", "id", jobID)
	default:
		e.job.Status = StatusCompleted
		m.logger.Info("job completed",
			"id", jobID,
			"products", e.job.ProductsFound,
			"sellers", e.job.SellersFound,
			"with_contact", e.job.SellersWithContact)
	}
}
