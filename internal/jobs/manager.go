package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/seller-scraper/internal/models"
	"github.com/maltedev/seller-scraper/internal/scraper"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	defaultQueueSize = 32
	defaultRetention = 100
	listLimit        = 100
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrQueueFull    = errors.New("job queue is full")
	ErrJobFinished  = errors.New("job already finished")
	ErrInvalidPages = errors.New("max pages must not be negative")
)

// Request describes one search crawl.
type Request struct {
	Keyword  string `json:"keyword"`
	MaxPages int    `json:"max_pages"`
}

// Runner performs the crawl for a job, reporting progress as it goes.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error)
}

type RunnerFunc func(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error)

func (f RunnerFunc) Run(ctx context.Context, req Request, progress func(scraper.Progress)) (*scraper.Result, error) {
	return f(ctx, req, progress)
}

type Job struct {
	ID                 string     `json:"id"`
	Keyword            string     `json:"keyword"`
	MaxPages           int        `json:"max_pages"`
	Status             string     `json:"status"`
	PagesScraped       int        `json:"pages_scraped"`
	ProductsFound      int        `json:"products_found"`
	SellersFound       int        `json:"sellers_found"`
	SellersWithContact int        `json:"sellers_with_contact"`
	SellersFailed      int        `json:"sellers_failed"`
	StopReason         string     `json:"stop_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	Error              string     `json:"error,omitempty"`
}

func (j *Job) finished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalSellers  int     `json:"total_sellers"`
	WithContact   int     `json:"sellers_with_contact"`
	SuccessRate   float64 `json:"success_rate"`
}

type entry struct {
	job     Job
	sellers []models.SellerResult
	cancel  context.CancelFunc
}

// Manager queues crawl jobs and runs them one at a time on StartWorker. Jobs
// live in memory; the oldest finished ones are dropped past the retention limit.
type Manager struct {
	runner    Runner
	logger    *slog.Logger
	retention int

	mu      sync.RWMutex
	jobs    map[string]*entry
	pending chan string
}

type Options struct {
	QueueSize int
	Retention int
}

func NewManager(runner Runner, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &Manager{
		runner:    runner,
		logger:    logger.With("component", "job_manager"),
		retention: opts.Retention,
		jobs:      make(map[string]*entry),
		pending:   make(chan string, opts.QueueSize),
	}
}

func (m *Manager) CreateJob(ctx context.Context, req Request) (*Job, error) {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		return nil, scraper.ErrEmptyKeyword
	}
	if req.MaxPages < 0 {
		return nil, ErrInvalidPages
	}

	e := &entry{job: Job{
		ID:        uuid.New().String(),
		Keyword:   req.Keyword,
		MaxPages:  req.MaxPages,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}}

	m.mu.Lock()
	select {
	case m.pending <- e.job.ID:
		m.jobs[e.job.ID] = e
		m.evictLocked()
	default:
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
	job := e.job
	m.mu.Unlock()

	m.logger.Info("job created", "id", job.ID, "keyword", job.Keyword, "max_pages", job.MaxPages)
	return &job, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job := e.job
	return &job, nil
}

// ListJobs returns the most recent jobs first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		job := e.job
		jobs = append(jobs, &job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > listLimit {
		jobs = jobs[:listLimit]
	}
	return jobs, nil
}

// JobSellers returns the sellers a job has resolved so far.
func (m *Manager) JobSellers(ctx context.Context, jobID string) ([]models.SellerResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	out := make([]models.SellerResult, len(e.sellers))
	copy(out, e.sellers)
	return out, nil
}

// CancelJob stops a running job or prevents a pending one from starting.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if e.job.finished() {
		return ErrJobFinished
	}

	if e.cancel != nil {
		e.cancel()
		return nil
	}
	now := time.Now()
	e.job.Status = StatusCancelled
	e.job.CompletedAt = &now
	return nil
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs)}
	for _, e := range m.jobs {
		switch e.job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalSellers += e.job.SellersFound
		stats.WithContact += e.job.SellersWithContact
	}
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	return stats, nil
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
func (m *Manager) evictLocked() {
	excess := len(m.jobs) - m.retention
	if excess <= 0 {
		return
	}

	finished := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		if e.job.finished() {
			finished = append(finished, e)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].job.CreatedAt.Before(finished[j].job.CreatedAt)
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].job.ID)
	}
}
