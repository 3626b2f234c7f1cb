package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/seller-scraper/internal/database"
	"github.com/maltedev/seller-scraper/internal/extractor"
	"github.com/maltedev/seller-scraper/internal/jobs"
	"github.com/maltedev/seller-scraper/internal/models"
	"github.com/maltedev/seller-scraper/internal/scraper"
)

const (
	maxExtractBody  = 10 << 20
	defaultMaxPages = 10
	maxSellersPage  = 500
)

// JobService is implemented by *jobs.Manager.
type JobService interface {
	CreateJob(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	JobSellers(ctx context.Context, jobID string) ([]models.SellerResult, error)
	CancelJob(ctx context.Context, jobID string) error
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

type Extractor interface {
	Extract(in extractor.Input) extractor.Result
}

// SellerStore is implemented by *database.SellerRepository.
type SellerStore interface {
	ListSellers(ctx context.Context, limit, offset int) ([]database.StoredSeller, error)
}

// OutboxStats is implemented by *database.Relay.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// Deps are the services behind the handlers. Sellers and Outbox are nil when
// the service runs without a database.
type Deps struct {
	Jobs      JobService
	Extractor Extractor
	Sellers   SellerStore
	Outbox    OutboxStats
}

type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

type ExtractRequest struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

type ExtractResponse struct {
	Seller  models.SellerRecord `json:"seller"`
	Sources map[string]string   `json:"sources"`
	Found   int                 `json:"found"`
}

// Extract accepts either a JSON ExtractRequest or a raw HTML body.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExtractBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req ExtractRequest
	if isJSON(r.Header.Get("Content-Type")) {
		if err := json.Unmarshal(body, &req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.HTML = string(body)
	}

	if strings.TrimSpace(req.HTML) == "" && strings.TrimSpace(req.Text) == "" {
		h.respondError(w, http.StatusBadRequest, "html or text is required")
		return
	}

	result := h.deps.Extractor.Extract(extractor.Input{HTML: req.HTML, Text: req.Text})

	sources := make(map[string]string, len(result.Sources))
	for field, strategy := range result.Sources {
		sources[field.String()] = strategy
	}

	h.respondJSON(w, http.StatusOK, ExtractResponse{
		Seller:  result.Record,
		Sources: sources,
		Found:   result.Record.FoundCount(),
	})
}

type CreateJobRequest struct {
	Keyword  string `json:"keyword"`
	MaxPages int    `json:"max_pages"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MaxPages == 0 {
		req.MaxPages = defaultMaxPages
	}

	job, err := h.deps.Jobs.CreateJob(r.Context(), jobs.Request{Keyword: req.Keyword, MaxPages: req.MaxPages})
	switch {
	case errors.Is(err, scraper.ErrEmptyKeyword):
		h.respondError(w, http.StatusBadRequest, "keyword is required")
		return
	case errors.Is(err, jobs.ErrInvalidPages):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrQueueFull):
		h.respondError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	h.respondJSON(w, http.StatusOK, list)
}

// GetJobSellers lists a job's sellers; ?contact=true keeps only those with
// at least one contact field.
func (h *Handlers) GetJobSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.deps.Jobs.JobSellers(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	if contact, _ := strconv.ParseBool(r.URL.Query().Get("contact")); contact {
		filtered := sellers[:0]
		for _, s := range sellers {
			if !s.Seller.IsEmpty() {
				filtered = append(filtered, s)
			}
		}
		sellers = filtered
	}
	if sellers == nil {
		sellers = []models.SellerResult{}
	}

	h.respondJSON(w, http.StatusOK, sellers)
}

func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Jobs.CancelJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// ListSellers pages through persisted sellers with ?limit= and ?offset=.
func (h *Handlers) ListSellers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sellers == nil {
		h.respondError(w, http.StatusNotImplemented, "seller storage is not enabled")
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > maxSellersPage {
		limit = maxSellersPage
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sellers, err := h.deps.Sellers.ListSellers(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list sellers", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list sellers")
		return
	}
	if sellers == nil {
		sellers = []database.StoredSeller{}
	}
	h.respondJSON(w, http.StatusOK, sellers)
}

// Health reports the outbox backlog when a database is configured.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.deps.Outbox != nil {
		pending, pendingErr := h.deps.Outbox.PendingCount(r.Context())
		dead, deadErr := h.deps.Outbox.DeadLetterCount(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": dead,
		}

		switch {
		case pendingErr != nil || deadErr != nil:
			health["status"] = "error"
			health["message"] = "outbox is unreachable"
			status = http.StatusServiceUnavailable
		case dead > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case pending > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobFinished):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("job request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
