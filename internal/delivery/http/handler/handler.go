package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/delivery/http/request"
	"github.com/ghazaziz76/data-scraper/internal/delivery/http/response"
	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/export"
	"github.com/ghazaziz76/data-scraper/internal/usecase"
)

const maxRequestBody = 1 << 20

// ProgressStreamer serves a live progress stream for one job.
type ProgressStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, jobID string)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	jobs     usecase.JobService
	progress ProgressStreamer
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

func NewHandler(jobs usecase.JobService, progress ProgressStreamer, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		jobs:     jobs,
		progress: progress,
		checks:   checks,
		logger:   logger,
	}
}

func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), req.ToSpec())
	if err != nil {
		h.writeServiceError(w, "submit job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.SubmitJobResponse{
		Status:  "success",
		Message: "Job accepted for execution",
		JobID:   jobID,
	})
}

func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	status := entity.RunStatus(r.URL.Query().Get("status"))
	switch status {
	case "", entity.StatusQueued, entity.StatusRunning, entity.StatusCompleted, entity.StatusFailed, entity.StatusCancelled:
	default:
		h.writeJSONError(w, fmt.Sprintf("Unknown status filter %q", status), http.StatusBadRequest)
		return
	}

	jobs, err := h.jobs.List(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []entity.JobSummary{}
	}
	h.writeJSON(w, http.StatusOK, response.JobListResponse{Jobs: jobs, Count: len(jobs)})
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "get job", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.writeServiceError(w, "cancel job", err)
		return
	}
	run, err := h.jobs.Status(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, "get job status", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) HandleRerunJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	runID, err := h.jobs.Rerun(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, "rerun job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.RerunJobResponse{
		Status:  "success",
		Message: "Job queued",
		JobID:   jobID,
		RunID:   runID,
	})
}

func (h *Handler) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, "delete job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "get result", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobID := chi.URLParam(r, "id")
	res, err := h.jobs.Result(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, "export result", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, jobID, format.Extension()))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, res.Data); err != nil {
		h.logger.Error("failed to write export", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (h *Handler) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := h.jobs.Status(r.Context(), jobID); err != nil {
		h.writeServiceError(w, "open progress stream", err)
		return
	}
	if h.progress == nil {
		h.writeJSONError(w, "Progress streaming is not enabled", http.StatusNotImplemented)
		return
	}
	h.progress.Serve(w, r, jobID)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			healthStatus[name] = "unhealthy"
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}
	if !healthy {
		healthStatus["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	h.writeJSON(w, http.StatusOK, healthStatus)
}

// writeServiceError maps scheduler errors onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidJobSpec):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, usecase.ErrJobNotFound), errors.Is(err, usecase.ErrResultNotFound):
		h.writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, usecase.ErrJobActive):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrSchedulerStopped):
		h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("failed to "+op, zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
