package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/V4T54L/carepulse/internal/usecase"
)

// JobHandler exposes the queue to external workers.
type JobHandler struct {
	queue  *usecase.JobQueueUseCase
	logger *slog.Logger
}

func NewJobHandler(queue *usecase.JobQueueUseCase, logger *slog.Logger) *JobHandler {
	return &JobHandler{queue: queue, logger: logger}
}

func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobType     string         `json:"job_type"`
		Payload     map[string]any `json:"payload"`
		Priority    int            `json:"priority"`
		ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id, err := h.queue.Enqueue(r.Context(), body.JobType, body.Payload, body.Priority, body.ScheduledAt)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *JobHandler) Poll(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	jobs, err := h.queue.Poll(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Complete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Error string `json:"error"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Error == "" {
		body.Error = "failed without message"
	}
	job, err := h.queue.Fail(r.Context(), urlParam(r, "id"), errors.New(body.Error))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Retry(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
