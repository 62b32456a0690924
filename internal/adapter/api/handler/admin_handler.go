package handler

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/carepulse/internal/usecase"
)

// AdminHandler serves the operational endpoints on the admin port.
type AdminHandler struct {
	status *usecase.StatusUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(status *usecase.StatusUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{status: status, logger: logger}
}

// HealthCheck stays 200 while a backend is down, since the core keeps serving
// in fail-open mode; the body says "degraded".
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if !h.status.Healthy(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns backend, queue and subscriber state.
// GET /admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Report(r.Context()))
}
