package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/usecase"
)

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// AlertHandler serves alert and rule administration.
type AlertHandler struct {
	admin  *usecase.AlertAdminUseCase
	logger *slog.Logger
}

func NewAlertHandler(admin *usecase.AlertAdminUseCase, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{admin: admin, logger: logger}
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AlertFilter{
		Status:   domain.AlertStatus(strings.ToUpper(q.Get("status"))),
		RuleName: q.Get("rule"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	alerts, err := h.admin.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if alerts == nil {
		alerts = []domain.ActiveAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.admin.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	alert, err := h.admin.Acknowledge(r.Context(), urlParam(r, "id"), body.AcknowledgedBy)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alert, err := h.admin.Resolve(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Rules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": h.admin.Rules()})
}

func (h *AlertHandler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *AlertHandler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *AlertHandler) toggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	rule, err := h.admin.SetRuleEnabled(r.Context(), urlParam(r, "name"), enabled)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
