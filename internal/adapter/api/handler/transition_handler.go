package handler

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/usecase"
)

// TransitionHandler receives entity state changes from the patient service.
type TransitionHandler struct {
	urgent *usecase.UrgentAlertUseCase
	logger *slog.Logger
}

func NewTransitionHandler(urgent *usecase.UrgentAlertUseCase, logger *slog.Logger) *TransitionHandler {
	return &TransitionHandler{urgent: urgent, logger: logger}
}

func (h *TransitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var tr domain.Transition
	if !decodeJSON(w, r, &tr) {
		return
	}
	alert, err := h.urgent.ReportTransition(r.Context(), tr)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	resp := map[string]any{"urgent": alert != nil}
	if alert != nil {
		resp["alert"] = alert
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// UrgentHandler serves the pending urgent-alert queue.
type UrgentHandler struct {
	urgent *usecase.UrgentAlertUseCase
	logger *slog.Logger
}

func NewUrgentHandler(urgent *usecase.UrgentAlertUseCase, logger *slog.Logger) *UrgentHandler {
	return &UrgentHandler{urgent: urgent, logger: logger}
}

func (h *UrgentHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ids, err := h.urgent.Pending(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *UrgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.urgent.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *UrgentHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	if err := h.urgent.MarkProcessed(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
