package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/middleware"
	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type rejectRequest struct {
	Reason          string `json:"reason"`
	DocumentRenewal bool   `json:"document_renewal"`
}

type transitionResponse struct {
	Changed     bool                `json:"changed"`
	Application applicationResponse `json:"application"`
}

// ChangeStatus переводит заявление в новый статус от имени администратора.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	actor := p.UserID
	app, changed, err := h.service.ChangeStatus(r.Context(), number, model.ApplicationStatus(req.Status), &actor, req.Note)
	if err != nil {
		h.writeError(w, err, "change status error",
			zap.String("application", number),
			zap.String("status", req.Status),
		)
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{Changed: changed, Application: newApplicationResponse(*app)})
}

// RejectApplication отклоняет заявление с указанием причины.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	actor := p.UserID
	app, changed, err := h.service.RejectApplication(r.Context(), number, &actor, strings.TrimSpace(req.Reason), req.DocumentRenewal)
	if err != nil {
		h.writeError(w, err, "reject application error", zap.String("application", number))
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{Changed: changed, Application: newApplicationResponse(*app)})
}
