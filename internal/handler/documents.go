package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/middleware"
	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

type documentRequest struct {
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
}

// PutDocument делает загруженный во внешнее хранилище файл текущим документом категории.
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	docType := model.DocumentType(chi.URLParam(r, "type"))

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	doc, err := h.service.AttachDocument(r.Context(), userID, number, docType, req.Name, req.StorageKey)
	if err != nil {
		h.writeError(w, err, "attach document error",
			zap.String("application", number),
			zap.String("type", string(docType)),
		)
		return
	}

	writeJSON(w, http.StatusOK, newDocumentResponse(*doc))
}

// DeleteDocument выводит из обращения текущий документ категории.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	docType := model.DocumentType(chi.URLParam(r, "type"))

	if err := h.service.RemoveDocument(r.Context(), userID, number, docType); err != nil {
		h.writeError(w, err, "remove document error",
			zap.String("application", number),
			zap.String("type", string(docType)),
		)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
