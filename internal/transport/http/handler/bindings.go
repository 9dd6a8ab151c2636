package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scan-validator/internal/application/binding"
	"github.com/scan-validator/internal/domain"
)

// BindingHandler exposes administrative device-binding endpoints.
type BindingHandler struct {
	svc binding.Service
}

func NewBindingHandler(svc binding.Service) *BindingHandler { return &BindingHandler{svc: svc} }

func (h *BindingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeBindingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeBindingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "binding reset"})
}

func writeBindingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "binding not found")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "device binding", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
