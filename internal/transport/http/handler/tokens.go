package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/scan-validator/internal/application/token"
	"github.com/scan-validator/internal/domain"
	"github.com/scan-validator/internal/pkg/validate"
)

// maxTokenBody caps the issue request body.
const maxTokenBody = 1 << 10

// TokenHandler mints scan codes for issuer displays.
type TokenHandler struct {
	svc token.Service
}

func NewTokenHandler(svc token.Service) *TokenHandler { return &TokenHandler{svc: svc} }

func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var ttl time.Duration
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}
	t, err := h.svc.Issue(r.Context(), ttl)
	if err != nil {
		slog.ErrorContext(r.Context(), "issue scan code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
