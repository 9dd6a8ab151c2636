package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scan-validator/internal/application/scan"
	"github.com/scan-validator/internal/domain"
	"github.com/scan-validator/internal/pkg/validate"
	"github.com/scan-validator/internal/transport/http/middleware"
)

// maxScanBody caps the scan request body.
const maxScanBody = 4 << 10

// Messages shown to the worker on the scanning device.
const (
	msgInvalidToken   = "Invalid or expired QR code. Please scan a fresh code."
	msgDeviceConflict = "Unauthorized device. Your account is bound to a different device."
)

// scanBody accepts the legacy "token" field as an alias of "code".
type scanBody struct {
	Code     string `json:"code"`
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

// ScanHandler handles scan validation and attendance read-back.
type ScanHandler struct {
	svc scan.Service
}

func NewScanHandler(svc scan.Service) *ScanHandler { return &ScanHandler{svc: svc} }

func (h *ScanHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var identity *domain.Identity
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		identity = claims.Identity()
	}
	if identity == nil {
		writeScanError(w, domain.ErrUnauthenticated)
		return
	}

	var body scanBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ScanEnvelope{ErrorKind: KindInvalidRequest, Message: "invalid request body"})
		return
	}
	req := domain.ScanRequest{Code: body.Code, DeviceID: body.DeviceID}
	if req.Code == "" {
		req.Code = body.Token
	}
	if err := validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ScanEnvelope{ErrorKind: KindInvalidRequest, Message: err.Error()})
		return
	}

	res, err := h.svc.Validate(r.Context(), identity, req)
	if err != nil {
		if scanStatus(err) == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "scan validation failed", "user_id", identity.UserID, "error", err)
		}
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanEnvelope{
		Accepted:       true,
		Kind:           res.Kind,
		RecordedAt:     &res.RecordedAt,
		DisplayMessage: res.DisplayMessage,
	})
}

// LastEvent lets a client whose scan timed out re-read the ledger instead of
// presenting another code.
func (h *ScanHandler) LastEvent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	last, err := h.svc.LastEvent(r.Context(), claims.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "read last attendance event", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, LastEventEnvelope{
		UserID:   claims.UserID,
		LastKind: last,
		NextKind: domain.NextKind(last),
	})
}

func scanStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDeviceConflict):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeScanError(w http.ResponseWriter, err error) {
	env := ScanEnvelope{}
	status := scanStatus(err)
	switch status {
	case http.StatusUnauthorized:
		env.ErrorKind, env.Message = KindUnauthenticated, "authentication required"
	case http.StatusBadRequest:
		env.ErrorKind, env.Message = KindInvalidToken, msgInvalidToken
	case http.StatusForbidden:
		env.ErrorKind, env.Message = KindDeviceConflict, msgDeviceConflict
	default:
		env.ErrorKind, env.Message = KindInternalError, "internal error"
	}
	writeJSON(w, status, env)
}
