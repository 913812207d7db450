package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/httputil"
	"github.com/openclaw/rendezvous-server-go/internal/service"
)

type SetupHandler struct {
	pairingService *service.PairingService
}

func NewSetupHandler(pairingService *service.PairingService) *SetupHandler {
	return &SetupHandler{pairingService: pairingService}
}

func (h *SetupHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/new", h.NewPairing)
	r.Post("/pair", h.Pair)
	r.Get("/qr", h.QRCode)

	return r
}

// POST /setup/new
// Issued by the PC; the returned code is shown to the user.
func (h *SetupHandler) NewPairing(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ticket, err := h.pairingService.IssueCode(r.Context(), fields.PCID, fields.PCName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairing_code": ticket.Code,
	})
}

// POST /setup/pair
// Issued by the smartphone after the user typed or scanned the code.
func (h *SetupHandler) Pair(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeRejected(w, err)
		return
	}

	result, err := h.pairingService.Claim(r.Context(), fields.SmartphoneID, fields.PairingCode)
	if err != nil {
		writeRejected(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": true,
		"pc_name":  result.PCName,
	})
}

// GET /setup/qr
func (h *SetupHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := h.pairingService.QRCode(r.Context(), fields.PCID, fields.PairingCode)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// writeRejected reports a failed claim. Phones branch on "accepted", so it
// is present on every outcome.
func writeRejected(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	writeJSON(w, httputil.StatusFromCode(appErr.Code), map[string]any{
		"accepted": false,
		"error":    appErr.Message,
		"code":     appErr.Code,
	})
}
