package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/service"
)

type TwoFAHandler struct {
	challengeService *service.ChallengeService
}

func NewTwoFAHandler(challengeService *service.ChallengeService) *TwoFAHandler {
	return &TwoFAHandler{challengeService: challengeService}
}

// Routes excludes /await, which is mounted separately so it is not cut short
// by the server request timeout.
func (h *TwoFAHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/push", h.Push)
	r.Get("/pull", h.Pull)
	r.Post("/pull", h.Pull)
	r.Post("/verify", h.Verify)

	return r
}

// POST /2fa/push
func (h *TwoFAHandler) Push(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	challenge, err := h.challengeService.Push(r.Context(), fields.PCID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"comparison_code": challenge.ComparisonCode,
	})
}

// GET /2fa/pull
// Polled by the smartphone. Does not consume the challenge.
func (h *TwoFAHandler) Pull(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	challenge, err := h.challengeService.Pull(r.Context(), fields.SmartphoneID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"comparison_code": challenge.ComparisonCode,
	})
}

// POST /2fa/verify
// A mismatched code is reported as verified=false with 200.
func (h *TwoFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	challenge, err := h.challengeService.Verify(r.Context(), fields.SmartphoneID, fields.ComparisonCode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verified": challenge.Verdict.Approved(),
	})
}

// POST /2fa/await
// Blocks until the smartphone answers, the timeout elapses or the client
// goes away.
func (h *TwoFAHandler) Await(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}

	timeout, err := fields.awaitTimeout()
	if err != nil {
		writeError(w, err)
		return
	}

	verified, err := h.challengeService.Await(r.Context(), fields.PCID, timeout)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Nobody is left to read a response.
		log.Debug().Str("pcId", fields.PCID).Msg("await abandoned by client")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verified": verified,
	})
}
