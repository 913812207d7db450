package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/service"
)

type AdminHandler struct {
	statsService *service.StatsService
}

func NewAdminHandler(statsService *service.StatsService) *AdminHandler {
	return &AdminHandler{statsService: statsService}
}

// Routes expects the caller to wrap it in admin authentication.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.Stats)
	r.Get("/audit", h.Audit)

	return r
}

// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statsService.Snapshot())
}

// GET /admin/audit?limit=N
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !h.statsService.AuditEnabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "Audit store not configured",
		})
		return
	}

	events, err := h.statsService.RecentAuditEvents(r.Context(), ParseLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to list audit events")
		writeError(w, apperrors.Internal("Failed to list audit events").WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"total": len(events),
	})
}
