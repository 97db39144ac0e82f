package quota

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
)

// Handler handles quota HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates new quota handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Status returns today's quota snapshot
// GET /api/v1/quota/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"quota": h.service.GetStatus(r.Context()),
	})
}

// Reset zeroes today's counters. Guarded by the cron secret in routing.
// POST /api/v1/quota/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetQuota(r.Context()); err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{
		"quota": h.service.GetStatus(r.Context()),
	})
}

// Routes returns quota routes
func (h *Handler) Routes(cronAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.With(cronAuth).Post("/reset", h.Reset)
	return r
}
