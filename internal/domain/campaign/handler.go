package campaign

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/account"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/middleware"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
	"github.com/titlepulse/titlepulse-api/internal/pkg/validator"
	"github.com/titlepulse/titlepulse-api/internal/pkg/youtube"
)

// Handler handles campaign HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a new campaign handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /campaigns
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	c, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Created(w, ToResponse(c))
}

// List handles GET /campaigns
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaigns, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, ToResponseList(campaigns))
}

// Get handles GET /campaigns/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid campaign ID")
		return
	}

	c, err := h.service.GetByID(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, ToResponse(c))
}

// Pause handles POST /campaigns/{id}/pause
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

// Resume handles POST /campaigns/{id}/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

// Cancel handles POST /campaigns/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// Delete handles DELETE /campaigns/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid campaign ID")
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}

	response.NoContent(w)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, id uuid.UUID) (*Campaign, error)) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid campaign ID")
		return
	}

	c, err := fn(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, ToResponse(c))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCampaignNotFound):
		response.NotFound(w, "Campaign not found")
	case errors.Is(err, ErrNotCampaignOwner):
		response.Forbidden(w, "You do not own this campaign")
	case errors.Is(err, ErrInvalidStatus):
		response.Conflict(w, "Campaign is not in a valid status for this operation")
	case errors.Is(err, ErrCampaignEnded):
		response.Conflict(w, "Campaign test period has already ended")
	case errors.Is(err, ErrCampaignLimitReached):
		response.Conflict(w, "Active campaign limit reached")
	case errors.Is(err, ErrTitleChangeLimit):
		response.Conflict(w, "Daily title change limit reached")
	case errors.Is(err, ErrDuplicateVariants):
		response.BadRequest(w, "Title variants must be unique")
	case errors.Is(err, account.ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, account.ErrNotConnected):
		response.BadRequest(w, "YouTube account is not connected")
	case errors.Is(err, youtube.ErrVideoNotFound):
		response.NotFound(w, "Video not found")
	case errors.Is(err, youtube.ErrReconnectRequired):
		response.Unauthorized(w, "YouTube connection expired, please reconnect")
	case errors.Is(err, quota.ErrQuotaExceeded):
		response.QuotaExceeded(w, "API quota exceeded, try again tomorrow", nil)
	default:
		log.Error().Err(err).Msg("campaign handler error")
		response.InternalError(w)
	}
}

// Routes returns the campaign router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/pause", h.Pause)
	r.Post("/{id}/resume", h.Resume)
	r.Post("/{id}/cancel", h.Cancel)

	return r
}
