package video

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/middleware"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
	"github.com/titlepulse/titlepulse-api/internal/pkg/youtube"
)

// ChannelLister lists the authenticated user's channel videos
type ChannelLister interface {
	GetChannelVideos(ctx context.Context, accountID uuid.UUID, maxResults int) ([]youtube.VideoSummary, error)
}

// Handler serves the video picker used when creating a campaign
type Handler struct {
	platform ChannelLister
}

// NewHandler creates a new video handler
func NewHandler(platform ChannelLister) *Handler {
	return &Handler{platform: platform}
}

// List handles GET /videos
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	maxResults := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "Invalid limit")
			return
		}
		maxResults = n
	}

	videos, err := h.platform.GetChannelVideos(r.Context(), userID, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, youtube.ErrReconnectRequired):
			response.Unauthorized(w, "YouTube connection expired, please reconnect")
		case errors.Is(err, quota.ErrQuotaExceeded):
			response.QuotaExceeded(w, "API quota exceeded, try again tomorrow", nil)
		default:
			log.Error().Err(err).Msg("failed to list channel videos")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, videos)
}

// Routes returns the video router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}
