package rotation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
	"github.com/titlepulse/titlepulse-api/internal/middleware"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
)

// CampaignReader resolves a campaign for its owner, rejecting other users
type CampaignReader interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (*campaign.Campaign, error)
}

// Handler exposes the rotation engine to external cron callers and serves
// per-campaign rotation history
type Handler struct {
	engine    *Engine
	windows   Repository
	campaigns CampaignReader
}

// NewHandler creates a new rotation handler
func NewHandler(engine *Engine, windows Repository, campaigns CampaignReader) *Handler {
	return &Handler{engine: engine, windows: windows, campaigns: campaigns}
}

// Rotate handles POST /cron/rotate. It runs one full rotation cycle
// synchronously and reports the outcome.
func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("cron-triggered rotation cycle failed")
		response.InternalError(w)
		return
	}

	response.OK(w, result)
}

// History handles GET /campaigns/{id}/rotations
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid campaign ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if _, err := h.campaigns.GetByID(r.Context(), userID, id); err != nil {
		switch {
		case errors.Is(err, campaign.ErrCampaignNotFound):
			response.NotFound(w, "Campaign not found")
		case errors.Is(err, campaign.ErrNotCampaignOwner):
			response.Forbidden(w, "Not your campaign")
		default:
			log.Error().Err(err).Msg("failed to resolve campaign for history")
			response.InternalError(w)
		}
		return
	}

	rotations, err := h.windows.ListByCampaign(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("failed to list rotations")
		response.InternalError(w)
		return
	}

	response.OK(w, toHistoryResponse(rotations))
}

type windowResponse struct {
	ID              string   `json:"id"`
	TitleIndex      int      `json:"titleIndex"`
	Title           string   `json:"title"`
	StartedAt       string   `json:"startedAt"`
	EndedAt         *string  `json:"endedAt,omitempty"`
	DurationSeconds *int64   `json:"durationSeconds,omitempty"`
	ViewsAtStart    int64    `json:"viewsAtStart"`
	ViewsAtEnd      *int64   `json:"viewsAtEnd,omitempty"`
	ViewsGained     *int64   `json:"viewsGained,omitempty"`
	ViewsPerHour    *float64 `json:"viewsPerHour,omitempty"`
}

func toHistoryResponse(rotations []Rotation) []windowResponse {
	out := make([]windowResponse, 0, len(rotations))
	for i := range rotations {
		r := &rotations[i]
		wr := windowResponse{
			ID:           r.ID.String(),
			TitleIndex:   r.TitleIndex,
			Title:        r.Title,
			StartedAt:    r.StartedAt.Format(time.RFC3339),
			ViewsAtStart: r.ViewsAtStart,
		}
		if r.EndedAt.Valid {
			s := r.EndedAt.Time.Format(time.RFC3339)
			wr.EndedAt = &s
		}
		if r.DurationSeconds.Valid {
			wr.DurationSeconds = &r.DurationSeconds.Int64
		}
		if r.ViewsAtEnd.Valid {
			wr.ViewsAtEnd = &r.ViewsAtEnd.Int64
		}
		if r.ViewsGained.Valid {
			wr.ViewsGained = &r.ViewsGained.Int64
		}
		if r.ViewsPerHour.Valid {
			wr.ViewsPerHour = &r.ViewsPerHour.Float64
		}
		out = append(out, wr)
	}
	return out
}
