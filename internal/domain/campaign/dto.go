package campaign

import "time"

// CreateRequest is the payload to start a new title test
type CreateRequest struct {
	VideoID            string   `json:"videoId" validate:"required,len=11"`
	TitleVariants      []string `json:"titleVariants" validate:"required,min=2,max=6,unique,dive,min=1,max=100"`
	RotationHours      int      `json:"rotationHours" validate:"required,gte=1,lte=24"`
	TotalDurationHours int      `json:"totalDurationHours" validate:"required,gte=6,lte=168"`
}

// Response is the campaign representation returned by the API
type Response struct {
	ID                 string     `json:"id"`
	VideoID            string     `json:"videoId"`
	VideoTitle         string     `json:"videoTitle"`
	OriginalTitle      string     `json:"originalTitle"`
	ThumbnailURL       *string    `json:"thumbnailUrl,omitempty"`
	ChannelID          *string    `json:"channelId,omitempty"`
	TitleVariants      []string   `json:"titleVariants"`
	RotationHours      int        `json:"rotationHours"`
	TotalDurationHours int        `json:"totalDurationHours"`
	Status             Status     `json:"status"`
	CurrentTitleIndex  int        `json:"currentTitleIndex"`
	CurrentTitle       string     `json:"currentTitle"`
	NextRotationAt     *time.Time `json:"nextRotationAt,omitempty"`
	StartsAt           time.Time  `json:"startsAt"`
	EndsAt             time.Time  `json:"endsAt"`
	PausedAt           *time.Time `json:"pausedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	ErrorCount         int        `json:"errorCount"`
	ConsecutiveErrors  int        `json:"consecutiveErrors"`
	LastError          *string    `json:"lastError,omitempty"`

	Results *ResultsResponse `json:"results,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResultsResponse is the winner summary on completed campaigns
type ResultsResponse struct {
	WinningTitle        string  `json:"winningTitle"`
	WinningTitleIndex   int     `json:"winningTitleIndex"`
	WinningViewsPerHour float64 `json:"winningViewsPerHour"`
	ImprovementPercent  float64 `json:"improvementPercent"`
	ConfidenceLevel     int     `json:"confidenceLevel"`
	TotalViewsGained    int64   `json:"totalViewsGained"`
}

// ToResponse converts a campaign entity to its API representation
func ToResponse(c *Campaign) *Response {
	resp := &Response{
		ID:                 c.ID.String(),
		VideoID:            c.VideoID,
		VideoTitle:         c.VideoTitle,
		OriginalTitle:      c.OriginalTitle,
		TitleVariants:      c.TitleVariants,
		RotationHours:      c.RotationHours,
		TotalDurationHours: c.TotalDurationHours,
		Status:             c.Status,
		CurrentTitleIndex:  c.CurrentTitleIndex,
		CurrentTitle:       c.CurrentTitle,
		StartsAt:           c.StartsAt,
		EndsAt:             c.EndsAt,
		ErrorCount:         c.ErrorCount,
		ConsecutiveErrors:  c.ConsecutiveErrors,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}

	if c.ThumbnailURL.Valid {
		resp.ThumbnailURL = &c.ThumbnailURL.String
	}
	if c.ChannelID.Valid {
		resp.ChannelID = &c.ChannelID.String
	}
	if c.NextRotationAt.Valid {
		resp.NextRotationAt = &c.NextRotationAt.Time
	}
	if c.PausedAt.Valid {
		resp.PausedAt = &c.PausedAt.Time
	}
	if c.CompletedAt.Valid {
		resp.CompletedAt = &c.CompletedAt.Time
	}
	if c.LastError.Valid {
		resp.LastError = &c.LastError.String
	}

	if c.Status == StatusCompleted && c.WinningTitle.Valid {
		resp.Results = &ResultsResponse{
			WinningTitle:        c.WinningTitle.String,
			WinningTitleIndex:   int(c.WinningTitleIndex.Int64),
			WinningViewsPerHour: c.WinningViewsPerHour.Float64,
			ImprovementPercent:  c.ImprovementPercent.Float64,
			ConfidenceLevel:     int(c.ConfidenceLevel.Int64),
			TotalViewsGained:    c.TotalViewsGained.Int64,
		}
	}

	return resp
}

// ToResponseList converts a slice of campaigns
func ToResponseList(campaigns []Campaign) []*Response {
	responses := make([]*Response, 0, len(campaigns))
	for i := range campaigns {
		responses = append(responses, ToResponse(&campaigns[i]))
	}
	return responses
}
