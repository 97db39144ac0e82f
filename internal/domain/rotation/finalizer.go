package rotation

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
)

// maxConfidence caps the reported confidence level. The score is a heuristic
// built from sample count and rate consistency, not a statistical test, so it
// never claims certainty.
const maxConfidence = 95

// TitleStats aggregates the qualifying windows of one title variant
type TitleStats struct {
	TitleIndex       int     `json:"title_index"`
	Title            string  `json:"title"`
	Samples          int     `json:"samples"`
	ViewsGained      int64   `json:"views_gained"`
	AvgViewsPerHour  float64 `json:"avg_views_per_hour"`
	BestViewsPerHour float64 `json:"best_views_per_hour"`
}

// Analysis is the ranked outcome of a finished campaign
type Analysis struct {
	Ranked             []TitleStats
	Winner             TitleStats
	ImprovementPercent float64
	ConfidenceLevel    int
	TotalViewsGained   int64
}

// Analyze ranks title variants by their average hourly view rate across
// qualifying windows. It returns nil when no window qualifies, in which case
// the campaign has insufficient data for a verdict.
func Analyze(rotations []Rotation) *Analysis {
	byTitle := make(map[int]*TitleStats)
	sums := make(map[int]float64)
	var totalGained int64
	var totalSamples int

	for i := range rotations {
		r := &rotations[i]
		if !r.Qualifies() {
			continue
		}
		totalSamples++

		stats, ok := byTitle[r.TitleIndex]
		if !ok {
			stats = &TitleStats{TitleIndex: r.TitleIndex, Title: r.Title}
			byTitle[r.TitleIndex] = stats
		}

		stats.Samples++
		stats.ViewsGained += r.ViewsGained.Int64
		sums[r.TitleIndex] += r.ViewsPerHour.Float64
		if r.ViewsPerHour.Float64 > stats.BestViewsPerHour {
			stats.BestViewsPerHour = r.ViewsPerHour.Float64
		}
		totalGained += r.ViewsGained.Int64
	}

	if len(byTitle) == 0 {
		return nil
	}

	ranked := make([]TitleStats, 0, len(byTitle))
	for idx, stats := range byTitle {
		stats.AvgViewsPerHour = round2(sums[idx] / float64(stats.Samples))
		ranked = append(ranked, *stats)
	}

	// Highest average rate wins; ties go to the earlier variant
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AvgViewsPerHour != ranked[j].AvgViewsPerHour {
			return ranked[i].AvgViewsPerHour > ranked[j].AvgViewsPerHour
		}
		return ranked[i].TitleIndex < ranked[j].TitleIndex
	})

	winner := ranked[0]

	var improvement float64
	if len(ranked) > 1 && ranked[1].AvgViewsPerHour > 0 {
		improvement = round2((winner.AvgViewsPerHour - ranked[1].AvgViewsPerHour) / ranked[1].AvgViewsPerHour * 100)
	}

	return &Analysis{
		Ranked:             ranked,
		Winner:             winner,
		ImprovementPercent: improvement,
		ConfidenceLevel:    confidence(winner, totalSamples),
		TotalViewsGained:   totalGained,
	}
}

// confidence scores the winner from 50 upward: every qualifying window in the
// campaign adds 3 points and the winner's rate consistency (average relative
// to its best window) adds up to 10.
func confidence(winner TitleStats, totalSamples int) int {
	consistency := 1.0
	if winner.Samples >= 2 && winner.BestViewsPerHour > 0 {
		consistency = winner.AvgViewsPerHour / winner.BestViewsPerHour
	}

	score := 50 + float64(totalSamples)*3 + consistency*10
	if score > maxConfidence {
		score = maxConfidence
	}
	return int(math.Round(score))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// MetricReader reads the final view snapshot for a campaign's video
type MetricReader interface {
	GetVideoViewCount(ctx context.Context, accountID uuid.UUID, videoID string) (int64, error)
}

// Finalizer closes out campaigns whose test period has ended
type Finalizer struct {
	windows   Repository
	campaigns campaign.Repository
	platform  MetricReader

	now func() time.Time
}

// NewFinalizer creates a new campaign finalizer
func NewFinalizer(windows Repository, campaigns campaign.Repository, platform MetricReader) *Finalizer {
	return &Finalizer{
		windows:   windows,
		campaigns: campaigns,
		platform:  platform,
		now:       time.Now,
	}
}

// Finalize takes the last metric snapshot, closes the campaign's open window
// and completes the campaign with ranked results. A campaign whose windows
// never qualified still completes, flagged as lacking data.
func (f *Finalizer) Finalize(ctx context.Context, c *campaign.Campaign) error {
	views, err := f.platform.GetVideoViewCount(ctx, c.UserID, c.VideoID)
	if err != nil {
		return err
	}

	open, err := f.windows.GetOpenByCampaign(ctx, c.ID)
	if err != nil {
		return err
	}
	if open != nil {
		if err := f.windows.Close(ctx, open.ID, open.CloseWindow(f.now(), views)); err != nil {
			return err
		}
	}

	qualifying, err := f.windows.ListQualifying(ctx, c.ID)
	if err != nil {
		return err
	}

	analysis := Analyze(qualifying)
	if analysis == nil {
		log.Info().Str("campaign_id", c.ID.String()).Msg("campaign completed without qualifying data")
		return f.campaigns.CompleteInsufficientData(ctx, c.ID)
	}

	results := &campaign.FinalResults{
		WinningTitle:        analysis.Winner.Title,
		WinningTitleIndex:   analysis.Winner.TitleIndex,
		WinningViewsPerHour: analysis.Winner.AvgViewsPerHour,
		ImprovementPercent:  analysis.ImprovementPercent,
		ConfidenceLevel:     analysis.ConfidenceLevel,
		TotalViewsGained:    analysis.TotalViewsGained,
	}

	log.Info().
		Str("campaign_id", c.ID.String()).
		Str("winning_title", results.WinningTitle).
		Float64("views_per_hour", results.WinningViewsPerHour).
		Int("confidence", results.ConfidenceLevel).
		Msg("campaign completed")

	return f.campaigns.CompleteWithResults(ctx, c.ID, results)
}
