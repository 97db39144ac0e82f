package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
)

// Snippet fields stay an untyped map so a read-modify-write round-trips every
// field the API returned, not just the ones this service knows about.
type videoListResponse struct {
	Items []struct {
		ID         string                 `json:"id"`
		Snippet    map[string]interface{} `json:"snippet,omitempty"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics,omitempty"`
	} `json:"items"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Thumbnails  struct {
				Medium  struct{ URL string `json:"url"` } `json:"medium"`
				Default struct{ URL string `json:"url"` } `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// VideoDetails describes a video for campaign creation
type VideoDetails struct {
	Title        string `json:"title"`
	Thumbnail    string `json:"thumbnail"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
}

// VideoSummary is one entry in the owner's video listing
type VideoSummary struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
	Thumbnail   string `json:"thumbnail"`
}

// GetVideoViewCount returns the video's current cumulative view count.
// This single read serves as both the closing snapshot of the outgoing
// measurement window and the opening snapshot of the incoming one.
func (c *Client) GetVideoViewCount(ctx context.Context, accountID uuid.UUID, videoID string) (int64, error) {
	if err := c.checkQuota(ctx, quota.OpVideosList); err != nil {
		return 0, err
	}

	token, err := c.ensureValidToken(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var resp videoListResponse
	query := url.Values{"part": {"statistics"}, "id": {videoID}}
	if err := c.doGet(ctx, token, "/videos", query, &resp); err != nil {
		c.countError(quota.OpVideosList)
		return 0, fmt.Errorf("get view count: %w", err)
	}

	c.recordUsage(ctx, quota.OpVideosList)

	if len(resp.Items) == 0 {
		return 0, ErrVideoNotFound
	}

	viewCount, err := strconv.ParseInt(resp.Items[0].Statistics.ViewCount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse view count %q: %w", resp.Items[0].Statistics.ViewCount, err)
	}

	log.Debug().
		Str("video_id", videoID).
		Int64("view_count", viewCount).
		Msg("View count retrieved")

	return viewCount, nil
}

// GetVideoDetails returns title/thumbnail/channel info for campaign creation
func (c *Client) GetVideoDetails(ctx context.Context, accountID uuid.UUID, videoID string) (*VideoDetails, error) {
	if err := c.checkQuota(ctx, quota.OpVideosList); err != nil {
		return nil, err
	}

	token, err := c.ensureValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var resp videoListResponse
	query := url.Values{"part": {"snippet"}, "id": {videoID}}
	if err := c.doGet(ctx, token, "/videos", query, &resp); err != nil {
		c.countError(quota.OpVideosList)
		return nil, fmt.Errorf("get video details: %w", err)
	}

	c.recordUsage(ctx, quota.OpVideosList)

	if len(resp.Items) == 0 {
		return nil, ErrVideoNotFound
	}

	snippet := resp.Items[0].Snippet
	return &VideoDetails{
		Title:        snippetString(snippet, "title"),
		Thumbnail:    snippetThumbnail(snippet),
		ChannelID:    snippetString(snippet, "channelId"),
		ChannelTitle: snippetString(snippet, "channelTitle"),
	}, nil
}

// UpdateVideoTitle sets the video's title via read-modify-write: it fetches
// the full current snippet, overlays only the title, and submits the whole
// object back so required fields are never silently cleared.
func (c *Client) UpdateVideoTitle(ctx context.Context, accountID uuid.UUID, videoID, newTitle string) error {
	if err := c.checkQuota(ctx, quota.OpVideosUpdate); err != nil {
		return err
	}

	token, err := c.ensureValidToken(ctx, accountID)
	if err != nil {
		return err
	}

	var current videoListResponse
	query := url.Values{"part": {"snippet"}, "id": {videoID}}
	if err := c.doGet(ctx, token, "/videos", query, &current); err != nil {
		c.countError(quota.OpVideosUpdate)
		return fmt.Errorf("fetch current snippet: %w", err)
	}

	if len(current.Items) == 0 {
		return ErrVideoNotFound
	}

	snippet := current.Items[0].Snippet
	previousTitle := snippetString(snippet, "title")
	snippet["title"] = newTitle
	if _, ok := snippet["categoryId"]; !ok {
		// The update endpoint requires a category; default to People & Blogs
		snippet["categoryId"] = "22"
	}

	body := map[string]interface{}{
		"id":      videoID,
		"snippet": snippet,
	}
	if err := c.doPut(ctx, token, "/videos", url.Values{"part": {"snippet"}}, body); err != nil {
		c.countError(quota.OpVideosUpdate)
		return fmt.Errorf("update title: %w", err)
	}

	c.recordUsage(ctx, quota.OpVideosUpdate)

	log.Info().
		Str("video_id", videoID).
		Str("new_title", newTitle).
		Str("previous_title", previousTitle).
		Msg("Video title updated")

	return nil
}

// GetChannelVideos lists the owner's recent videos for the campaign picker
func (c *Client) GetChannelVideos(ctx context.Context, accountID uuid.UUID, maxResults int) ([]VideoSummary, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	if err := c.checkQuota(ctx, quota.OpSearchList); err != nil {
		return nil, err
	}

	token, err := c.ensureValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var resp searchListResponse
	query := url.Values{
		"part":       {"snippet"},
		"forMine":    {"true"},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {strconv.Itoa(maxResults)},
	}
	if err := c.doGet(ctx, token, "/search", query, &resp); err != nil {
		c.countError(quota.OpSearchList)
		return nil, fmt.Errorf("list channel videos: %w", err)
	}

	c.recordUsage(ctx, quota.OpSearchList)

	videos := make([]VideoSummary, 0, len(resp.Items))
	for _, item := range resp.Items {
		thumbnail := item.Snippet.Thumbnails.Medium.URL
		if thumbnail == "" {
			thumbnail = item.Snippet.Thumbnails.Default.URL
		}
		videos = append(videos, VideoSummary{
			VideoID:     item.ID.VideoID,
			Title:       item.Snippet.Title,
			PublishedAt: item.Snippet.PublishedAt,
			Thumbnail:   thumbnail,
		})
	}

	return videos, nil
}

func snippetString(snippet map[string]interface{}, key string) string {
	if v, ok := snippet[key].(string); ok {
		return v
	}
	return ""
}

func snippetThumbnail(snippet map[string]interface{}) string {
	thumbs, ok := snippet["thumbnails"].(map[string]interface{})
	if !ok {
		return ""
	}
	for _, size := range []string{"medium", "default"} {
		if t, ok := thumbs[size].(map[string]interface{}); ok {
			if u, ok := t["url"].(string); ok && u != "" {
				return u
			}
		}
	}
	return ""
}
