// Package youtube reads channel, upload and analytics data on behalf of a
// connected user.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/pkg/fingerprint"
)

const (
	// MaxBatchSize is the per-request id limit of videos.list and page size of playlistItems.list.
	MaxBatchSize = 50

	// ShortMaxSeconds is the longest duration still counted as a Short.
	ShortMaxSeconds = 60

	analyticsWindow = 30 * 24 * time.Hour
)

var (
	// ErrInsufficientScope means the grant predates a scope we now need; the
	// user has to reconnect.
	ErrInsufficientScope = errors.New("youtube grant is missing required scopes")

	// ErrUnauthorized means Google rejected the access token.
	ErrUnauthorized = errors.New("youtube rejected the access token")

	// ErrNoChannel means the account has no YouTube channel.
	ErrNoChannel = errors.New("no youtube channel found for this account")
)

// Channel is the subset of channel data the dashboard shows.
type Channel struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Thumbnail         string `json:"thumbnail,omitempty"`
	UploadsPlaylistID string `json:"-"`
	Subscribers       uint64 `json:"subscribers"`
	Views             uint64 `json:"views"`
	VideoCount        uint64 `json:"video_count"`
}

// Settings is the channel configuration the coach reviews.
type Settings struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Keywords          string `json:"keywords,omitempty"`
	Country           string `json:"country,omitempty"`
	BannerExternalURL string `json:"banner_external_url,omitempty"`
	MadeForKids       bool   `json:"made_for_kids"`
}

// Video is one upload with the stats used for coaching.
type Video struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	PublishedAt     string `json:"published_at"`
	Duration        string `json:"duration"`
	DurationSeconds int    `json:"duration_seconds"`
	IsShort         bool   `json:"is_short"`
	Views           uint64 `json:"views"`
	Likes           uint64 `json:"likes"`
	Comments        uint64 `json:"comments"`
}

// AnalyticsSummary covers the trailing 30 days.
type AnalyticsSummary struct {
	StartDate               string  `json:"start_date"`
	EndDate                 string  `json:"end_date"`
	Views                   float64 `json:"views"`
	EstimatedMinutesWatched float64 `json:"estimated_minutes_watched"`
	AverageViewDuration     float64 `json:"average_view_duration_seconds"`
}

// Fingerprint summarizes a video list for change detection.
func Fingerprint(videos []Video) string {
	items := make([]fingerprint.Item, 0, len(videos))
	for _, v := range videos {
		items = append(items, fingerprint.Item{ID: v.ID, PublishedAt: v.PublishedAt})
	}
	return fingerprint.Videos(items)
}

// Client builds per-call API services bound to the caller's access token.
type Client struct {
	opts []option.ClientOption
}

// NewClient creates a new Client. opts are appended to every service, e.g.
// option.WithEndpoint in tests.
func NewClient(opts ...option.ClientOption) *Client {
	return &Client{opts: opts}
}

func (c *Client) clientOptions(accessToken string) []option.ClientOption {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := make([]option.ClientOption, 0, len(c.opts)+1)
	opts = append(opts, option.WithTokenSource(ts))
	return append(opts, c.opts...)
}

func (c *Client) dataService(ctx context.Context, accessToken string) (*youtube.Service, error) {
	svc, err := youtube.NewService(ctx, c.clientOptions(accessToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return svc, nil
}

// MyChannel returns the channel owned by the token's account.
func (c *Client) MyChannel(ctx context.Context, accessToken string) (*Channel, error) {
	item, err := c.myChannelItem(ctx, accessToken, []string{"snippet", "contentDetails", "statistics"})
	if err != nil {
		return nil, err
	}

	ch := &Channel{ID: item.Id}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		ch.Description = item.Snippet.Description
		ch.Thumbnail = thumbnailURL(item.Snippet.Thumbnails)
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		ch.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	}
	if item.Statistics != nil {
		ch.Subscribers = item.Statistics.SubscriberCount
		ch.Views = item.Statistics.ViewCount
		ch.VideoCount = item.Statistics.VideoCount
	}
	return ch, nil
}

// ChannelSettings returns branding and audience settings.
func (c *Client) ChannelSettings(ctx context.Context, accessToken string) (*Settings, error) {
	item, err := c.myChannelItem(ctx, accessToken, []string{"snippet", "brandingSettings", "status"})
	if err != nil {
		return nil, err
	}

	s := &Settings{}
	if item.Snippet != nil {
		s.Title = item.Snippet.Title
		s.Description = item.Snippet.Description
		s.Country = item.Snippet.Country
	}
	if b := item.BrandingSettings; b != nil {
		if b.Channel != nil {
			s.Keywords = b.Channel.Keywords
			if s.Country == "" {
				s.Country = b.Channel.Country
			}
		}
		if b.Image != nil {
			s.BannerExternalURL = b.Image.BannerExternalUrl
		}
	}
	if item.Status != nil {
		s.MadeForKids = item.Status.MadeForKids
	}
	return s, nil
}

func (c *Client) myChannelItem(ctx context.Context, accessToken string, parts []string) (*youtube.Channel, error) {
	svc, err := c.dataService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := svc.Channels.List(parts).Mine(true).Context(ctx).Do()
	metrics.ObserveUpstream("youtube", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", mapError(err))
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoChannel
	}
	return resp.Items[0], nil
}

// ListUploads returns up to limit of the channel's most recent uploads with
// statistics and durations. limit <= 0 means MaxBatchSize.
func (c *Client) ListUploads(ctx context.Context, accessToken string, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = MaxBatchSize
	}

	ch, err := c.MyChannel(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if ch.UploadsPlaylistID == "" {
		return []Video{}, nil
	}

	svc, err := c.dataService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for len(ids) < limit {
		call := svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(ch.UploadsPlaylistID).
			MaxResults(MaxBatchSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		start := time.Now()
		resp, err := call.Do()
		metrics.ObserveUpstream("youtube", start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to list uploads: %w", mapError(err))
		}

		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	videos := make([]Video, 0, len(ids))
	for _, batch := range BatchVideoIDs(ids, MaxBatchSize) {
		start := time.Now()
		resp, err := svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(batch...).
			Context(ctx).
			Do()
		metrics.ObserveUpstream("youtube", start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch videos: %w", mapError(err))
		}

		for _, item := range resp.Items {
			videos = append(videos, mapVideo(item))
		}
	}

	return videos, nil
}

// AnalyticsSummary returns channel totals for the 30 days ending at now.
func (c *Client) AnalyticsSummary(ctx context.Context, accessToken, channelID string, now time.Time) (*AnalyticsSummary, error) {
	svc, err := youtubeanalytics.NewService(ctx, c.clientOptions(accessToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube Analytics service: %w", err)
	}

	summary := &AnalyticsSummary{
		StartDate: now.Add(-analyticsWindow).Format(time.DateOnly),
		EndDate:   now.Format(time.DateOnly),
	}

	start := time.Now()
	resp, err := svc.Reports.Query().
		Ids("channel==" + channelID).
		StartDate(summary.StartDate).
		EndDate(summary.EndDate).
		Metrics("views,estimatedMinutesWatched,averageViewDuration").
		Context(ctx).
		Do()
	metrics.ObserveUpstream("youtube_analytics", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", mapError(err))
	}

	if len(resp.Rows) == 0 {
		return summary, nil
	}
	row := resp.Rows[0]
	for i, col := range resp.ColumnHeaders {
		if i >= len(row) {
			break
		}
		v, _ := row[i].(float64)
		switch col.Name {
		case "views":
			summary.Views = v
		case "estimatedMinutesWatched":
			summary.EstimatedMinutesWatched = v
		case "averageViewDuration":
			summary.AverageViewDuration = v
		}
	}

	return summary, nil
}

func mapVideo(item *youtube.Video) Video {
	v := Video{ID: item.Id}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
		v.PublishedAt = item.Snippet.PublishedAt
		v.Thumbnail = thumbnailURL(item.Snippet.Thumbnails)
	}
	if item.Statistics != nil {
		v.Views = item.Statistics.ViewCount
		v.Likes = item.Statistics.LikeCount
		v.Comments = item.Statistics.CommentCount
	}
	if item.ContentDetails != nil {
		v.Duration = item.ContentDetails.Duration
		if secs, err := ParseDuration(item.ContentDetails.Duration); err == nil {
			v.DurationSeconds = secs
			v.IsShort = secs > 0 && secs <= ShortMaxSeconds
		}
	}
	return v
}

func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// mapError turns googleapi errors into the package sentinels where the caller
// has to react differently.
func mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, gerr)
	case http.StatusForbidden:
		text := strings.ToLower(gerr.Message + " " + gerr.Body)
		if strings.Contains(text, "insufficient authentication scopes") ||
			strings.Contains(text, "insufficientpermissions") {
			return fmt.Errorf("%w: %w", ErrInsufficientScope, gerr)
		}
	}
	return err
}

// StatusCode returns the HTTP status of a googleapi error, or 0.
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
