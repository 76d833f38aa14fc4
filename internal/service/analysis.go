// Package service orchestrates the coaching flows on top of the repositories
// and upstream clients.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/service/events"
	"github.com/squigly/coach-api/internal/service/llm"
	"github.com/squigly/coach-api/internal/service/quota"
	"github.com/squigly/coach-api/internal/service/youtube"
	"github.com/squigly/coach-api/pkg/logger"
)

// TokenSource returns a usable access token for a connected channel.
type TokenSource interface {
	EnsureValid(ctx context.Context, userID uuid.UUID, channelID string) (string, error)
}

// YouTubeAPI is the subset of the YouTube client the services call.
type YouTubeAPI interface {
	MyChannel(ctx context.Context, accessToken string) (*youtube.Channel, error)
	ChannelSettings(ctx context.Context, accessToken string) (*youtube.Settings, error)
	ListUploads(ctx context.Context, accessToken string, limit int) ([]youtube.Video, error)
	AnalyticsSummary(ctx context.Context, accessToken, channelID string, now time.Time) (*youtube.AnalyticsSummary, error)
}

// Coach produces coaching text and fixes.
type Coach interface {
	Coach(ctx context.Context, req llm.CoachingRequest) (*llm.Coaching, error)
}

// Authorizer decides whether an analysis may run.
type Authorizer interface {
	Authorize(ctx context.Context, req quota.Request) (*quota.Decision, error)
	Status(ctx context.Context, userID uuid.UUID, tier models.Tier, now time.Time) (*quota.Usage, error)
}

// AnalyzeInput identifies one analysis request. UserID always comes from the
// verified session.
type AnalyzeInput struct {
	UserID    uuid.UUID
	ChannelID string
	// Fingerprint is the video fingerprint the caller last saw.
	Fingerprint string
}

// AnalysisResult is returned for both fresh and cached analyses.
type AnalysisResult struct {
	Analysis     string       `json:"analysis"`
	Fixes        models.Fixes `json:"fixes"`
	Fingerprint  string       `json:"fingerprint,omitempty"`
	Cached       bool         `json:"cached"`
	CreatedAt    time.Time    `json:"created_at"`
	Tier         models.Tier  `json:"tier"`
	MonthlyLimit int          `json:"monthly_limit"`
	MonthlyUsed  int          `json:"monthly_used"`
	Remaining    int          `json:"remaining"`
}

// AnalysisService runs gated channel analyses.
type AnalysisService interface {
	// Analyze checks the gate, then computes and records a new analysis, or
	// serves the cached one. Denials return *RateLimitError.
	Analyze(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error)

	// Usage returns the caller's quota snapshot.
	Usage(ctx context.Context, userID uuid.UUID) (*quota.Usage, error)
}

// AnalysisDeps are the collaborators of the analysis service.
type AnalysisDeps struct {
	Subscriptions repository.SubscriptionRepository
	Gate          Authorizer
	Tokens        TokenSource
	YouTube       YouTubeAPI
	Coach         Coach
	Ledger        repository.UsageRepository
	Results       repository.AnalysisRepository
	Profiles      repository.ProfileRepository
	Publisher     events.Publisher
	// MaxUploads bounds how many uploads are fetched per analysis.
	MaxUploads int
}

type analysisService struct {
	deps AnalysisDeps
	now  func() time.Time
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(deps AnalysisDeps) AnalysisService {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.MaxUploads <= 0 {
		deps.MaxUploads = youtube.MaxBatchSize
	}
	return &analysisService{deps: deps, now: time.Now}
}

func (s *analysisService) tier(ctx context.Context, userID uuid.UUID) (models.Tier, error) {
	sub, err := s.deps.Subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return models.TierFree, nil
		}
		return "", &PersistenceError{Op: "load subscription", Err: err}
	}
	return sub.EffectiveTier(), nil
}

func (s *analysisService) Usage(ctx context.Context, userID uuid.UUID) (*quota.Usage, error) {
	tier, err := s.tier(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.deps.Gate.Status(ctx, userID, tier, s.now())
	if err != nil {
		return nil, &PersistenceError{Op: "read usage", Err: err}
	}
	return usage, nil
}

func (s *analysisService) Analyze(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error) {
	log := logger.L().With(zap.String("userId", in.UserID.String()), zap.String("channelId", in.ChannelID))

	tier, err := s.tier(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	decision, err := s.deps.Gate.Authorize(ctx, quota.Request{
		UserID:      in.UserID,
		ChannelID:   in.ChannelID,
		Tier:        tier,
		Now:         now,
		Fingerprint: in.Fingerprint,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "authorize analysis", Err: err}
	}

	switch decision.Outcome {
	case quota.OutcomeDenied:
		log.Info("Analysis denied", zap.String("reason", string(decision.Reason)))
		return nil, &RateLimitError{Decision: decision}
	case quota.OutcomeCached:
		return cachedResult(tier, decision), nil
	}

	accessToken, err := s.deps.Tokens.EnsureValid(ctx, in.UserID, in.ChannelID)
	if err != nil {
		return nil, err
	}

	videos, err := s.deps.YouTube.ListUploads(ctx, accessToken, s.deps.MaxUploads)
	if err != nil {
		return nil, upstream(err)
	}
	if len(videos) == 0 {
		return nil, ErrNoVideos
	}
	fp := youtube.Fingerprint(videos)

	coaching, err := s.deps.Coach.Coach(ctx, s.coachingRequest(ctx, in, videos))
	if err != nil {
		status := 0
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, &UpstreamError{Service: "llm", StatusCode: status, Err: err}
	}

	// The analysis is delivered even if the ledger write fails; the user is
	// under-counted rather than charged for a lost result.
	monthlyUsed := decision.MonthlyUsed
	if err := s.deps.Ledger.Append(ctx, in.UserID, in.ChannelID, now); err != nil {
		log.Error("Failed to record analysis use", zap.Error(&PersistenceError{Op: "append usage", Err: err}))
	} else {
		monthlyUsed++
	}

	stored := &models.CachedAnalysis{
		UserID:           in.UserID,
		ChannelID:        in.ChannelID,
		AnalysisText:     coaching.Analysis,
		Fixes:            coaching.Fixes,
		VideoFingerprint: &fp,
		CreatedAt:        now,
	}
	if err := s.deps.Results.Upsert(ctx, stored); err != nil {
		log.Error("Failed to cache analysis", zap.Error(err))
	}

	ev := events.New(events.TypeAnalysisCompleted, in.UserID, events.AnalysisCompleted{
		ChannelID:   in.ChannelID,
		Fingerprint: fp,
		MonthlyUsed: monthlyUsed,
	})
	if err := s.deps.Publisher.Publish(ctx, ev); err != nil {
		log.Warn("Failed to publish analysis event", zap.Error(err))
	}

	log.Info("Analysis completed",
		zap.String("tier", string(tier)),
		zap.Int("videos", len(videos)),
		zap.Int("monthlyUsed", monthlyUsed),
	)

	remaining := decision.MonthlyLimit - monthlyUsed
	if remaining < 0 {
		remaining = 0
	}
	return &AnalysisResult{
		Analysis:     coaching.Analysis,
		Fixes:        coaching.Fixes,
		Fingerprint:  fp,
		CreatedAt:    stored.CreatedAt,
		Tier:         tier,
		MonthlyLimit: decision.MonthlyLimit,
		MonthlyUsed:  monthlyUsed,
		Remaining:    remaining,
	}, nil
}

func (s *analysisService) coachingRequest(ctx context.Context, in AnalyzeInput, videos []youtube.Video) llm.CoachingRequest {
	req := llm.CoachingRequest{Videos: make([]llm.VideoSummary, 0, min(len(videos), llm.MaxPromptVideos))}

	profile, err := s.deps.Profiles.Get(ctx, in.UserID, in.ChannelID)
	switch {
	case err == nil:
		req.ChannelName = profile.ChannelName
		req.ChannelAbout = profile.ChannelAbout
		req.Goal = profile.Goal
	case !db.IsNotFound(err):
		logger.L().Warn("Failed to load coaching profile", zap.Error(err))
	}

	for i, v := range videos {
		if i == llm.MaxPromptVideos {
			break
		}
		isShort := "No"
		if v.IsShort {
			isShort = "Yes"
		}
		req.Videos = append(req.Videos, llm.VideoSummary{
			Title:       v.Title,
			Views:       v.Views,
			Likes:       v.Likes,
			Comments:    v.Comments,
			Duration:    strconv.Itoa(v.DurationSeconds) + "s",
			PublishedAt: v.PublishedAt,
			IsShort:     isShort,
		})
	}
	return req
}

func cachedResult(tier models.Tier, d *quota.Decision) *AnalysisResult {
	a := d.Analysis
	res := &AnalysisResult{
		Analysis:     a.AnalysisText,
		Fixes:        a.Fixes,
		Fingerprint:  a.Fingerprint(),
		Cached:       true,
		CreatedAt:    a.CreatedAt,
		Tier:         tier,
		MonthlyLimit: d.MonthlyLimit,
		MonthlyUsed:  d.MonthlyUsed,
		Remaining:    d.Remaining,
	}
	if res.Fixes == nil {
		res.Fixes = models.Fixes{}
	}
	return res
}
