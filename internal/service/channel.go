package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/service/youtube"
	"github.com/squigly/coach-api/pkg/logger"
)

// Exchanger trades an authorization code for tokens.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// VideoList is the uploads view plus the fingerprint the client echoes back
// when it requests an analysis.
type VideoList struct {
	Videos      []youtube.Video `json:"videos"`
	Fingerprint string          `json:"fingerprint"`
}

// ChannelService serves connected-channel data.
type ChannelService interface {
	ListChannels(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error)
	Videos(ctx context.Context, userID uuid.UUID, channelID string) (*VideoList, error)
	Analytics(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.AnalyticsSummary, error)
	Settings(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.Settings, error)

	// Connect completes the OAuth flow. A non-empty expectChannelID requires the
	// grant to be for that channel.
	Connect(ctx context.Context, userID uuid.UUID, code, expectChannelID string) (*models.Credential, error)

	// Profile returns the stored profile, or an empty one for the channel.
	Profile(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error

	// LatestAnalysis returns the cached analysis; db.ErrNotFound when none exists.
	LatestAnalysis(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error)
}

// ChannelDeps are the collaborators of the channel service.
type ChannelDeps struct {
	Credentials repository.CredentialRepository
	Profiles    repository.ProfileRepository
	Results     repository.AnalysisRepository
	Tokens      TokenSource
	YouTube     YouTubeAPI
	OAuth       Exchanger
	MaxUploads  int
}

type channelService struct {
	deps ChannelDeps
	now  func() time.Time
}

// NewChannelService creates a new ChannelService.
func NewChannelService(deps ChannelDeps) ChannelService {
	if deps.MaxUploads <= 0 {
		deps.MaxUploads = youtube.MaxBatchSize
	}
	return &channelService{deps: deps, now: time.Now}
}

func (s *channelService) ListChannels(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error) {
	creds, err := s.deps.Credentials.ListByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list channels", Err: err}
	}
	return creds, nil
}

func (s *channelService) Videos(ctx context.Context, userID uuid.UUID, channelID string) (*VideoList, error) {
	token, err := s.deps.Tokens.EnsureValid(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}

	videos, err := s.deps.YouTube.ListUploads(ctx, token, s.deps.MaxUploads)
	if err != nil {
		return nil, upstream(err)
	}
	return &VideoList{Videos: videos, Fingerprint: youtube.Fingerprint(videos)}, nil
}

func (s *channelService) Analytics(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.AnalyticsSummary, error) {
	token, err := s.deps.Tokens.EnsureValid(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}

	summary, err := s.deps.YouTube.AnalyticsSummary(ctx, token, channelID, s.now())
	if err != nil {
		return nil, upstream(err)
	}
	return summary, nil
}

func (s *channelService) Settings(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.Settings, error) {
	token, err := s.deps.Tokens.EnsureValid(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}

	settings, err := s.deps.YouTube.ChannelSettings(ctx, token)
	if err != nil {
		return nil, upstream(err)
	}
	return settings, nil
}

func (s *channelService) Connect(ctx context.Context, userID uuid.UUID, code, expectChannelID string) (*models.Credential, error) {
	tok, err := s.deps.OAuth.Exchange(ctx, code)
	if err != nil {
		status := 0
		var rf *oauth.RefreshFailedError
		if errors.As(err, &rf) {
			status = rf.StatusCode
		}
		return nil, &UpstreamError{Service: "google", StatusCode: status, Err: err}
	}

	ch, err := s.deps.YouTube.MyChannel(ctx, tok.AccessToken)
	if err != nil {
		return nil, upstream(err)
	}
	if expectChannelID != "" && ch.ID != expectChannelID {
		return nil, ErrChannelMismatch
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(oauth.DefaultTokenLifetime)
	}

	cred := &models.Credential{
		UserID:       userID,
		ChannelID:    ch.ID,
		ChannelTitle: ch.Title,
		AccessToken:  tok.AccessToken,
		Scope:        oauth.GrantedScope(tok),
		TokenType:    tok.Type(),
		Expiry:       &expiry,
	}
	if tok.RefreshToken != "" {
		cred.RefreshToken = &tok.RefreshToken
	}

	if err := s.deps.Credentials.Upsert(ctx, cred); err != nil {
		return nil, &PersistenceError{Op: "store credential", Err: err}
	}

	if !cred.HasRefreshToken() {
		logger.L().Warn("Channel connected without a refresh token",
			zap.String("userId", userID.String()), zap.String("channelId", ch.ID))
	}
	logger.L().Info("Channel connected",
		zap.String("userId", userID.String()),
		zap.String("channelId", ch.ID),
	)
	return cred, nil
}

func (s *channelService) Profile(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error) {
	p, err := s.deps.Profiles.Get(ctx, userID, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return &models.Profile{UserID: userID, ChannelID: channelID}, nil
		}
		return nil, &PersistenceError{Op: "load profile", Err: err}
	}
	return p, nil
}

func (s *channelService) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if err := s.deps.Profiles.Upsert(ctx, profile); err != nil {
		return &PersistenceError{Op: "save profile", Err: err}
	}
	return nil
}

func (s *channelService) LatestAnalysis(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error) {
	a, err := s.deps.Results.Get(ctx, userID, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load analysis", Err: err}
	}
	return a, nil
}

func upstream(err error) error {
	return &UpstreamError{Service: "youtube", StatusCode: youtube.StatusCode(err), Err: err}
}
