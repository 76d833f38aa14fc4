package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"

	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/service/events"
	"github.com/squigly/coach-api/internal/service/llm"
	"github.com/squigly/coach-api/internal/service/quota"
	"github.com/squigly/coach-api/internal/service/youtube"
)

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockSubscriptionRepository) UpdateStatusBySubscriptionID(ctx context.Context, id string, status models.Tier) (*models.Subscription, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) TouchByCustomerID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Authorize(ctx context.Context, req quota.Request) (*quota.Decision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Decision), args.Error(1)
}

func (m *mockGate) Status(ctx context.Context, userID uuid.UUID, tier models.Tier, now time.Time) (*quota.Usage, error) {
	args := m.Called(ctx, userID, tier, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Usage), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) EnsureValid(ctx context.Context, userID uuid.UUID, channelID string) (string, error) {
	args := m.Called(ctx, userID, channelID)
	return args.String(0), args.Error(1)
}

type mockYouTube struct {
	mock.Mock
}

func (m *mockYouTube) MyChannel(ctx context.Context, token string) (*youtube.Channel, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.Channel), args.Error(1)
}

func (m *mockYouTube) ChannelSettings(ctx context.Context, token string) (*youtube.Settings, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.Settings), args.Error(1)
}

func (m *mockYouTube) ListUploads(ctx context.Context, token string, limit int) ([]youtube.Video, error) {
	args := m.Called(ctx, token, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]youtube.Video), args.Error(1)
}

func (m *mockYouTube) AnalyticsSummary(ctx context.Context, token, channelID string, now time.Time) (*youtube.AnalyticsSummary, error) {
	args := m.Called(ctx, token, channelID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.AnalyticsSummary), args.Error(1)
}

type mockCoach struct {
	mock.Mock
}

func (m *mockCoach) Coach(ctx context.Context, req llm.CoachingRequest) (*llm.Coaching, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Coaching), args.Error(1)
}

type mockUsageRepository struct {
	mock.Mock
}

func (m *mockUsageRepository) Append(ctx context.Context, userID uuid.UUID, channelID string, at time.Time) error {
	return m.Called(ctx, userID, channelID, at).Error(0)
}

func (m *mockUsageRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

type mockAnalysisRepository struct {
	mock.Mock
}

func (m *mockAnalysisRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CachedAnalysis), args.Error(1)
}

func (m *mockAnalysisRepository) Upsert(ctx context.Context, a *models.CachedAnalysis) error {
	return m.Called(ctx, a).Error(0)
}

type mockProfileRepository struct {
	mock.Mock
}

func (m *mockProfileRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

type mockCredentialRepository struct {
	mock.Mock
}

func (m *mockCredentialRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Credential, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *mockCredentialRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Credential), args.Error(1)
}

func (m *mockCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *mockCredentialRepository) UpdateAccessToken(ctx context.Context, userID uuid.UUID, channelID, accessToken string, expiry time.Time) error {
	return m.Called(ctx, userID, channelID, accessToken, expiry).Error(0)
}

type mockExchanger struct {
	mock.Mock
}

func (m *mockExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

type recordingPublisher struct {
	published []*events.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *events.Event) error {
	p.published = append(p.published, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }
