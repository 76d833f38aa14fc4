package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/middleware"
	apimodels "github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/service/quota"
	"github.com/squigly/coach-api/internal/service/youtube"
)

const testChannelID = "UCuAXFkgsw1L7xaCfnd5JJOw"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeConsent struct{}

func (fakeConsent) AuthCodeURL(state string, reconnect bool) string {
	u := "https://consent.test/auth?state=" + state
	if reconnect {
		u += "&prompt=consent"
	}
	return u
}

func newTestReconnector() (*Reconnector, *oauth.StateSigner) {
	signer := oauth.NewStateSigner("state-secret", 0)
	return NewReconnector(fakeConsent{}, signer), signer
}

// newEngine returns an engine whose requests run as userID. uuid.Nil means
// no session.
func newEngine(userID uuid.UUID) *gin.Engine {
	r := gin.New()
	if userID != uuid.Nil {
		r.Use(func(c *gin.Context) {
			middleware.SetUserID(c, userID)
			c.Next()
		})
	}
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apimodels.ErrorResponse {
	t.Helper()
	var body apimodels.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type mockAnalysisService struct {
	mock.Mock
}

func (m *mockAnalysisService) Analyze(ctx context.Context, in service.AnalyzeInput) (*service.AnalysisResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnalysisResult), args.Error(1)
}

func (m *mockAnalysisService) Usage(ctx context.Context, userID uuid.UUID) (*quota.Usage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Usage), args.Error(1)
}

type mockChannelService struct {
	mock.Mock
}

func (m *mockChannelService) ListChannels(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Credential), args.Error(1)
}

func (m *mockChannelService) Videos(ctx context.Context, userID uuid.UUID, channelID string) (*service.VideoList, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VideoList), args.Error(1)
}

func (m *mockChannelService) Analytics(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.AnalyticsSummary, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.AnalyticsSummary), args.Error(1)
}

func (m *mockChannelService) Settings(ctx context.Context, userID uuid.UUID, channelID string) (*youtube.Settings, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.Settings), args.Error(1)
}

func (m *mockChannelService) Connect(ctx context.Context, userID uuid.UUID, code, expectChannelID string) (*models.Credential, error) {
	args := m.Called(ctx, userID, code, expectChannelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *mockChannelService) Profile(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockChannelService) SaveProfile(ctx context.Context, profile *models.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *mockChannelService) LatestAnalysis(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error) {
	args := m.Called(ctx, userID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CachedAnalysis), args.Error(1)
}

type mockBillingService struct {
	mock.Mock
}

func (m *mockBillingService) CreateCheckout(ctx context.Context, userID uuid.UUID, tier models.Tier) (string, error) {
	args := m.Called(ctx, userID, tier)
	return args.String(0), args.Error(1)
}

func (m *mockBillingService) CreatePortal(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockBillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

type mockWaitlistRepository struct {
	mock.Mock
}

func (m *mockWaitlistRepository) Add(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}
