package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squigly/coach-api/internal/handler"
	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/validation"
)

const sessionSecret = "router-secret"

type consent struct{}

func (consent) AuthCodeURL(state string, _ bool) string { return "https://consent.test/?state=" + state }

// newTestEngine wires real handlers around nil services. Only requests that
// are rejected before reaching a service may be sent.
func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)

	v := validation.New(true)
	signer := oauth.NewStateSigner("state-secret", 0)
	reconnect := handler.NewReconnector(consent{}, signer)

	r := gin.New()
	Setup(r, &Handlers{
		Health:   handler.NewHealthHandler(),
		Analysis: handler.NewAnalysisHandler(nil, v, reconnect),
		Channel:  handler.NewChannelHandler(nil, v, reconnect),
		OAuth:    handler.NewOAuthHandler(nil, reconnect, signer, v, "https://app.test"),
		Billing:  handler.NewBillingHandler(nil),
		Waitlist: handler.NewWaitlistHandler(nil, v),
	}, middleware.NewSessionAuth(sessionSecret, "authenticated"))
	return r
}

func sessionToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(sessionSecret))
	require.NoError(t, err)
	return token
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSetup_PublicRoutes(t *testing.T) {
	r := newTestEngine()

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", "").Code)

	rec := serve(r, http.MethodGet, "/oauth/youtube/callback?error=access_denied", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test?error=access_denied", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/v1/waitlist", "").Code)
}

func TestSetup_SessionRequired(t *testing.T) {
	r := newTestEngine()

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/oauth/youtube/connect"},
		{http.MethodGet, "/api/v1/channels"},
		{http.MethodGet, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/videos"},
		{http.MethodGet, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/analytics"},
		{http.MethodGet, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/settings"},
		{http.MethodGet, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/profile"},
		{http.MethodPut, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/profile"},
		{http.MethodGet, "/api/v1/channels/UCuAXFkgsw1L7xaCfnd5JJOw/analysis"},
		{http.MethodGet, "/api/v1/usage"},
		{http.MethodPost, "/api/v1/analyze"},
		{http.MethodPost, "/api/v1/billing/checkout"},
		{http.MethodPost, "/api/v1/billing/portal"},
	}

	for _, rt := range routes {
		rec := serve(r, rt.method, rt.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
	}
}

func TestSetup_AuthenticatedRequestReachesHandler(t *testing.T) {
	r := newTestEngine()
	token := sessionToken(t)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/v1/channels/bogus/videos", token).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/v1/analyze", token).Code)

	rec := serve(r, http.MethodGet, "/api/v1/oauth/youtube/connect", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://consent.test/?state=")
}
