package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

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
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *mockCredentialRepository) UpdateAccessToken(ctx context.Context, userID uuid.UUID, channelID, accessToken string, expiry time.Time) error {
	args := m.Called(ctx, userID, channelID, accessToken, expiry)
	return args.Error(0)
}

// tokenServer counts hits and answers with the given status and body.
func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "1//stored-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newManager(store *mockCredentialRepository, tokenURL string, now time.Time) *TokenManager {
	g := NewGoogle("client-id", "client-secret", "https://api.example.com/oauth/youtube/callback",
		"https://accounts.example.com/auth", tokenURL)
	m := NewTokenManager(store, g)
	m.now = func() time.Time { return now }
	return m
}

var (
	testUser = uuid.MustParse("7f9c2b1e-2d7c-4a8e-9f0a-1b2c3d4e5f60")
	now      = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
)

func refreshToken() *string {
	s := "1//stored-refresh"
	return &s
}

func TestEnsureValid_NotConnected(t *testing.T) {
	t.Parallel()

	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(nil, db.WrapError(db.ErrNotFound, "get credential"))
	srv, hits := tokenServer(t, http.StatusOK, `{}`)

	_, err := newManager(store, srv.URL, now).EnsureValid(context.Background(), testUser, "UCabc")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestEnsureValid_ValidTokenIsIdempotent(t *testing.T) {
	t.Parallel()

	expiry := now.Add(10 * time.Minute)
	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(&models.Credential{
		AccessToken:  "ya29.valid",
		RefreshToken: refreshToken(),
		Expiry:       &expiry,
	}, nil)
	srv, hits := tokenServer(t, http.StatusOK, `{}`)
	m := newManager(store, srv.URL, now)

	for i := 0; i < 3; i++ {
		tok, err := m.EnsureValid(context.Background(), testUser, "UCabc")
		require.NoError(t, err)
		assert.Equal(t, "ya29.valid", tok)
	}

	assert.Zero(t, atomic.LoadInt32(hits))
	store.AssertNotCalled(t, "UpdateAccessToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValid_ExpiredWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cred *models.Credential
	}{
		{name: "nil expiry", cred: &models.Credential{AccessToken: "old"}},
		{name: "past expiry", cred: func() *models.Credential {
			past := now.Add(-time.Minute)
			return &models.Credential{AccessToken: "old", Expiry: &past}
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockCredentialRepository)
			store.On("Get", mock.Anything, testUser, "UCabc").Return(tt.cred, nil)
			srv, hits := tokenServer(t, http.StatusOK, `{}`)

			_, err := newManager(store, srv.URL, now).EnsureValid(context.Background(), testUser, "UCabc")
			assert.ErrorIs(t, err, ErrRefreshUnavailable)
			assert.Zero(t, atomic.LoadInt32(hits))
		})
	}
}

func TestEnsureValid_RefreshPersistsNewExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantExpiry time.Time
	}{
		{
			name:       "uses expires_in",
			body:       `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":1800}`,
			wantExpiry: now.Add(30 * time.Minute),
		},
		{
			name:       "defaults to one hour",
			body:       `{"access_token":"ya29.fresh","token_type":"Bearer"}`,
			wantExpiry: now.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expired := now.Add(-time.Second)
			store := new(mockCredentialRepository)
			store.On("Get", mock.Anything, testUser, "UCabc").Return(&models.Credential{
				AccessToken:  "ya29.old",
				RefreshToken: refreshToken(),
				Expiry:       &expired,
			}, nil)
			store.On("UpdateAccessToken", mock.Anything, testUser, "UCabc", "ya29.fresh", tt.wantExpiry).Return(nil)
			srv, hits := tokenServer(t, http.StatusOK, tt.body)

			tok, err := newManager(store, srv.URL, now).EnsureValid(context.Background(), testUser, "UCabc")
			require.NoError(t, err)
			assert.Equal(t, "ya29.fresh", tok)
			assert.Equal(t, int32(1), atomic.LoadInt32(hits))
			assert.True(t, tt.wantExpiry.After(now))
			store.AssertExpectations(t)
		})
	}
}

func TestEnsureValid_RefreshRejected(t *testing.T) {
	t.Parallel()

	expired := now.Add(-time.Hour)
	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(&models.Credential{
		AccessToken:  "ya29.old",
		RefreshToken: refreshToken(),
		Expiry:       &expired,
	}, nil)
	srv, hits := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)

	_, err := newManager(store, srv.URL, now).EnsureValid(context.Background(), testUser, "UCabc")
	require.Error(t, err)

	var failed *RefreshFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, http.StatusBadRequest, failed.StatusCode)
	assert.Contains(t, failed.Payload, "invalid_grant")
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	store.AssertNotCalled(t, "UpdateAccessToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValid_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	expired := now.Add(-time.Hour)
	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(&models.Credential{
		AccessToken:  "ya29.old",
		RefreshToken: refreshToken(),
		Expiry:       &expired,
	}, nil)

	_, err := newManager(store, url, now).EnsureValid(context.Background(), testUser, "UCabc")

	var failed *RefreshFailedError
	require.True(t, errors.As(err, &failed))
	assert.Zero(t, failed.StatusCode)
}

func TestEnsureValid_PersistFailureStillReturnsToken(t *testing.T) {
	t.Parallel()

	expired := now.Add(-time.Hour)
	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(&models.Credential{
		AccessToken:  "ya29.old",
		RefreshToken: refreshToken(),
		Expiry:       &expired,
	}, nil)
	store.On("UpdateAccessToken", mock.Anything, testUser, "UCabc", "ya29.fresh", mock.Anything).Return(errors.New("db down"))
	srv, _ := tokenServer(t, http.StatusOK, `{"access_token":"ya29.fresh","expires_in":3600}`)

	tok, err := newManager(store, srv.URL, now).EnsureValid(context.Background(), testUser, "UCabc")
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", tok)
}

func TestEnsureValid_StoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("conn reset")
	store := new(mockCredentialRepository)
	store.On("Get", mock.Anything, testUser, "UCabc").Return(nil, boom)

	_, err := newManager(store, "http://unused", now).EnsureValid(context.Background(), testUser, "UCabc")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotConnected)
}
