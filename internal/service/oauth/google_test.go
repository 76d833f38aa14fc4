package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogle_AuthCodeURL(t *testing.T) {
	g := NewGoogle("client-id", "secret", "https://api.example.com/oauth/youtube/callback",
		"https://accounts.example.com/auth", "https://accounts.example.com/token")

	tests := []struct {
		name       string
		reconnect  bool
		wantPrompt string
	}{
		{name: "first connect lets the user pick an account", reconnect: false, wantPrompt: "select_account consent"},
		{name: "reconnect forces consent only", reconnect: true, wantPrompt: "consent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(g.AuthCodeURL("state-token", tt.reconnect))
			require.NoError(t, err)

			q := u.Query()
			assert.Equal(t, "accounts.example.com", u.Host)
			assert.Equal(t, "state-token", q.Get("state"))
			assert.Equal(t, "offline", q.Get("access_type"))
			assert.Equal(t, tt.wantPrompt, q.Get("prompt"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Contains(t, q.Get("scope"), "youtube.readonly")
			assert.Contains(t, q.Get("scope"), "yt-analytics.readonly")
		})
	}
}

func TestGoogle_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://api.example.com/oauth/youtube/callback", r.PostForm.Get("redirect_uri"))
		_, _ = w.Write([]byte(`{"access_token":"ya29.a","refresh_token":"1//r","expires_in":3599,"scope":"https://www.googleapis.com/auth/youtube.readonly","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	g := NewGoogle("client-id", "secret", "https://api.example.com/oauth/youtube/callback", srv.URL+"/auth", srv.URL+"/token")

	tok, err := g.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "ya29.a", tok.AccessToken)
	assert.Equal(t, "1//r", tok.RefreshToken)
	assert.Equal(t, "https://www.googleapis.com/auth/youtube.readonly", GrantedScope(tok))

	_, err = g.Exchange(context.Background(), "bad-code")
	var failed *RefreshFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, http.StatusBadRequest, failed.StatusCode)
}

func TestStateSigner(t *testing.T) {
	signer := NewStateSigner("state-secret", time.Minute)
	userID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		token, err := signer.Sign(State{UserID: userID, ChannelID: "UCabc", Reconnect: true})
		require.NoError(t, err)

		st, err := signer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, st.UserID)
		assert.Equal(t, "UCabc", st.ChannelID)
		assert.True(t, st.Reconnect)
	})

	t.Run("foreign secret is rejected", func(t *testing.T) {
		token, err := NewStateSigner("other", time.Minute).Sign(State{UserID: userID})
		require.NoError(t, err)

		_, err = signer.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("expired state is rejected", func(t *testing.T) {
		expiredSigner := &StateSigner{secret: []byte("state-secret"), ttl: -time.Minute}
		token, err := expiredSigner.Sign(State{UserID: userID})
		require.NoError(t, err)

		_, err = signer.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := signer.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}
