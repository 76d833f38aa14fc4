// Package oauth manages the Google OAuth grant behind each connected channel.
package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Scopes requested on connect. Analytics is read-only.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/yt-analytics.readonly",
}

// Google wraps the OAuth client registered for YouTube access.
type Google struct {
	cfg *oauth2.Config
}

// NewGoogle creates a new Google client. Credentials are sent in the form body,
// the way Google's token endpoint documents them.
func NewGoogle(clientID, clientSecret, redirectURL, authURL, tokenURL string) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AuthCodeURL builds the consent URL. A reconnect skips the account chooser
// but still forces consent so Google issues a new refresh token.
func (g *Google) AuthCodeURL(state string, reconnect bool) string {
	prompt := "select_account consent"
	if reconnect {
		prompt = "consent"
	}
	return g.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", prompt),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for tokens.
func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", newRefreshFailed(err))
	}
	return tok, nil
}

// Refresh performs a single refresh_token grant.
func (g *Google) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// GrantedScope returns the space-separated scope list Google reported.
func GrantedScope(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return strings.Join(Scopes, " ")
}
