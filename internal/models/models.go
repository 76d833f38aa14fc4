// Package models contains the request and response DTOs of the HTTP API.
package models

import (
	"time"
)

// AnalyzeRequest starts an analysis. The user always comes from the session.
type AnalyzeRequest struct {
	ChannelID string `json:"channelId" binding:"required,max=64"`
	// Fingerprint is the value returned by the videos endpoint.
	Fingerprint string `json:"fingerprint" binding:"max=128"`
}

// ProfileRequest replaces a channel's coaching profile.
type ProfileRequest struct {
	ChannelName  string `json:"channel_name" binding:"max=200"`
	ChannelAbout string `json:"channel_about" binding:"max=5000"`
	Goal         string `json:"goal" binding:"max=1000"`
}

// CheckoutRequest starts a Stripe checkout for a paid tier.
type CheckoutRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// WaitlistRequest adds an email to the pre-launch list.
type WaitlistRequest struct {
	Email string `json:"email" binding:"required,max=320"`
}

// URLResponse carries a redirect target for the browser.
type URLResponse struct {
	URL string `json:"url"`
}

// ChannelDTO is a connected channel.
type ChannelDTO struct {
	ChannelID   string     `json:"channel_id"`
	Title       string     `json:"title"`
	Scope       string     `json:"scope"`
	ConnectedAt time.Time  `json:"connected_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CanRefresh  bool       `json:"can_refresh"`
}

// ErrorResponse represents an error response. Quota fields are set on 429s
// and ReconnectURL when the user must grant consent again.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	Status            int       `json:"status"`
	Error             string    `json:"error"`
	Message           string    `json:"message"`
	Path              string    `json:"path"`
	Reason            string    `json:"reason,omitempty"`
	Remaining         *int      `json:"remaining,omitempty"`
	RetryAfterMinutes int       `json:"retry_after_minutes,omitempty"`
	ReconnectURL      string    `json:"reconnect_url,omitempty"`
}
