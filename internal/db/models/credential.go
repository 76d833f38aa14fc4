package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a stored YouTube OAuth grant for one (user, channel) pair.
type Credential struct {
	ID           int64      `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	ChannelID    string     `db:"channel_id" json:"channel_id"`
	ChannelTitle string     `db:"channel_title" json:"channel_title"`
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken *string    `db:"refresh_token" json:"-"`
	Scope        string     `db:"scope" json:"scope"`
	TokenType    string     `db:"token_type" json:"-"`
	Expiry       *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsExpired treats a missing expiry as expired.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.Expiry == nil || !c.Expiry.After(now)
}

// HasRefreshToken reports whether a refresh can be attempted.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}
