package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the coaching context a user keeps per channel.
type Profile struct {
	ID           int64     `db:"id" json:"-"`
	UserID       uuid.UUID `db:"user_id" json:"-"`
	ChannelID    string    `db:"channel_id" json:"channel_id"`
	ChannelName  string    `db:"channel_name" json:"channel_name"`
	ChannelAbout string    `db:"channel_about" json:"channel_about"`
	Goal         string    `db:"goal" json:"goal"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
