package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one billable analysis. Rows are never updated or deleted.
type UsageRecord struct {
	ID        int64     `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ChannelID string    `db:"channel_id" json:"channel_id"`
	UsedAt    time.Time `db:"used_at" json:"used_at"`
}
