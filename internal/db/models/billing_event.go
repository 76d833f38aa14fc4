package models

import "time"

// BillingEvent records a verified Stripe webhook delivery. ProviderEventID is
// unique so redeliveries are detected before any side effect runs.
type BillingEvent struct {
	ID              int64      `db:"id" json:"id"`
	ProviderEventID string     `db:"provider_event_id" json:"provider_event_id"`
	EventType       string     `db:"event_type" json:"event_type"`
	Payload         []byte     `db:"payload" json:"-"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingError *string    `db:"processing_error" json:"processing_error,omitempty"`
	ClaimedAt       time.Time  `db:"claimed_at" json:"claimed_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
