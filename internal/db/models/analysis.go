package models

import (
	"time"

	"github.com/google/uuid"
)

// Fixes is the structured suggestion block returned with an analysis, stored
// as JSONB. Known keys are description, shortsTitleTemplate,
// longformTitleTemplate and hashtags.
type Fixes map[string]any

// CachedAnalysis is the most recent analysis for a (user, channel) pair.
type CachedAnalysis struct {
	ID               int64     `db:"id" json:"id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	ChannelID        string    `db:"channel_id" json:"channel_id"`
	AnalysisText     string    `db:"analysis_text" json:"analysis"`
	Fixes            Fixes     `db:"fixes" json:"fixes"`
	VideoFingerprint *string   `db:"video_fingerprint" json:"video_fingerprint,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// FreshAt reports whether the analysis is younger than ttl at now.
func (a *CachedAnalysis) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) < ttl
}

// Fingerprint returns the stored fingerprint or "".
func (a *CachedAnalysis) Fingerprint() string {
	if a.VideoFingerprint == nil {
		return ""
	}
	return *a.VideoFingerprint
}
