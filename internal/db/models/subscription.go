package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the billing status stored in subscriptions.status.
type Tier string

// Tier values accepted by the subscriptions status check.
const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierCanceled Tier = "canceled"
)

// ParseTier accepts the stored or requested tier name. Unknown values report false.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(s); t {
	case TierFree, TierStarter, TierPro, TierCanceled:
		return t, true
	default:
		return "", false
	}
}

// Purchasable reports whether checkout can be started for the tier.
func (t Tier) Purchasable() bool {
	return t == TierStarter || t == TierPro
}

// Subscription is a user's billing state, one row per user.
type Subscription struct {
	ID                   int64     `db:"id" json:"id"`
	UserID               uuid.UUID `db:"user_id" json:"user_id"`
	Status               Tier      `db:"status" json:"status"`
	StripeCustomerID     *string   `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID *string   `db:"stripe_subscription_id" json:"-"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveTier resolves the tier used for quota decisions. Users without a
// row are free.
func (s *Subscription) EffectiveTier() Tier {
	if s == nil {
		return TierFree
	}
	return s.Status
}

// HasCustomer reports whether the billing portal can be opened.
func (s *Subscription) HasCustomer() bool {
	return s != nil && s.StripeCustomerID != nil && *s.StripeCustomerID != ""
}
