// Package billing creates Stripe checkout and portal sessions and applies
// Stripe webhook events to the subscriptions table.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/service/events"
	"github.com/squigly/coach-api/pkg/logger"
)

var (
	// ErrNoCustomer means the user has never completed a checkout.
	ErrNoCustomer = errors.New("no active subscription found")
	// ErrInvalidTier means checkout was requested for a tier that cannot be bought.
	ErrInvalidTier = errors.New("tier must be starter or pro")
	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// CheckoutSessionCreator is satisfied by the stripe checkout session client.
type CheckoutSessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// PortalSessionCreator is satisfied by the stripe billing portal session client.
type PortalSessionCreator interface {
	New(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// Config holds the Stripe identifiers and the dashboard URL users return to.
type Config struct {
	WebhookSecret string
	PriceStarter  string
	PricePro      string
	AppURL        string
}

// Service handles subscription billing.
type Service struct {
	checkout      CheckoutSessionCreator
	portal        PortalSessionCreator
	subs          repository.SubscriptionRepository
	billingEvents repository.BillingEventRepository
	publisher     events.Publisher
	cfg           Config
}

// NewStripeClient builds the process-wide Stripe API client.
func NewStripeClient(secretKey string) *client.API {
	return client.New(secretKey, nil)
}

// NewService creates a billing Service backed by the Stripe API client.
func NewService(api *client.API, subs repository.SubscriptionRepository, billingEvents repository.BillingEventRepository, publisher events.Publisher, cfg Config) *Service {
	return newService(api.CheckoutSessions, api.BillingPortalSessions, subs, billingEvents, publisher, cfg)
}

func newService(checkout CheckoutSessionCreator, portal PortalSessionCreator, subs repository.SubscriptionRepository, billingEvents repository.BillingEventRepository, publisher events.Publisher, cfg Config) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		checkout:      checkout,
		portal:        portal,
		subs:          subs,
		billingEvents: billingEvents,
		publisher:     publisher,
		cfg:           cfg,
	}
}

func (s *Service) priceFor(tier models.Tier) string {
	if tier == models.TierPro {
		return s.cfg.PricePro
	}
	return s.cfg.PriceStarter
}

func (s *Service) tierForPrice(priceID string) (models.Tier, bool) {
	switch priceID {
	case s.cfg.PricePro:
		return models.TierPro, true
	case s.cfg.PriceStarter:
		return models.TierStarter, true
	default:
		return "", false
	}
}

// CreateCheckout starts a subscription checkout for the session user and
// returns the hosted checkout URL.
func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, tier models.Tier) (string, error) {
	if !tier.Purchasable() {
		return "", ErrInvalidTier
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.priceFor(tier)), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.cfg.AppURL + "?success=true"),
		CancelURL:         stripe.String(s.cfg.AppURL + "?canceled=true"),
		ClientReferenceID: stripe.String(userID.String()),
		SubscriptionData:  &stripe.CheckoutSessionSubscriptionDataParams{},
	}
	params.AddMetadata("tier", string(tier))
	params.SubscriptionData.AddMetadata("user_id", userID.String())
	params.SubscriptionData.AddMetadata("tier", string(tier))

	existing, err := s.subs.GetByUserID(ctx, userID)
	if err != nil && !db.IsNotFound(err) {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if existing.HasCustomer() {
		params.Customer = existing.StripeCustomerID
	}

	sess, err := s.checkout.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	logger.L().Info("Created checkout session",
		zap.String("userId", userID.String()),
		zap.String("tier", string(tier)),
		zap.String("sessionId", sess.ID),
	)
	return sess.URL, nil
}

// CreatePortal opens the customer portal for the session user.
func (s *Service) CreatePortal(ctx context.Context, userID uuid.UUID) (string, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", ErrNoCustomer
		}
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if !sub.HasCustomer() {
		return "", ErrNoCustomer
	}

	sess, err := s.portal.New(&stripe.BillingPortalSessionParams{
		Customer:  sub.StripeCustomerID,
		ReturnURL: stripe.String(s.cfg.AppURL),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}
