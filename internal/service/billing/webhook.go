package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/internal/service/events"
	"github.com/squigly/coach-api/pkg/logger"
)

const markProcessedTimeout = 5 * time.Second

// HandleWebhook verifies a Stripe delivery, drops redeliveries of events that
// were already applied, and applies the rest.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	log := logger.L().With(zap.String("eventId", event.ID), zap.String("type", eventType))

	fresh, err := s.billingEvents.Record(ctx, &models.BillingEvent{
		ProviderEventID: event.ID,
		EventType:       eventType,
		Payload:         payload,
	})
	if err != nil {
		return fmt.Errorf("record billing event: %w", err)
	}
	if !fresh {
		log.Info("Skipping already processed Stripe event")
		metrics.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
		return nil
	}

	procErr := s.dispatch(ctx, &event)

	// The outcome must be stored even when the request was cancelled mid-dispatch.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markProcessedTimeout)
	defer cancel()
	if err := s.billingEvents.MarkProcessed(markCtx, event.ID, procErr); err != nil {
		log.Error("Failed to mark billing event processed", zap.Error(err))
	}

	if procErr != nil {
		log.Error("Stripe event handling failed", zap.Error(procErr))
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return procErr
	}
	metrics.WebhookEvents.WithLabelValues(eventType, "ok").Inc()
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, event.ID, &sess)

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		status, ok := s.statusFor(event.Type, &sub)
		if !ok {
			logger.L().Info("Ignoring subscription state",
				zap.String("subscriptionId", sub.ID),
				zap.String("stripeStatus", string(sub.Status)),
			)
			return nil
		}
		return s.subscriptionChanged(ctx, event.ID, &sub, status)

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.invoice(ctx, event.Type, &inv)

	default:
		logger.L().Debug("Ignoring Stripe event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, eventID string, sess *stripe.CheckoutSession) error {
	if sess.ClientReferenceID == "" {
		logger.L().Warn("Checkout session has no client reference", zap.String("sessionId", sess.ID))
		return nil
	}
	userID, err := uuid.Parse(sess.ClientReferenceID)
	if err != nil {
		logger.L().Warn("Checkout session has a malformed client reference",
			zap.String("sessionId", sess.ID), zap.String("clientReferenceId", sess.ClientReferenceID))
		return nil
	}

	status := models.TierStarter
	if sess.Metadata["tier"] == string(models.TierPro) {
		status = models.TierPro
	}

	sub := &models.Subscription{UserID: userID, Status: status}
	if sess.Customer != nil && sess.Customer.ID != "" {
		sub.StripeCustomerID = stripe.String(sess.Customer.ID)
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		sub.StripeSubscriptionID = stripe.String(sess.Subscription.ID)
	}

	if err := s.subs.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	logger.L().Info("Subscription activated",
		zap.String("userId", userID.String()),
		zap.String("status", string(status)),
	)
	s.publish(ctx, userID, status, eventID)
	return nil
}

// statusFor maps a Stripe subscription to the stored status. States that do
// not change entitlement, such as past_due, report false.
func (s *Service) statusFor(eventType stripe.EventType, sub *stripe.Subscription) (models.Tier, bool) {
	if eventType == stripe.EventTypeCustomerSubscriptionDeleted {
		return models.TierCanceled, true
	}

	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if sub.Items != nil {
			for _, item := range sub.Items.Data {
				if item.Price == nil {
					continue
				}
				if tier, ok := s.tierForPrice(item.Price.ID); ok {
					return tier, true
				}
			}
		}
		if tier, ok := models.ParseTier(sub.Metadata["tier"]); ok && tier.Purchasable() {
			return tier, true
		}
		return "", false
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return models.TierCanceled, true
	default:
		return "", false
	}
}

func (s *Service) subscriptionChanged(ctx context.Context, eventID string, sub *stripe.Subscription, status models.Tier) error {
	updated, err := s.subs.UpdateStatusBySubscriptionID(ctx, sub.ID, status)
	if err == nil {
		s.publish(ctx, updated.UserID, status, eventID)
		return nil
	}
	if !db.IsNotFound(err) {
		return fmt.Errorf("update subscription status: %w", err)
	}

	// The checkout event may not have arrived yet; fall back to the user id
	// attached to the subscription at checkout.
	userID, parseErr := uuid.Parse(sub.Metadata["user_id"])
	if parseErr != nil {
		logger.L().Warn("No subscription row for Stripe subscription", zap.String("subscriptionId", sub.ID))
		return nil
	}

	row := &models.Subscription{UserID: userID, Status: status, StripeSubscriptionID: stripe.String(sub.ID)}
	if sub.Customer != nil && sub.Customer.ID != "" {
		row.StripeCustomerID = stripe.String(sub.Customer.ID)
	}
	if err := s.subs.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	s.publish(ctx, userID, status, eventID)
	return nil
}

func (s *Service) invoice(ctx context.Context, eventType stripe.EventType, inv *stripe.Invoice) error {
	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}

	if eventType == stripe.EventTypeInvoicePaymentFailed {
		logger.L().Warn("Invoice payment failed",
			zap.String("invoiceId", inv.ID),
			zap.String("customerId", customerID),
		)
		return nil
	}

	if customerID == "" {
		return nil
	}
	if err := s.subs.TouchByCustomerID(ctx, customerID); err != nil && !db.IsNotFound(err) {
		return fmt.Errorf("touch subscription: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, userID uuid.UUID, status models.Tier, eventID string) {
	ev := events.New(events.TypeSubscriptionChanged, userID, events.SubscriptionChanged{
		Status:        string(status),
		StripeEventID: eventID,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.L().Warn("Failed to publish subscription change", zap.Error(err))
	}
}
