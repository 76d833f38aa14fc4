package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dbmodels "github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service/billing"
	"github.com/squigly/coach-api/pkg/logger"
)

// maxWebhookBody bounds Stripe payloads.
const maxWebhookBody = 65536

// BillingService is the billing surface the handler needs.
type BillingService interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, tier dbmodels.Tier) (string, error)
	CreatePortal(ctx context.Context, userID uuid.UUID) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// BillingHandler serves checkout, portal and the Stripe webhook.
type BillingHandler struct {
	svc BillingService
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(svc BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

// Checkout starts a subscription checkout for the session user.
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	u, err := h.svc.CreateCheckout(c.Request.Context(), userID, dbmodels.Tier(req.Tier))
	if err != nil {
		handleError(c, nil, "", err)
		return
	}
	c.JSON(http.StatusOK, models.URLResponse{URL: u})
}

// Portal opens the Stripe customer portal for the session user.
func (h *BillingHandler) Portal(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	u, err := h.svc.CreatePortal(c.Request.Context(), userID)
	if err != nil {
		handleError(c, nil, "", err)
		return
	}
	c.JSON(http.StatusOK, models.URLResponse{URL: u})
}

// Webhook receives Stripe events. Non-signature failures return 500 so
// Stripe redelivers.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.L().Warn("Failed to read webhook body", zap.Error(err))
		badRequest(c, "Failed to read request body")
		return
	}

	err = h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature):
		logger.L().Warn("Webhook signature verification failed", zap.Error(err))
		badRequest(c, "Invalid signature")
	default:
		c.JSON(http.StatusInternalServerError, errorBody(c, http.StatusInternalServerError, "Handler failed"))
	}
}
