// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/service/billing"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/service/quota"
	"github.com/squigly/coach-api/internal/service/youtube"
	"github.com/squigly/coach-api/pkg/logger"
)

func errorBody(c *gin.Context, status int, message string) models.ErrorResponse {
	return models.ErrorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(c, http.StatusBadRequest, message))
}

// reconnectRequired reports whether err means the user must grant consent again.
func reconnectRequired(err error) bool {
	if errors.Is(err, oauth.ErrRefreshUnavailable) ||
		errors.Is(err, youtube.ErrInsufficientScope) ||
		errors.Is(err, youtube.ErrUnauthorized) {
		return true
	}
	var rf *oauth.RefreshFailedError
	return errors.As(err, &rf) && (rf.StatusCode == http.StatusBadRequest || rf.StatusCode == http.StatusUnauthorized)
}

// handleError translates service errors into responses. channelID is used to
// build a reconnect link when consent has to be granted again.
func handleError(c *gin.Context, reconnect *Reconnector, channelID string, err error) {
	path := c.Request.URL.Path

	var rl *service.RateLimitError
	if errors.As(err, &rl) {
		writeRateLimited(c, rl.Decision)
		return
	}

	switch {
	case errors.Is(err, oauth.ErrNotConnected):
		body := errorBody(c, http.StatusForbidden, "YouTube channel is not connected")
		body.ReconnectURL = reconnect.URL(c, "")
		c.JSON(http.StatusForbidden, body)
		return

	case reconnectRequired(err):
		logger.L().Info("Reconnect required", zap.Error(err), zap.String("path", path))
		body := errorBody(c, http.StatusForbidden, "YouTube access must be granted again")
		body.ReconnectURL = reconnect.URL(c, channelID)
		c.JSON(http.StatusForbidden, body)
		return

	case errors.Is(err, service.ErrNoVideos):
		badRequest(c, "Channel has no uploads to analyze")
		return

	case errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, billing.ErrInvalidTier),
		errors.Is(err, billing.ErrInvalidSignature):
		badRequest(c, err.Error())
		return

	case db.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorBody(c, http.StatusNotFound, "Not found"))
		return
	}

	var up *service.UpstreamError
	if errors.As(err, &up) {
		logger.L().Error("Upstream error",
			zap.Error(err),
			zap.String("service", up.Service),
			zap.Int("upstreamStatus", up.StatusCode),
			zap.String("path", path),
		)
		c.JSON(http.StatusBadGateway, errorBody(c, http.StatusBadGateway, up.Error()))
		return
	}

	var rf *oauth.RefreshFailedError
	if errors.As(err, &rf) {
		logger.L().Error("Token refresh failed", zap.Error(err), zap.String("path", path))
		c.JSON(http.StatusBadGateway, errorBody(c, http.StatusBadGateway, "Failed to refresh YouTube access"))
		return
	}

	var pe *service.PersistenceError
	if errors.As(err, &pe) {
		logger.L().Error("Persistence error", zap.Error(err), zap.String("op", pe.Op), zap.String("path", path))
		c.JSON(http.StatusInternalServerError, errorBody(c, http.StatusInternalServerError, "Failed to "+pe.Op))
		return
	}

	logger.L().Error("Unexpected error", zap.Error(err), zap.String("path", path))
	c.JSON(http.StatusInternalServerError, errorBody(c, http.StatusInternalServerError, "An unexpected error occurred"))
}

func writeRateLimited(c *gin.Context, d *quota.Decision) {
	body := errorBody(c, http.StatusTooManyRequests, d.Message)
	body.Reason = string(d.Reason)
	remaining := d.Remaining

	if d.Reason == quota.ReasonHourlyLimit {
		// remaining follows the limit that denied the request.
		remaining = max(quota.HourlyLimit-d.HourlyUsed, 0)
		body.RetryAfterMinutes = d.RetryAfterMinutes()
		c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter/time.Second)))
	}
	body.Remaining = &remaining
	c.JSON(http.StatusTooManyRequests, body)
}
