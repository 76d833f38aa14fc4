package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/validation"
	"github.com/squigly/coach-api/pkg/logger"
)

// AnalysisHandler serves the analyze and usage endpoints.
type AnalysisHandler struct {
	svc       service.AnalysisService
	validator *validation.Validator
	reconnect *Reconnector
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(svc service.AnalysisService, validator *validation.Validator, reconnect *Reconnector) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, validator: validator, reconnect: reconnect}
}

// Analyze runs or serves a channel analysis for the session user.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.L().Warn("Invalid request payload", zap.Error(err), zap.String("path", c.Request.URL.Path))
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validator.ValidateAnalyzeRequest(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.svc.Analyze(c.Request.Context(), service.AnalyzeInput{
		UserID:      userID,
		ChannelID:   req.ChannelID,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		handleError(c, h.reconnect, req.ChannelID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Usage returns the session user's quota snapshot.
func (h *AnalysisHandler) Usage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	usage, err := h.svc.Usage(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.reconnect, "", err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
