package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/validation"
	"github.com/squigly/coach-api/pkg/logger"
)

// WaitlistHandler collects pre-launch signups.
type WaitlistHandler struct {
	repo      repository.WaitlistRepository
	validator *validation.Validator
}

// NewWaitlistHandler creates a new WaitlistHandler.
func NewWaitlistHandler(repo repository.WaitlistRepository, validator *validation.Validator) *WaitlistHandler {
	return &WaitlistHandler{repo: repo, validator: validator}
}

// Join adds an email. Joining twice is not an error.
func (h *WaitlistHandler) Join(c *gin.Context) {
	var req models.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Valid email required")
		return
	}
	email, err := h.validator.NormalizeEmail(req.Email)
	if err != nil {
		badRequest(c, "Valid email required")
		return
	}

	if _, err := h.repo.Add(c.Request.Context(), email); err != nil {
		if db.IsDuplicateKey(err) {
			c.JSON(http.StatusOK, gin.H{"message": "You're already on the Squigly waitlist!"})
			return
		}
		logger.L().Error("Failed to add waitlist entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(c, http.StatusInternalServerError, "Something went wrong. Try again later."))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Welcome to Squigly! You're on the early access list."})
}
