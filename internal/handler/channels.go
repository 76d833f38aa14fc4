package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/middleware"
	apimodels "github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/validation"
)

// ChannelHandler serves connected-channel data.
type ChannelHandler struct {
	svc       service.ChannelService
	validator *validation.Validator
	reconnect *Reconnector
}

// NewChannelHandler creates a new ChannelHandler.
func NewChannelHandler(svc service.ChannelService, validator *validation.Validator, reconnect *Reconnector) *ChannelHandler {
	return &ChannelHandler{svc: svc, validator: validator, reconnect: reconnect}
}

// scope resolves the session user and the :channelId path parameter. It
// writes the error response itself and reports false on failure.
func (h *ChannelHandler) scope(c *gin.Context) (uuid.UUID, string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return uuid.Nil, "", false
	}
	channelID := c.Param("channelId")
	if !h.validator.IsValidChannelID(channelID) {
		badRequest(c, "invalid channel ID format: "+channelID)
		return uuid.Nil, "", false
	}
	return userID, channelID, true
}

// List returns the channels the session user has connected.
func (h *ChannelHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	creds, err := h.svc.ListChannels(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.reconnect, "", err)
		return
	}

	out := make([]apimodels.ChannelDTO, 0, len(creds))
	for _, cr := range creds {
		out = append(out, apimodels.ChannelDTO{
			ChannelID:   cr.ChannelID,
			Title:       cr.ChannelTitle,
			Scope:       cr.Scope,
			ConnectedAt: cr.CreatedAt,
			ExpiresAt:   cr.Expiry,
			CanRefresh:  cr.HasRefreshToken(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"channels": out})
}

// Videos returns recent uploads and their fingerprint.
func (h *ChannelHandler) Videos(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}
	list, err := h.svc.Videos(c.Request.Context(), userID, channelID)
	if err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Analytics returns the trailing 30-day summary.
func (h *ChannelHandler) Analytics(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}
	summary, err := h.svc.Analytics(c.Request.Context(), userID, channelID)
	if err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Settings returns the channel's branding settings.
func (h *ChannelHandler) Settings(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}
	settings, err := h.svc.Settings(c.Request.Context(), userID, channelID)
	if err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// GetProfile returns the coaching profile.
func (h *ChannelHandler) GetProfile(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}
	p, err := h.svc.Profile(c.Request.Context(), userID, channelID)
	if err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutProfile replaces the coaching profile.
func (h *ChannelHandler) PutProfile(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}

	var req apimodels.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	p := &models.Profile{
		UserID:       userID,
		ChannelID:    channelID,
		ChannelName:  req.ChannelName,
		ChannelAbout: req.ChannelAbout,
		Goal:         req.Goal,
	}
	if err := h.svc.SaveProfile(c.Request.Context(), p); err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// LatestAnalysis returns the stored analysis without consuming quota.
func (h *ChannelHandler) LatestAnalysis(c *gin.Context) {
	userID, channelID, ok := h.scope(c)
	if !ok {
		return
	}
	a, err := h.svc.LatestAnalysis(c.Request.Context(), userID, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			c.JSON(http.StatusNotFound, errorBody(c, http.StatusNotFound, "No analysis yet for this channel"))
			return
		}
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
