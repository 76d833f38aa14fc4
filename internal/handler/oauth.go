package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/validation"
	"github.com/squigly/coach-api/pkg/logger"
)

// OAuthHandler runs the YouTube consent flow.
type OAuthHandler struct {
	channels  service.ChannelService
	reconnect *Reconnector
	signer    *oauth.StateSigner
	validator *validation.Validator
	appURL    string
}

// NewOAuthHandler creates a new OAuthHandler. appURL is where the browser
// lands after the callback.
func NewOAuthHandler(channels service.ChannelService, reconnect *Reconnector, signer *oauth.StateSigner, validator *validation.Validator, appURL string) *OAuthHandler {
	return &OAuthHandler{
		channels:  channels,
		reconnect: reconnect,
		signer:    signer,
		validator: validator,
		appURL:    appURL,
	}
}

// Connect returns the consent URL for the session user. ?channel_id= asks for
// a reconnect of that channel.
func (h *OAuthHandler) Connect(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(c, http.StatusUnauthorized, "A valid session is required"))
		return
	}

	channelID := c.Query("channel_id")
	if channelID != "" && !h.validator.IsValidChannelID(channelID) {
		badRequest(c, "invalid channel ID format: "+channelID)
		return
	}

	u, err := h.reconnect.ConsentURL(oauth.State{UserID: userID, ChannelID: channelID, Reconnect: channelID != ""})
	if err != nil {
		handleError(c, h.reconnect, channelID, err)
		return
	}
	c.JSON(http.StatusOK, models.URLResponse{URL: u})
}

// Callback completes the consent flow and redirects back to the dashboard,
// with ?error=<code> on failure.
func (h *OAuthHandler) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		logger.L().Info("Consent declined", zap.String("error", providerErr))
		h.redirect(c, url.Values{"error": {providerErr}})
		return
	}

	code := c.Query("code")
	if code == "" {
		h.redirect(c, url.Values{"error": {"missing_code"}})
		return
	}
	rawState := c.Query("state")
	if rawState == "" {
		h.redirect(c, url.Values{"error": {"missing_state"}})
		return
	}

	st, err := h.signer.Verify(rawState)
	if err != nil {
		logger.L().Warn("Rejected OAuth state", zap.Error(err))
		h.redirect(c, url.Values{"error": {"invalid_state"}})
		return
	}

	cred, err := h.channels.Connect(c.Request.Context(), st.UserID, code, st.ChannelID)
	if err != nil {
		logger.L().Error("Channel connect failed", zap.Error(err), zap.String("userId", st.UserID.String()))
		h.redirect(c, url.Values{"error": {callbackErrorCode(err)}})
		return
	}

	h.redirect(c, url.Values{"connected": {cred.ChannelID}})
}

func callbackErrorCode(err error) string {
	var up *service.UpstreamError
	var pe *service.PersistenceError
	switch {
	case errors.Is(err, service.ErrChannelMismatch):
		return "channel_mismatch"
	case errors.As(err, &up) && up.Service == "google":
		return "token_exchange"
	case errors.As(err, &up):
		return "channel_fetch"
	case errors.As(err, &pe):
		return "save_channel"
	default:
		return "internal_error"
	}
}

func (h *OAuthHandler) redirect(c *gin.Context, q url.Values) {
	target := h.appURL
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	c.Redirect(http.StatusFound, target)
}
