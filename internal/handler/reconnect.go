package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/pkg/logger"
)

// ConsentURLBuilder builds the provider consent URL.
type ConsentURLBuilder interface {
	AuthCodeURL(state string, reconnect bool) string
}

// Reconnector issues consent URLs bound to the session user.
type Reconnector struct {
	consent ConsentURLBuilder
	signer  *oauth.StateSigner
}

// NewReconnector creates a new Reconnector.
func NewReconnector(consent ConsentURLBuilder, signer *oauth.StateSigner) *Reconnector {
	return &Reconnector{consent: consent, signer: signer}
}

// ConsentURL signs st and returns the provider consent URL.
func (r *Reconnector) ConsentURL(st oauth.State) (string, error) {
	state, err := r.signer.Sign(st)
	if err != nil {
		return "", err
	}
	return r.consent.AuthCodeURL(state, st.Reconnect), nil
}

// URL builds a consent link for the session user, or "" when unavailable.
// A non-empty channelID forces the consent prompt for that channel.
func (r *Reconnector) URL(c *gin.Context, channelID string) string {
	if r == nil {
		return ""
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return ""
	}
	u, err := r.ConsentURL(oauth.State{UserID: userID, ChannelID: channelID, Reconnect: channelID != ""})
	if err != nil {
		logger.L().Error("Failed to build reconnect URL", zap.Error(err))
		return ""
	}
	return u
}
