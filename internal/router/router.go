package router

import (
	"github.com/gin-gonic/gin"

	"github.com/squigly/coach-api/internal/handler"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Health   *handler.HealthHandler
	Analysis *handler.AnalysisHandler
	Channel  *handler.ChannelHandler
	OAuth    *handler.OAuthHandler
	Billing  *handler.BillingHandler
	Waitlist *handler.WaitlistHandler
}

// Setup configures the middleware stack and all routes on the engine.
func Setup(r *gin.Engine, h *Handlers, auth *middleware.SessionAuth) {
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.Middleware())

	// Unauthenticated
	r.GET("/health/live", h.Health.LivenessProbe)
	r.GET("/health/ready", h.Health.ReadinessProbe)
	r.GET("/metrics", metrics.Handler())
	r.GET("/oauth/youtube/callback", h.OAuth.Callback)
	r.POST("/webhooks/stripe", h.Billing.Webhook)

	api := r.Group("/api/v1")
	api.POST("/waitlist", h.Waitlist.Join)

	// Session required
	authed := api.Group("", auth.Middleware())

	authed.GET("/oauth/youtube/connect", h.OAuth.Connect)

	authed.GET("/channels", h.Channel.List)
	authed.GET("/channels/:channelId/videos", h.Channel.Videos)
	authed.GET("/channels/:channelId/analytics", h.Channel.Analytics)
	authed.GET("/channels/:channelId/settings", h.Channel.Settings)
	authed.GET("/channels/:channelId/profile", h.Channel.GetProfile)
	authed.PUT("/channels/:channelId/profile", h.Channel.PutProfile)
	authed.GET("/channels/:channelId/analysis", h.Channel.LatestAnalysis)

	authed.GET("/usage", h.Analysis.Usage)
	authed.POST("/analyze", h.Analysis.Analyze)

	authed.POST("/billing/checkout", h.Billing.Checkout)
	authed.POST("/billing/portal", h.Billing.Portal)
}
