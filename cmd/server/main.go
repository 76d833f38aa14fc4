package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/config"
	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/handler"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/internal/middleware"
	"github.com/squigly/coach-api/internal/router"
	"github.com/squigly/coach-api/internal/service"
	"github.com/squigly/coach-api/internal/service/billing"
	"github.com/squigly/coach-api/internal/service/cache"
	"github.com/squigly/coach-api/internal/service/events"
	"github.com/squigly/coach-api/internal/service/llm"
	"github.com/squigly/coach-api/internal/service/oauth"
	"github.com/squigly/coach-api/internal/service/quota"
	"github.com/squigly/coach-api/internal/service/youtube"
	"github.com/squigly/coach-api/internal/validation"
	"github.com/squigly/coach-api/pkg/logger"
)

func main() {
	// Load configuration from file and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// Initialize database connection
	pool, err := db.NewPool(ctx, cfg.Database.DSN(), db.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	metrics.RegisterPool(pool)
	logger.Log.Info("Database connection established", zap.Int32("maxConns", pool.Config().MaxConns))

	// Initialize repositories
	credentials := repository.NewCredentialRepository(pool)
	profiles := repository.NewProfileRepository(pool)
	subscriptions := repository.NewSubscriptionRepository(pool)
	usage := repository.NewUsageRepository(pool)
	billingEvents := repository.NewBillingEventRepository(pool)
	waitlist := repository.NewWaitlistRepository(pool)

	healthChecks := []handler.HealthCheck{{Name: "database", Check: pool.Ping}}

	// Redis is optional; analyses fall back to Postgres
	rdb, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Log.Warn("Redis unavailable, analysis cache disabled", zap.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Log.Info("Analysis cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}
	analyses := cache.NewAnalysisCache(repository.NewAnalysisRepository(pool), rdb, cfg.Redis.TTL)

	// Initialize event publisher
	publisher, err := events.NewPublisher(&cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()
	if amqpPub, ok := publisher.(*events.AMQPPublisher); ok {
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if !amqpPub.IsHealthy() {
					return errors.New("rabbitmq connection closed")
				}
				return nil
			},
		})
		logger.Log.Info("Event publishing enabled", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	// Initialize Google OAuth and YouTube clients
	google := oauth.NewGoogle(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		cfg.GoogleRedirectURL(),
		cfg.Google.AuthURL,
		cfg.Google.TokenURL,
	)
	signer := oauth.NewStateSigner(cfg.Auth.StateSecret, cfg.Auth.StateTTL)
	tokens := oauth.NewTokenManager(credentials, google)
	yt := youtube.NewClient()

	// Initialize coaching model client
	coach := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})

	// Initialize quota gate
	gate := quota.NewGate(usage, analyses,
		quota.WithCacheTTL(cfg.Analysis.CacheTTL),
		quota.WithFingerprintEnforcement(cfg.Analysis.EnforceFingerprint),
	)

	// Initialize services
	analysisSvc := service.NewAnalysisService(service.AnalysisDeps{
		Subscriptions: subscriptions,
		Gate:          gate,
		Tokens:        tokens,
		YouTube:       yt,
		Coach:         coach,
		Ledger:        usage,
		Results:       analyses,
		Profiles:      profiles,
		Publisher:     publisher,
		MaxUploads:    cfg.Analysis.MaxUploads,
	})
	channelSvc := service.NewChannelService(service.ChannelDeps{
		Credentials: credentials,
		Profiles:    profiles,
		Results:     analyses,
		Tokens:      tokens,
		YouTube:     yt,
		OAuth:       google,
		MaxUploads:  cfg.Analysis.MaxUploads,
	})
	billingSvc := billing.NewService(billing.NewStripeClient(cfg.Stripe.SecretKey), subscriptions, billingEvents, publisher, billing.Config{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceStarter:  cfg.Stripe.PriceStarter,
		PricePro:      cfg.Stripe.PricePro,
		AppURL:        cfg.Server.AppURL,
	})

	validator := validation.New(false)
	reconnect := handler.NewReconnector(google, signer)

	// Set up router
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	router.Setup(engine, &router.Handlers{
		Health:   handler.NewHealthHandler(healthChecks...),
		Analysis: handler.NewAnalysisHandler(analysisSvc, validator, reconnect),
		Channel:  handler.NewChannelHandler(channelSvc, validator, reconnect),
		OAuth:    handler.NewOAuthHandler(channelSvc, reconnect, signer, validator, cfg.Server.AppURL),
		Billing:  handler.NewBillingHandler(billingSvc),
		Waitlist: handler.NewWaitlistHandler(waitlist, validator),
	}, middleware.NewSessionAuth(cfg.Auth.JWTSecret, cfg.Auth.Audience))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Analyses wait on the LLM.
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Log.Info("Server stopped gracefully")
	return nil
}
