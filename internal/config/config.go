// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Google   GoogleConfig
	LLM      LLMConfig
	Stripe   StripeConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Analysis AnalysisConfig
	Logging  LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	// PublicURL is the externally reachable base URL of this API.
	PublicURL string
	// AppURL is the dashboard the browser lands on after OAuth and checkout.
	AppURL string
}

// DatabaseConfig contains database connection configuration. URL, when set,
// wins over the discrete fields.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	URL            string
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// DSN returns the connection string used by pgx and golang-migrate.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// AuthConfig holds the secrets used to verify session tokens and sign OAuth state.
type AuthConfig struct {
	JWTSecret   string
	Audience    string
	StateSecret string
	StateTTL    time.Duration
}

// GoogleConfig contains the OAuth client used for YouTube access.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// LLMConfig configures the chat-completions endpoint used for coaching.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// StripeConfig contains billing provider credentials and price identifiers.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceStarter  string
	PricePro      string
}

// RedisConfig configures the optional analysis cache. An empty URL disables it.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	User     string
	Password string
	Exchange string
	Port     int
}

// AnalysisConfig tunes the analysis gate and prompt.
type AnalysisConfig struct {
	CacheTTL           time.Duration
	EnforceFingerprint bool
	MaxUploads         int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables. Every key is
// reachable from the environment as APP_<SECTION>_<KEY>, e.g. APP_LLM_APIKEY.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every missing secret at once so a misconfigured deploy
// fails with a single readable message.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"auth.jwtsecret", c.Auth.JWTSecret},
		{"auth.statesecret", c.Auth.StateSecret},
		{"google.clientid", c.Google.ClientID},
		{"google.clientsecret", c.Google.ClientSecret},
		{"llm.apikey", c.LLM.APIKey},
		{"stripe.secretkey", c.Stripe.SecretKey},
		{"stripe.webhooksecret", c.Stripe.WebhookSecret},
		{"stripe.pricestarter", c.Stripe.PriceStarter},
		{"stripe.pricepro", c.Stripe.PricePro},
		{"server.publicurl", c.Server.PublicURL},
		{"server.appurl", c.Server.AppURL},
	}

	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Analysis.CacheTTL <= 0 {
		errs = append(errs, errors.New("analysis.cachettl must be positive"))
	}

	return errors.Join(errs...)
}

// GoogleRedirectURL is the OAuth callback registered with Google.
func (c *Config) GoogleRedirectURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/oauth/youtube/callback"
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.publicurl", "http://localhost:8080")
	viper.SetDefault("server.appurl", "http://localhost:3000")

	// Database
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "squigly")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Auth
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.audience", "authenticated")
	viper.SetDefault("auth.statesecret", "")
	viper.SetDefault("auth.statettl", 10*time.Minute)

	// Google OAuth
	viper.SetDefault("google.clientid", "")
	viper.SetDefault("google.clientsecret", "")
	viper.SetDefault("google.authurl", "https://accounts.google.com/o/oauth2/auth")
	viper.SetDefault("google.tokenurl", "https://oauth2.googleapis.com/token")

	// LLM
	viper.SetDefault("llm.baseurl", "https://api.x.ai/v1")
	viper.SetDefault("llm.apikey", "")
	viper.SetDefault("llm.model", "grok-4-1-fast-reasoning")
	viper.SetDefault("llm.timeout", 120*time.Second)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxtokens", 4000)

	// Stripe
	viper.SetDefault("stripe.secretkey", "")
	viper.SetDefault("stripe.webhooksecret", "")
	viper.SetDefault("stripe.pricestarter", "")
	viper.SetDefault("stripe.pricepro", "")

	// Redis
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", 24*time.Hour)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "squigly.events")

	// Analysis
	viper.SetDefault("analysis.cachettl", 24*time.Hour)
	viper.SetDefault("analysis.enforcefingerprint", false)
	viper.SetDefault("analysis.maxuploads", 50)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
