// Package quota decides whether a user may run a new channel analysis.
package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/pkg/logger"
)

const (
	// HourlyLimit caps analyses per rolling hour regardless of tier.
	HourlyLimit = 5

	// DefaultCacheTTL is how long a stored analysis is served instead of recomputing.
	DefaultCacheTTL = 24 * time.Hour

	hourlyWindow = time.Hour
)

// MonthlyLimit returns the calendar-month allowance for a tier. Canceled and
// unrecognized tiers get the free allowance.
func MonthlyLimit(tier models.Tier) int {
	switch tier {
	case models.TierPro:
		return 500
	case models.TierStarter:
		return 100
	default:
		return 1
	}
}

// Outcome is the gate's verdict.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeCached  Outcome = "cached"
	OutcomeDenied  Outcome = "denied"
)

// Reason explains a denial.
type Reason string

const (
	ReasonMonthlyLimit Reason = "monthly_limit_exceeded"
	ReasonHourlyLimit  Reason = "hourly_limit_exceeded"
)

// Request is one authorization query.
type Request struct {
	UserID    uuid.UUID
	ChannelID string
	Tier      models.Tier
	Now       time.Time
	// Fingerprint of the caller's current video list. Only compared when
	// fingerprint enforcement is enabled.
	Fingerprint string
}

// Decision is the gate's answer plus the counters it was based on.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Decision struct {
	Outcome      Outcome
	Reason       Reason
	Message      string
	MonthlyLimit int
	MonthlyUsed  int
	// Remaining is the monthly allowance left, never negative.
	Remaining  int
	HourlyUsed int
	// RetryAfter is set for hourly denials and is always a whole number of minutes.
	RetryAfter time.Duration
	// Analysis is the stored result when Outcome is OutcomeCached.
	Analysis *models.CachedAnalysis
}

// Allowed reports whether new work may be computed.
func (d *Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Denied reports whether the request was refused.
func (d *Decision) Denied() bool { return d.Outcome == OutcomeDenied }

// RetryAfterMinutes returns RetryAfter in minutes.
func (d *Decision) RetryAfterMinutes() int { return int(d.RetryAfter / time.Minute) }

// Usage is the quota snapshot shown on the dashboard.
type Usage struct {
	Tier             models.Tier `json:"tier"`
	MonthlyLimit     int         `json:"monthly_limit"`
	MonthlyUsed      int         `json:"monthly_used"`
	MonthlyRemaining int         `json:"monthly_remaining"`
	HourlyLimit      int         `json:"hourly_limit"`
	HourlyUsed       int         `json:"hourly_used"`
	HourlyRemaining  int         `json:"hourly_remaining"`
	PeriodStart      time.Time   `json:"period_start"`
}

// Gate evaluates the monthly limit, then the hourly limit, then the result cache.
// It never writes; appending to the ledger is the caller's job once work succeeds.
type Gate struct {
	ledger             repository.UsageRepository
	results            repository.AnalysisRepository
	cacheTTL           time.Duration
	enforceFingerprint bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.cacheTTL = ttl
		}
	}
}

// WithFingerprintEnforcement makes a fingerprint mismatch bypass the cache.
func WithFingerprintEnforcement(enabled bool) Option {
	return func(g *Gate) { g.enforceFingerprint = enabled }
}

// NewGate creates a new Gate.
func NewGate(ledger repository.UsageRepository, results repository.AnalysisRepository, opts ...Option) *Gate {
	g := &Gate{
		ledger:   ledger,
		results:  results,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize evaluates req. Errors are persistence failures; a denial is a
// Decision, not an error.
func (g *Gate) Authorize(ctx context.Context, req Request) (*Decision, error) {
	limit := MonthlyLimit(req.Tier)

	used, err := g.ledger.CountSince(ctx, req.UserID, MonthStart(req.Now))
	if err != nil {
		return nil, fmt.Errorf("count monthly usage: %w", err)
	}

	d := &Decision{
		MonthlyLimit: limit,
		MonthlyUsed:  used,
		Remaining:    max(limit-used, 0),
	}

	if used >= limit {
		d.Outcome = OutcomeDenied
		d.Reason = ReasonMonthlyLimit
		d.Message = monthlyMessage(req.Tier, limit, d.Remaining)
		g.record(d)
		return d, nil
	}

	recent, err := g.ledger.ListSince(ctx, req.UserID, req.Now.Add(-hourlyWindow))
	if err != nil {
		return nil, fmt.Errorf("list hourly usage: %w", err)
	}
	d.HourlyUsed = len(recent)

	if len(recent) >= HourlyLimit {
		d.Outcome = OutcomeDenied
		d.Reason = ReasonHourlyLimit
		d.RetryAfter = RetryAfter(req.Now, recent[HourlyLimit-1])
		d.Message = fmt.Sprintf(
			"Rate limit reached: %d analyses per hour. Try again in %d minute(s).",
			HourlyLimit, d.RetryAfterMinutes(),
		)
		g.record(d)
		return d, nil
	}

	cached, err := g.results.Get(ctx, req.UserID, req.ChannelID)
	switch {
	case err == nil && g.servable(cached, req):
		d.Outcome = OutcomeCached
		d.Analysis = cached
		g.record(d)
		return d, nil
	case err != nil && !db.IsNotFound(err):
		logger.L().Warn("Result cache lookup failed, computing fresh analysis",
			zap.String("user_id", req.UserID.String()),
			zap.String("channel_id", req.ChannelID),
			zap.Error(err),
		)
	}

	d.Outcome = OutcomeAllowed
	g.record(d)
	return d, nil
}

// Status reports the counters for a user without consulting the cache.
func (g *Gate) Status(ctx context.Context, userID uuid.UUID, tier models.Tier, now time.Time) (*Usage, error) {
	start := MonthStart(now)

	used, err := g.ledger.CountSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("count monthly usage: %w", err)
	}

	hourly, err := g.ledger.CountSince(ctx, userID, now.Add(-hourlyWindow))
	if err != nil {
		return nil, fmt.Errorf("count hourly usage: %w", err)
	}

	limit := MonthlyLimit(tier)
	return &Usage{
		Tier:             tier,
		MonthlyLimit:     limit,
		MonthlyUsed:      used,
		MonthlyRemaining: max(limit-used, 0),
		HourlyLimit:      HourlyLimit,
		HourlyUsed:       hourly,
		HourlyRemaining:  max(HourlyLimit-hourly, 0),
		PeriodStart:      start,
	}, nil
}

func (g *Gate) servable(a *models.CachedAnalysis, req Request) bool {
	if !a.FreshAt(req.Now, g.cacheTTL) {
		return false
	}
	if g.enforceFingerprint && req.Fingerprint != "" && a.Fingerprint() != "" {
		return a.Fingerprint() == req.Fingerprint
	}
	return true
}

func (g *Gate) record(d *Decision) {
	metrics.GateDecisions.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()
}

// MonthStart returns midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// RetryAfter returns how long until the oldest counted use leaves the hourly
// window, rounded up to whole minutes with a one-minute floor.
func RetryAfter(now, oldestCounted time.Time) time.Duration {
	remaining := hourlyWindow - now.Sub(oldestCounted)
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

func monthlyMessage(tier models.Tier, limit, remaining int) string {
	switch tier {
	case models.TierPro:
		return fmt.Sprintf("You've reached your Pro limit of %d analyses this month (%d remaining).", limit, remaining)
	case models.TierStarter:
		return fmt.Sprintf("You've reached your Starter limit of %d analyses this month (%d remaining). Upgrade to Pro for more.", limit, remaining)
	default:
		return fmt.Sprintf("Free accounts get %d analysis per month (%d remaining). Upgrade to Starter for more.", limit, remaining)
	}
}
