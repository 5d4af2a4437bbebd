package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/pkg/metrics"
	"code-review-be/pkg/kvstore"
)

const keyPrefix = "ratelimit"

// Rule is a fixed-window quota for one operation.
type Rule struct {
	Operation string
	Limit     int
	Window    time.Duration
}

var (
	Signup    = Rule{Operation: "signup", Limit: 5, Window: time.Hour}
	ResendOTP = Rule{Operation: "resend_otp", Limit: 5, Window: time.Hour}
	VerifyOTP = Rule{Operation: "verify_otp", Limit: 3, Window: 5 * time.Minute}
	Login     = Rule{Operation: "login", Limit: 5, Window: 15 * time.Minute}
)

// Limiter counts attempts per key in a window that starts at the first
// attempt. When the counter store is unreachable it fails open.
type Limiter struct {
	store   kvstore.Store
	logger  logger.ILogger
	timeout time.Duration
}

func NewLimiter(store kvstore.Store, log logger.ILogger) *Limiter {
	return &Limiter{
		store:   store,
		logger:  log,
		timeout: 2 * time.Second,
	}
}

// Allow returns true while the key has been seen at most limit times in
// the current window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	return l.decide(ctx, key, limit, window) != decisionLimited
}

// AllowRule applies rule to a single identity such as an email address.
func (l *Limiter) AllowRule(ctx context.Context, rule Rule, identity string) bool {
	decision := l.decide(ctx, Key(rule.Operation, identity), rule.Limit, rule.Window)
	metrics.RateLimitDecisions.WithLabelValues(rule.Operation, decision).Inc()
	return decision != decisionLimited
}

const (
	decisionAllowed  = "allowed"
	decisionLimited  = "limited"
	decisionFailOpen = "fail_open"
)

func (l *Limiter) decide(ctx context.Context, key string, limit int, window time.Duration) string {
	if limit <= 0 || window <= 0 {
		return decisionAllowed
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.store.IncrWithExpiry(ctx, key, window)
	if err != nil {
		l.logger.Warn("RATELIMIT", "Counter store unavailable, allowing request", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return decisionFailOpen
	}
	if count > int64(limit) {
		return decisionLimited
	}
	return decisionAllowed
}

// Key builds "ratelimit:<operation>:<identity>".
func Key(operation, identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		identity = "unknown"
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, operation, identity)
}
