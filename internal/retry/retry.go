// Package retry implements the backoff and throttling policy shared by the
// commerce API list and detail fetches.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"order-ingest/internal/util"

	"go.uber.org/zap"
)

// ErrExhausted is returned once every attempt allowed by a Policy has failed
var ErrExhausted = errors.New("retry budget exhausted")

// StatusError is a non-2xx response from the remote
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote returned status %d", e.StatusCode)
}

// Retryable reports whether the status is 429 or 5xx
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Policy bounds one class of operation. MaxRetries counts retries, so an
// operation is attempted at most MaxRetries+1 times.
type Policy struct {
	Name       string
	BaseDelay  time.Duration
	MaxRetries int
}

// DetailPolicy is the default for single-order fetches
func DetailPolicy() Policy {
	return Policy{Name: "detail", BaseDelay: 200 * time.Millisecond, MaxRetries: 3}
}

// ListPolicy is the default for list fetches: no retries
func ListPolicy() Policy {
	return Policy{Name: "list", BaseDelay: 200 * time.Millisecond, MaxRetries: 0}
}

// ThrottleConfig is the proactive, non-retry pacing
type ThrottleConfig struct {
	Ratio       float64
	Cooldown    time.Duration
	DetailPause time.Duration
}

// DefaultThrottle cools down 600ms above 80% budget and pauses 150ms after detail fetches
func DefaultThrottle() ThrottleConfig {
	return ThrottleConfig{Ratio: 0.8, Cooldown: 600 * time.Millisecond, DetailPause: 150 * time.Millisecond}
}

// Clock sleeps. Tests substitute a recording implementation.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock sleeps on the wall clock and wakes early on context cancellation
func RealClock() Clock {
	return realClock{}
}

// Operation performs one attempt. It returns nil on success, a *StatusError
// for a non-2xx response and any other error for transport failures.
type Operation func(ctx context.Context) error

// Controller applies retry policies and throttling
type Controller struct {
	clock    Clock
	throttle ThrottleConfig
	logger   *zap.Logger
}

// NewController creates a new controller
func NewController(clock Clock, throttle ThrottleConfig) *Controller {
	if clock == nil {
		clock = RealClock()
	}
	return &Controller{
		clock:    clock,
		throttle: throttle,
		logger:   util.GetLogger(),
	}
}

// Do runs op until it succeeds, fails terminally or the policy is used up.
// 429/5xx and transport errors are retried after BaseDelay doubling on each
// retry, unless the response carried a retry-after hint, which is used as is
// for that wait. Other statuses are returned unchanged and unretried.
// Exhaustion wraps ErrExhausted and the last error.
func (c *Controller) Do(ctx context.Context, policy Policy, op Operation) error {
	delay := policy.BaseDelay

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var statusErr *StatusError
		isStatus := errors.As(err, &statusErr)
		if isStatus && !statusErr.Retryable() {
			return err
		}

		if attempt > policy.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		wait := delay
		if isStatus && statusErr.RetryAfter > 0 {
			wait = statusErr.RetryAfter
		}

		c.logger.Warn("Retrying remote call",
			zap.String("operation", policy.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", wait),
			zap.Error(err))
		util.RetriesTotal.WithLabelValues(policy.Name).Inc()

		if err := c.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		delay *= 2
	}
}

// Throttle sleeps the cool-down when ratio is above the configured threshold.
// It reports whether it slept.
func (c *Controller) Throttle(ctx context.Context, ratio float64) (bool, error) {
	if ratio <= c.throttle.Ratio {
		return false, nil
	}

	c.logger.Warn("Call budget high, cooling down",
		zap.Float64("ratio", ratio),
		zap.Duration("cooldown", c.throttle.Cooldown))
	util.ThrottleSleepsTotal.Inc()

	return true, c.clock.Sleep(ctx, c.throttle.Cooldown)
}

// Pause applies the fixed pause that follows every detail fetch
func (c *Controller) Pause(ctx context.Context) error {
	return c.clock.Sleep(ctx, c.throttle.DetailPause)
}

// ParseRetryAfter reads a Retry-After value in seconds (fractions allowed) or
// as an HTTP date. Zero means no usable hint.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
