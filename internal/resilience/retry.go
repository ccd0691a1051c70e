package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rsionnach/nthlayer/internal/logging"
)

// RetryConfig controls exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig matches the bounded-retry requirement for discovery,
// ownership, and metrics provider calls: three attempts, capped backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryableFunc is the unit of work retried by Retry.
type RetryableFunc func(ctx context.Context) error

// Result summarizes how a retried operation finished.
type Result struct {
	Attempts int
	Success  bool
	Duration time.Duration
	LastErr  error
}

// Retry runs fn with exponential backoff until it succeeds, a
// non-retryable error is returned, the context is cancelled, or
// MaxAttempts is exhausted.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) Result {
	start := time.Now()
	var result Result

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			return result
		}
		result.LastErr = err

		if !isRetryable(err) {
			result.Duration = time.Since(start)
			return result
		}

		if attempt >= config.MaxAttempts {
			result.Duration = time.Since(start)
			return result
		}

		delay := backoff(attempt, config)
		logging.GetLogger().Debug("retrying operation",
			logging.Int("attempt", attempt),
			logging.Duration("next_delay", delay),
			logging.Err(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastErr = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	return result
}

func backoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		delay += rand.Float64() * 0.3 * delay
	}
	return time.Duration(delay)
}

var retryablePatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"too many requests",
	"rate limit",
	"throttled",
	"temporary",
	"503",
	"429",
}

// isRetryable applies a classification/substring heuristic for errors
// that don't carry an explicit NthLayerError.Retryable flag.
func isRetryable(err error) bool {
	type retryableCarrier interface {
		IsRetryable() bool
	}
	if rc, ok := err.(retryableCarrier); ok {
		return rc.IsRetryable()
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Do wraps a named operation with retry and structured before/after
// logging, returning a plain error on exhaustion.
func Do(ctx context.Context, operation, provider string, config RetryConfig, fn RetryableFunc) error {
	result := Retry(ctx, config, fn)
	if result.Success {
		if result.Attempts > 1 {
			logging.GetLogger().Info("operation succeeded after retry",
				logging.String("operation", operation),
				logging.String("provider", provider),
				logging.Int("attempts", result.Attempts),
				logging.Duration("duration", result.Duration))
		}
		return nil
	}

	logging.GetLogger().Warning("operation failed",
		logging.String("operation", operation),
		logging.String("provider", provider),
		logging.Int("attempts", result.Attempts),
		logging.Duration("duration", result.Duration),
		logging.Err(result.LastErr))

	return fmt.Errorf("%s against %s failed after %d attempts: %w", operation, provider, result.Attempts, result.LastErr)
}
