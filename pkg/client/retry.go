package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	reviewRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_feed_retries_total",
		Help: "Retried page requests by error class",
	}, []string{"error_class"})

	reviewRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_feed_retry_backoff_seconds",
		Help:    "Backoff slept before a page request retry, by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	reviewRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_feed_retry_exhausted_total",
		Help: "Page requests that failed on every attempt, by error class",
	}, []string{"error_class"})
)

// jitterSpread is the total width of the random factor applied to each
// backoff; 0.4 yields delays within ±20% of the nominal value.
const jitterSpread = 0.4

// RetryConfig bounds how often and how patiently a page is re-requested
// after a transport failure.
type RetryConfig struct {
	// MaxAttempts counts the first request; 1 disables retries.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffMultiplier grows the delay between consecutive attempts.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns three attempts with 1s, 2s backoff capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// delay returns the backoff after the given failed attempt (1-based).
// r in [0,1) selects the jitter; 0.5 gives the nominal delay.
func (c RetryConfig) delay(attempt int, r float64) time.Duration {
	mult := max(c.BackoffMultiplier, 1)
	nominal := float64(c.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if c.MaxBackoff > 0 {
		nominal = min(nominal, float64(c.MaxBackoff))
	}
	return time.Duration(nominal * (1 - jitterSpread/2 + r*jitterSpread))
}

// retryWithBackoff calls fn until it succeeds, reports a class that is not
// retriable, or runs out of attempts. Exhaustion wraps both ErrRetryExhausted
// and the last failure.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() (ErrorClass, error)) error {
	attempts := max(cfg.MaxAttempts, 1)

	var (
		lastErr   error
		lastClass ErrorClass
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		class, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Page request succeeded after retry")
			}
			return nil
		}
		lastErr, lastClass = err, class

		if !shouldRetry(class) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := cfg.delay(attempt, rand.Float64())
		reviewRetriesTotal.WithLabelValues(string(class)).Inc()
		reviewRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())
		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying page request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	reviewRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("attempts", attempts).
		Msg("Page request failed on every attempt")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
