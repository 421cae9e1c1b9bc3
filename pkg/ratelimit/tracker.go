package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	reviewCoolOffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_rate_limit_cooloffs_total",
		Help: "Total number of cool-offs triggered by 429 responses",
	})

	reviewPacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the pacer before a request",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	})
)

// Tracker gates requests with a token bucket and honours cool-off deadlines.
// The Redis client is optional; without it cool-offs are process-local.
type Tracker struct {
	limiter *rate.Limiter
	redis   *redis.Client
	logger  zerolog.Logger

	mu    sync.Mutex
	local CoolOffState
}

// NewTracker creates a tracker allowing rps requests per second with the
// given burst. A non-positive rps disables pacing.
func NewTracker(redisClient *redis.Client, rps float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		redis:   redisClient,
		logger:  logger,
	}
}

// GetState returns the effective cool-off state, preferring whichever of the
// local and shared deadlines is later.
func (t *Tracker) GetState(ctx context.Context) (*CoolOffState, error) {
	t.mu.Lock()
	state := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return &state, nil
	}

	untilMs, err := t.redis.Get(ctx, RedisKeyCoolOffUntil).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &state, nil
		}
		return nil, fmt.Errorf("get cool-off deadline: %w", err)
	}
	shared := time.UnixMilli(untilMs)
	if shared.After(state.Until) {
		state.Until = shared
		if status, err := t.redis.Get(ctx, RedisKeyLastStatus).Int(); err == nil {
			state.LastStatus = status
		}
	}
	return &state, nil
}

// Wait blocks until a request may be issued.
func (t *Tracker) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		reviewPacerWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	state, err := t.GetState(ctx)
	if err != nil {
		// Shared state is advisory; fall back to local pacing.
		t.logger.Warn().Err(err).Msg("Cool-off state unavailable")
		state = &CoolOffState{}
	}

	if state.Active() {
		wait := state.Remaining()
		t.logger.Warn().
			Int("last_status", state.LastStatus).
			Dur("wait_duration", wait).
			Msg("Feed cool-off active - delaying request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return t.limiter.Wait(ctx)
}

// UpdateFromResponse records a cool-off when the feed answered 429.
// Other statuses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	if status != http.StatusTooManyRequests {
		return nil
	}

	wait := parseRetryAfter(headers.Get("Retry-After"), time.Now())
	until := time.Now().Add(wait)

	t.mu.Lock()
	if until.After(t.local.Until) {
		t.local = CoolOffState{Until: until, LastStatus: status}
	}
	t.mu.Unlock()

	reviewCoolOffsTotal.Inc()
	t.logger.Warn().
		Int("status", status).
		Dur("cooloff", wait).
		Time("until", until).
		Msg("Feed throttled - cool-off recorded")

	if t.redis == nil {
		return nil
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCoolOffUntil, until.UnixMilli(), wait)
	pipe.Set(ctx, RedisKeyLastStatus, status, wait)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cool-off state in redis: %w", err)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return DefaultCoolOff
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		wait = at.Sub(now)
	} else {
		return DefaultCoolOff
	}

	if wait <= 0 {
		return DefaultCoolOff
	}
	if wait > MaxCoolOff {
		return MaxCoolOff
	}
	return wait
}
