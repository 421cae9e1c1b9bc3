//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-review-ingest/internal/testutil"
)

func TestTracker_Integration_SharedCoolOff(t *testing.T) {
	redisClient := testutil.StartRedis(t)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	ctx := context.Background()

	// Two trackers stand in for two ingest processes sharing one Redis.
	first := NewTracker(redisClient, 0, 1, logger)
	second := NewTracker(redisClient, 0, 1, logger)

	headers := http.Header{}
	headers.Set("Retry-After", "120")
	if err := first.UpdateFromResponse(ctx, http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("UpdateFromResponse() error = %v", err)
	}

	state, err := second.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Active() {
		t.Fatal("second tracker should observe the shared cool-off")
	}
	if state.LastStatus != http.StatusTooManyRequests {
		t.Errorf("LastStatus = %d, want 429", state.LastStatus)
	}

	ttl, err := redisClient.TTL(ctx, RedisKeyCoolOffUntil).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 120*time.Second {
		t.Errorf("cool-off key TTL = %v, want (0, 120s]", ttl)
	}
}

func TestTracker_Integration_EmptyRedis(t *testing.T) {
	redisClient := testutil.StartRedis(t)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, 0, 1, logger)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Active() {
		t.Error("empty Redis should not report an active cool-off")
	}
}
