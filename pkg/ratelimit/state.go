// Package ratelimit paces requests against the review feed and shares
// 429 cool-off deadlines between ingest processes through Redis.
package ratelimit

import (
	"time"
)

// Redis keys for shared cool-off state.
const (
	RedisKeyCoolOffUntil = "review:rate_limit:cooloff_until"
	RedisKeyLastStatus   = "review:rate_limit:last_status"
)

// DefaultCoolOff applies when a 429 response carries no usable Retry-After.
const DefaultCoolOff = 30 * time.Second

// MaxCoolOff bounds a single cool-off regardless of what the feed asks for.
const MaxCoolOff = 10 * time.Minute

// CoolOffState represents the current throttling state of the feed.
type CoolOffState struct {
	// Until is the deadline before which no request should be issued.
	Until time.Time `json:"until"`

	// LastStatus is the HTTP status that triggered the cool-off.
	LastStatus int `json:"last_status"`
}

// Active reports whether the cool-off deadline lies in the future.
func (s *CoolOffState) Active() bool {
	return time.Now().Before(s.Until)
}

// Remaining returns the time left until the deadline.
// Returns 0 if the deadline has already passed.
func (s *CoolOffState) Remaining() time.Duration {
	d := time.Until(s.Until)
	if d < 0 {
		return 0
	}
	return d
}
