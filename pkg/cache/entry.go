package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL applies when the feed sends no freshness headers.
	DefaultTTL = 5 * time.Minute

	// MaxTTL caps header-derived lifetimes; cursors go stale long before.
	MaxTTL = 24 * time.Hour
)

// Entry is one cached page body.
type Entry struct {
	Body      []byte
	FetchedAt time.Time
	Expires   time.Time
}

// NewEntry stamps a page body with the lifetime its response headers allow.
func NewEntry(body []byte, headers http.Header, now time.Time) *Entry {
	return &Entry{
		Body:      body,
		FetchedAt: now,
		Expires:   now.Add(Lifetime(headers, now)),
	}
}

// TTL returns the time left until the entry expires, 0 once it has.
func (e *Entry) TTL(now time.Time) time.Duration {
	if ttl := e.Expires.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}

// Lifetime derives a cache lifetime from response headers. Cache-Control
// max-age wins over Expires; no-store and no-cache disable caching.
func Lifetime(headers http.Header, now time.Time) time.Duration {
	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return 0
			case strings.HasPrefix(directive, "max-age="):
				secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
				if err == nil && secs >= 0 {
					return clampTTL(time.Duration(secs) * time.Second)
				}
			}
		}
	}

	if raw := headers.Get("Expires"); raw != "" {
		expires, err := http.ParseTime(raw)
		if err != nil {
			return DefaultTTL
		}
		return clampTTL(expires.Sub(now))
	}

	return DefaultTTL
}

func clampTTL(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return min(d, MaxTTL)
}
