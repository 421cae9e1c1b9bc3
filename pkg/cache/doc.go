// Package cache stores raw feed pages in Redis so that a rerun within the
// cache lifetime does not hit the feed again.
//
// Pages are addressed by the full request: app id, ordering filter, page
// size, day range and cursor. A cursor is only meaningful together with the
// parameters it was issued for, so all of them are part of the key.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.PageKey{AppID: 1382330, Params: query}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the feed, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, resp.Header, time.Now()))
//	}
//
// Each page is a Redis hash (body, fetched_at) that expires at the lifetime
// given by Cache-Control max-age, else Expires, else DefaultTTL, capped at
// MaxTTL.
//
// # Metrics
//
//   - review_cache_lookups_total{result}
//   - review_cache_stored_bytes_total
//   - review_cache_errors_total{operation}
package cache
