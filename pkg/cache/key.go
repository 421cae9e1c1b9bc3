package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PageKey identifies one cached feed page.
type PageKey struct {
	// AppID is the application whose reviews are fetched
	AppID int

	// Params are the request query parameters, cursor included
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: reviews:<app>:param1=val1:param2=val2
//
// Example:
//
//	reviews:1382330:cursor=*:filter=recent:json=1:num_per_page=100
func (k PageKey) String() string {
	parts := []string{"reviews", fmt.Sprintf("%d", k.AppID)}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
