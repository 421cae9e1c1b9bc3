package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestLifetime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		headers http.Header
		want    time.Duration
	}{
		{name: "no headers", headers: http.Header{}, want: DefaultTTL},
		{
			name:    "max-age",
			headers: http.Header{"Cache-Control": []string{"public, max-age=60"}},
			want:    time.Minute,
		},
		{
			name: "max-age wins over expires",
			headers: http.Header{
				"Cache-Control": []string{"max-age=30"},
				"Expires":       []string{now.Add(time.Hour).Format(http.TimeFormat)},
			},
			want: 30 * time.Second,
		},
		{
			name:    "no-store",
			headers: http.Header{"Cache-Control": []string{"No-Store"}},
			want:    0,
		},
		{
			name:    "expires in the future",
			headers: http.Header{"Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			want:    time.Hour,
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{now.Add(-time.Hour).Format(http.TimeFormat)}},
			want:    0,
		},
		{
			name:    "unparseable expires",
			headers: http.Header{"Expires": []string{"soon"}},
			want:    DefaultTTL,
		},
		{
			name:    "capped",
			headers: http.Header{"Cache-Control": []string{"max-age=604800"}},
			want:    MaxTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lifetime(tt.headers, now); got != tt.want {
				t.Errorf("Lifetime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := NewEntry([]byte(`{"success":1}`), http.Header{"Cache-Control": []string{"max-age=120"}}, now)

	if !entry.FetchedAt.Equal(now) {
		t.Errorf("FetchedAt = %v, want %v", entry.FetchedAt, now)
	}
	if got := entry.TTL(now.Add(time.Minute)); got != time.Minute {
		t.Errorf("TTL() after 1m = %v, want 1m", got)
	}
	if got := entry.TTL(now.Add(time.Hour)); got != 0 {
		t.Errorf("TTL() after expiry = %v, want 0", got)
	}
}
