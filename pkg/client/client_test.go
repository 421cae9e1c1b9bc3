package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/steam-review-ingest/internal/testutil"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

func newTestClient(t *testing.T, feed *testutil.MockFeed, attempts int) *Client {
	t.Helper()

	cfg := DefaultConfig(1382330)
	cfg.BaseURL = feed.URL()
	cfg.RequestsPerSecond = 0
	cfg.Retry = fastRetry(attempts)

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func firstPage() PageRequest {
	return PageRequest{Filter: "recent", PageSize: 100, Cursor: "*"}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{name: "valid config", config: DefaultConfig(570)},
		{name: "zero app id", config: DefaultConfig(0), errorMsg: "app id must be positive (got 0)"},
		{name: "negative app id", config: DefaultConfig(-1), errorMsg: "app id must be positive (got -1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg != "" {
				if err == nil || err.Error() != tt.errorMsg {
					t.Errorf("New() error = %v, want %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil || c == nil {
				t.Fatalf("New() = %v, %v", c, err)
			}
		})
	}
}

func TestPageRequest_Query(t *testing.T) {
	q := PageRequest{Filter: "updated", PageSize: 25, Cursor: "AoJ+/w==", DayRange: 30}.Query()

	want := map[string]string{
		"json":         "1",
		"filter":       "updated",
		"num_per_page": "25",
		"cursor":       "AoJ+/w==",
		"day_range":    "30",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}

	q = firstPage().Query()
	if q.Has("day_range") {
		t.Error("day_range should be omitted when zero")
	}
}

func TestClient_FetchPage(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()

	day := testutil.Day(2024, 5, 1)
	feed.SetPage("*", testutil.MockPage{
		Entries: []review.RawEntry{
			testutil.Entry("1", day, "great"),
			testutil.Entry("2", day, "bad"),
		},
		NextCursor:   "AoJ+/w==",
		TotalReviews: 2,
	})

	c := newTestClient(t, feed, 1)
	page, err := c.FetchPage(context.Background(), firstPage())
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Reviews) != 2 {
		t.Errorf("len(Reviews) = %d, want 2", len(page.Reviews))
	}
	if page.Cursor != "AoJ+/w==" {
		t.Errorf("Cursor = %q", page.Cursor)
	}
	if page.QuerySummary.TotalReviews != 2 {
		t.Errorf("TotalReviews = %d, want 2", page.QuerySummary.TotalReviews)
	}
	if got := feed.LastQuery.Get("filter"); got != "recent" {
		t.Errorf("filter sent = %q, want recent", got)
	}
}

func TestClient_FetchPage_ProtocolViolations(t *testing.T) {
	day := testutil.Day(2024, 5, 1)
	wrongCount := 5

	tests := []struct {
		name string
		page testutil.MockPage
	}{
		{
			name: "success flag unset",
			page: testutil.MockPage{Entries: []review.RawEntry{testutil.Entry("1", day, "x")}, Fail: true},
		},
		{
			name: "count mismatch",
			page: testutil.MockPage{Entries: []review.RawEntry{testutil.Entry("1", day, "x")}, ReportedCount: &wrongCount},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := testutil.NewMockFeed()
			defer feed.Close()
			feed.SetPage("*", tt.page)

			c := newTestClient(t, feed, 3)
			_, err := c.FetchPage(context.Background(), firstPage())
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("FetchPage() error = %v, want ErrProtocol", err)
			}
			if n := feed.GetRequestCount(); n != 1 {
				t.Errorf("requests = %d, protocol violations must not be retried", n)
			}
		})
	}
}

func TestClient_FetchPage_RetriesServerErrors(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	feed.QueueStatus(http.StatusServiceUnavailable, http.StatusBadGateway)

	c := newTestClient(t, feed, 3)
	page, err := c.FetchPage(context.Background(), firstPage())
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Reviews) != 0 {
		t.Errorf("len(Reviews) = %d, want 0", len(page.Reviews))
	}
	if n := feed.GetRequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestClient_FetchPage_NoRetry(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	feed.QueueStatus(http.StatusInternalServerError)

	c := newTestClient(t, feed, 1)
	_, err := c.FetchPage(context.Background(), firstPage())
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("FetchPage() error = %v, want ErrRetryExhausted", err)
	}

	var feedErr *FeedError
	if !errors.As(err, &feedErr) {
		t.Fatalf("error %v should carry *FeedError", err)
	}
	if feedErr.StatusCode != http.StatusInternalServerError || feedErr.ErrorClass != ErrorClassServer {
		t.Errorf("FeedError = %+v", feedErr)
	}
}

func TestClient_FetchPage_ClientErrorFatal(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	feed.QueueStatus(http.StatusForbidden)

	c := newTestClient(t, feed, 3)
	_, err := c.FetchPage(context.Background(), firstPage())

	var feedErr *FeedError
	if !errors.As(err, &feedErr) || feedErr.ErrorClass != ErrorClassClient {
		t.Fatalf("FetchPage() error = %v, want client FeedError", err)
	}
	if n := feed.GetRequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClient_FetchPage_ContextCancelled(t *testing.T) {
	feed := testutil.NewMockFeed()
	defer feed.Close()
	feed.SetDelay(500 * time.Millisecond)

	c := newTestClient(t, feed, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.FetchPage(ctx, firstPage()); err == nil {
		t.Fatal("FetchPage() should fail when the context expires")
	}
}
