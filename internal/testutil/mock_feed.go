// Package testutil provides testing utilities for the review ingest pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// MockPage defines what the mock feed answers for one cursor.
type MockPage struct {
	Entries    []review.RawEntry
	NextCursor string

	// TotalReviews is reported in query_summary.
	TotalReviews int

	// Fail makes the page report success=0.
	Fail bool

	// ReportedCount overrides query_summary.num_reviews when non-nil.
	ReportedCount *int
}

type mockResponse struct {
	Success      int `json:"success"`
	QuerySummary struct {
		NumReviews   int `json:"num_reviews"`
		TotalReviews int `json:"total_reviews,omitempty"`
	} `json:"query_summary"`
	Reviews []review.RawEntry `json:"reviews"`
	Cursor  string            `json:"cursor"`
}

// MockFeed is a scripted paginated review feed.
// Unknown cursors answer with an empty page repeating the cursor.
type MockFeed struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  map[string]MockPage
	status []int
	delay  time.Duration

	// Tracking
	RequestCount int
	Cursors      []string
	LastQuery    url.Values
}

// NewMockFeed creates a new mock feed server.
func NewMockFeed() *MockFeed {
	mock := &MockFeed{
		pages: make(map[string]MockPage),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockFeed) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFeed) Close() {
	m.server.Close()
}

// SetPage configures the page served for cursor.
func (m *MockFeed) SetPage(cursor string, page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = page
}

// SetPages chains pages: the first is served for "*", each page's
// NextCursor is generated as "c1", "c2", ... unless already set.
func (m *MockFeed) SetPages(total int, pages ...[]review.RawEntry) {
	cursor := "*"
	for i, entries := range pages {
		next := fmt.Sprintf("c%d", i+1)
		m.SetPage(cursor, MockPage{Entries: entries, NextCursor: next, TotalReviews: total})
		cursor = next
	}
}

// QueueStatus makes the next requests answer with the given HTTP statuses
// before serving pages again.
func (m *MockFeed) QueueStatus(codes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = append(m.status, codes...)
}

// SetDelay delays every response.
func (m *MockFeed) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockFeed) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetCursors returns the cursors requested so far, in order.
func (m *MockFeed) GetCursors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Cursors...)
}

func (m *MockFeed) handle(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")

	m.mu.Lock()
	m.RequestCount++
	m.Cursors = append(m.Cursors, cursor)
	m.LastQuery = r.URL.Query()
	delay := m.delay
	var status int
	if len(m.status) > 0 {
		status = m.status[0]
		m.status = m.status[1:]
	}
	page, ok := m.pages[cursor]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if !strings.HasPrefix(r.URL.Path, "/appreviews/") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(`{"success":0}`))
		return
	}

	var resp mockResponse
	resp.Success = 1
	resp.Cursor = cursor
	resp.Reviews = []review.RawEntry{}
	if ok {
		if page.Fail {
			resp.Success = 0
		}
		if page.Entries != nil {
			resp.Reviews = page.Entries
		}
		if page.NextCursor != "" {
			resp.Cursor = page.NextCursor
		}
		resp.QuerySummary.TotalReviews = page.TotalReviews
	}
	resp.QuerySummary.NumReviews = len(resp.Reviews)
	if ok && page.ReportedCount != nil {
		resp.QuerySummary.NumReviews = *page.ReportedCount
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Entry builds a feed entry whose created and updated timestamps are both ts.
func Entry(id string, ts time.Time, content string) review.RawEntry {
	return review.RawEntry{
		RecommendationID: id,
		Author: review.Author{
			SteamID:          "7656119" + id,
			PlaytimeAtReview: 120,
		},
		TimestampCreated: ts.Unix(),
		TimestampUpdated: ts.Unix(),
		Review:           content,
		CommentCount:     0,
		VotesUp:          1,
		VotesFunny:       0,
		VotedUp:          true,
	}
}

// Day returns noon UTC on the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}
