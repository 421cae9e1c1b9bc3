// Package client fetches single pages of the Steam review feed with pacing,
// optional page caching, bounded retries and protocol checks.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/steam-review-ingest/pkg/cache"
	"github.com/Sternrassler/steam-review-ingest/pkg/ratelimit"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// Prometheus metrics for feed requests.
var (
	reviewRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_feed_requests_total",
		Help: "Total feed requests by status",
	}, []string{"status"})

	reviewRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_feed_request_duration_seconds",
		Help:    "Feed page fetch duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	reviewErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_feed_errors_total",
		Help: "Total feed errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public Steam store host.
const DefaultBaseURL = "https://store.steampowered.com"

// MaxPageSize is the largest page the feed serves.
const MaxPageSize = 100

// Client fetches pages of one application's review feed.
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the store, without trailing slash
	BaseURL string

	// AppID is the application whose reviews are fetched
	AppID int

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Redis enables the page cache and shared cool-off state (optional)
	Redis *redis.Client

	// Pacing
	RequestsPerSecond float64
	Burst             int

	// Retry policy for transport failures
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(appID int) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		AppID:             appID,
		UserAgent:         "steam-review-ingest/0.1.0",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		Retry:             DefaultRetryConfig(),
	}
}

// New creates a new feed client.
func New(cfg Config) (*Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be positive (got %d)", cfg.AppID)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := log.With().Str("component", "feed-client").Int("app_id", cfg.AppID).Logger()

	var pageCache *cache.Manager
	if cfg.Redis != nil {
		pageCache = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pacer:  ratelimit.NewTracker(cfg.Redis, cfg.RequestsPerSecond, cfg.Burst, logger),
		cache:  pageCache,
		config: cfg,
		logger: logger,
	}, nil
}

// PageRequest holds the logical parameters of one page request.
type PageRequest struct {
	Filter   string
	PageSize int
	Cursor   string

	// DayRange bounds the feed to recent days; 0 omits the parameter.
	DayRange int
}

// Query encodes the request as URL parameters.
func (r PageRequest) Query() url.Values {
	q := url.Values{}
	q.Set("json", "1")
	q.Set("filter", r.Filter)
	q.Set("language", "all")
	q.Set("purchase_type", "all")
	q.Set("num_per_page", strconv.Itoa(r.PageSize))
	q.Set("cursor", r.Cursor)
	if r.DayRange > 0 {
		q.Set("day_range", strconv.Itoa(r.DayRange))
	}
	return q
}

// QuerySummary is the page metadata block.
type QuerySummary struct {
	NumReviews   int `json:"num_reviews"`
	TotalReviews int `json:"total_reviews"`
}

// Page is one decoded, protocol-checked feed response.
type Page struct {
	Success      int               `json:"success"`
	QuerySummary QuerySummary      `json:"query_summary"`
	Reviews      []review.RawEntry `json:"reviews"`
	Cursor       string            `json:"cursor"`
}

// FetchPage requests one page. Transport failures are retried according to
// the retry policy; protocol violations are returned immediately and wrap
// ErrProtocol.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	start := time.Now()
	defer func() {
		reviewRequestDuration.Observe(time.Since(start).Seconds())
	}()

	query := req.Query()
	key := cache.PageKey{AppID: c.config.AppID, Params: query}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		if err == nil {
			page, decodeErr := decodePage(entry.Body)
			if decodeErr == nil {
				c.logger.Debug().Str("cursor", req.Cursor).Msg("Page served from cache")
				reviewRequestsTotal.WithLabelValues("cache").Inc()
				return page, nil
			}
			err = decodeErr
		}
		switch {
		case errors.Is(err, cache.ErrCacheMiss):
		case errors.Is(err, ErrProtocol), errors.Is(err, cache.ErrInvalidEntry):
			// A poisoned entry would be served for its whole lifetime.
			c.logger.Warn().Err(err).Str("cursor", req.Cursor).Msg("Evicting unusable cached page")
			if err := c.cache.Delete(ctx, key); err != nil {
				c.logger.Warn().Err(err).Str("cursor", req.Cursor).Msg("Cache delete error")
			}
		default:
			c.logger.Warn().Err(err).Str("cursor", req.Cursor).Msg("Cache get error")
		}
	}

	endpoint := fmt.Sprintf("%s/appreviews/%d?%s", c.config.BaseURL, c.config.AppID, query.Encode())

	var (
		body   []byte
		header http.Header
	)

	logger := c.logger.With().Str("cursor", req.Cursor).Logger()
	err := retryWithBackoff(ctx, c.config.Retry, logger, func() (ErrorClass, error) {
		if err := c.pacer.Wait(ctx); err != nil {
			return "", fmt.Errorf("pacer wait: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
		httpReq.Header.Set("Accept", "application/json")

		logger.Debug().
			Int("num_per_page", req.PageSize).
			Msg("Executing feed request")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Error().Err(err).Msg("HTTP request failed")
			reviewErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			reviewRequestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, &FeedError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}
		defer resp.Body.Close()

		if err := c.pacer.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update cool-off state")
		}

		reviewRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		if errorClass := classifyStatus(resp.StatusCode); errorClass != "" {
			reviewErrorsTotal.WithLabelValues(string(errorClass)).Inc()
			logger.Warn().
				Int("status", resp.StatusCode).
				Str("error_class", string(errorClass)).
				Msg("Feed request error")
			return errorClass, &FeedError{
				StatusCode: resp.StatusCode,
				ErrorClass: errorClass,
				Message:    resp.Status,
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			reviewErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, &FeedError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read body",
				Err:        err,
			}
		}
		header = resp.Header
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	page, err := decodePage(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(body, header, time.Now())); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache page")
		}
	}

	return page, nil
}

// decodePage parses and checks a page body.
func decodePage(body []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode page: %v", ErrProtocol, err)
	}
	if page.Success != 1 {
		return nil, fmt.Errorf("%w: success flag is %d", ErrProtocol, page.Success)
	}
	if page.QuerySummary.NumReviews != len(page.Reviews) {
		return nil, fmt.Errorf("%w: reported %d reviews, page carries %d",
			ErrProtocol, page.QuerySummary.NumReviews, len(page.Reviews))
	}
	return &page, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
