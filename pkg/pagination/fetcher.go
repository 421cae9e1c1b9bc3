package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-review-ingest/pkg/client"
	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// InitialCursor addresses the first page of the feed.
const InitialCursor = "*"

// Prometheus metrics for page processing.
var (
	reviewPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_pages_fetched_total",
		Help: "Total feed pages received",
	})

	reviewEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_entries_total",
		Help: "Feed entries by outcome",
	}, []string{"outcome"}) // kept, duplicate, out_of_window
)

// PageFetcher is the interface the feed client must implement for single-page fetching.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// Result is the outcome of one NextPage call.
type Result struct {
	// Applicable counts entries with watermark at or after MinDate,
	// ignoring MaxDate and deduplication.
	Applicable int

	// Records are the kept, transformed entries in feed order.
	Records []review.Record

	// Total is the feed's self-reported total (first page only).
	Total int

	// EndOfFeed is set when the page was empty and repeated the cursor.
	EndOfFeed bool

	// WindowExhausted is set when the page reached past MinDate.
	WindowExhausted bool
}

type pageResult struct {
	page *client.Page
	err  error
}

// Fetcher issues one request per page and filters what comes back.
// It is not safe for concurrent use; the fetch-ahead goroutine touches only
// its own request and result channel.
type Fetcher struct {
	pages       PageFetcher
	transformer review.Transformer
	config      Config
	window      window
	logger      zerolog.Logger

	cursor string
	eof    bool
	seen   map[string]struct{}

	ahead       chan pageResult
	cancelAhead context.CancelFunc
}

// NewFetcher validates cfg and creates a fetcher positioned at the first page.
func NewFetcher(pages PageFetcher, cfg Config) (*Fetcher, error) {
	w, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	transformer, err := review.NewTransformer(cfg.DateSource)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("pagination")
	if w.enabled {
		logger.Info().
			Str("min_date", w.min).
			Str("max_date", w.max).
			Int("day_range", w.dayRange).
			Msg("Date window configured")
		if w.truncated {
			logger.Warn().
				Str("min_date", w.min).
				Int("day_range", w.dayRange).
				Msg("Window starts beyond the feed's day range; reviews from min_date may be incomplete")
		}
	}

	return &Fetcher{
		pages:       pages,
		transformer: transformer,
		config:      cfg,
		window:      w,
		logger:      logger,
		cursor:      InitialCursor,
		seen:        make(map[string]struct{}),
	}, nil
}

// Cursor returns the cursor of the next page to fetch.
func (f *Fetcher) Cursor() string {
	return f.cursor
}

// EndOfFeed reports whether the end-of-feed page has been observed.
func (f *Fetcher) EndOfFeed() bool {
	return f.eof
}

func (f *Fetcher) request(cursor string) client.PageRequest {
	return client.PageRequest{
		Filter:   f.config.DateSource.Filter(),
		PageSize: f.config.PageSize,
		Cursor:   cursor,
		DayRange: f.window.dayRange,
	}
}

// startAhead requests the page at the current cursor in the background.
func (f *Fetcher) startAhead(ctx context.Context) {
	aheadCtx, cancel := context.WithCancel(ctx)
	ch := make(chan pageResult, 1)
	req := f.request(f.cursor)

	go func() {
		page, err := f.pages.FetchPage(aheadCtx, req)
		ch <- pageResult{page: page, err: err}
	}()

	f.ahead = ch
	f.cancelAhead = cancel
}

// receive returns the page at the current cursor, from the fetch-ahead
// request if one is pending.
func (f *Fetcher) receive(ctx context.Context) (*client.Page, error) {
	if f.ahead == nil {
		return f.pages.FetchPage(ctx, f.request(f.cursor))
	}

	var res pageResult
	select {
	case res = <-f.ahead:
	case <-ctx.Done():
		f.Close()
		return nil, ctx.Err()
	}
	f.cancelAhead()
	f.ahead = nil
	f.cancelAhead = nil
	return res.page, res.err
}

// NextPage fetches, filters and transforms the next page.
// After the end of the feed it returns an empty result with EndOfFeed set.
func (f *Fetcher) NextPage(ctx context.Context) (Result, error) {
	if f.eof {
		return Result{EndOfFeed: true}, nil
	}

	start := time.Now()
	requested := f.cursor

	page, err := f.receive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch page at cursor %q: %w", requested, err)
	}
	reviewPagesTotal.Inc()

	res := Result{Total: page.QuerySummary.TotalReviews}

	if len(page.Reviews) == 0 && page.Cursor == requested {
		f.eof = true
		res.EndOfFeed = true
		f.logger.Debug().Str("cursor", requested).Msg("End of feed")
		return res, nil
	}
	f.cursor = page.Cursor

	watermarks := make([]string, len(page.Reviews))
	for i, e := range page.Reviews {
		watermarks[i] = f.transformer.Watermark(e)
		if f.window.enabled && watermarks[i] < f.window.min {
			res.WindowExhausted = true
		}
	}

	if f.config.FetchAhead && !res.WindowExhausted {
		f.startAhead(ctx)
	}

	var duplicates, outside int
	res.Records = make([]review.Record, 0, len(page.Reviews))
	for i, e := range page.Reviews {
		w := watermarks[i]
		if !f.window.enabled || w >= f.window.min {
			res.Applicable++
		}
		if f.window.enabled && (w < f.window.min || w > f.window.max) {
			outside++
			continue
		}
		if _, dup := f.seen[e.RecommendationID]; dup {
			duplicates++
			continue
		}
		f.seen[e.RecommendationID] = struct{}{}
		res.Records = append(res.Records, f.transformer.Transform(e))
	}

	reviewEntriesTotal.WithLabelValues("kept").Add(float64(len(res.Records)))
	reviewEntriesTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	reviewEntriesTotal.WithLabelValues("out_of_window").Add(float64(outside))

	f.logger.Debug().
		Str("cursor", requested).
		Int("received", len(page.Reviews)).
		Int("applicable", res.Applicable).
		Int("kept", len(res.Records)).
		Int("duplicates", duplicates).
		Int("out_of_window", outside).
		Dur("duration", time.Since(start)).
		Msg("Page processed")

	return res, nil
}

// Close cancels a pending fetch-ahead request and waits for it to finish.
// It is safe to call more than once.
func (f *Fetcher) Close() {
	if f.ahead == nil {
		return
	}
	f.cancelAhead()
	<-f.ahead
	f.ahead = nil
	f.cancelAhead = nil
}
