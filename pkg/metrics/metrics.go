// Package metrics exposes the Prometheus registry the ingest packages
// register into and serves it over HTTP.
//
// Metrics are defined in their respective packages (client, ratelimit,
// cache, pagination, output, sink, pipeline) via promauto to keep those
// packages self-contained.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer every ingest metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Feed client (pkg/client):
//   - review_feed_requests_total{status} (Counter): Requests by HTTP status
//   - review_feed_request_duration_seconds (Histogram): Page fetch duration, retries included
//   - review_feed_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - review_feed_retries_total{error_class} (Counter): Retry attempts
//   - review_feed_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - review_feed_retry_exhausted_total{error_class} (Counter): Requests that exhausted their attempts
//
// Pacing (pkg/ratelimit):
//   - review_rate_limit_cooloffs_total (Counter): 429 cool-offs started
//   - review_rate_limit_wait_seconds (Histogram): Time spent waiting for a request slot
//
// Page cache (pkg/cache):
//   - review_cache_lookups_total{result} (Counter): hit or miss
//   - review_cache_stored_bytes_total (Counter): Bytes of pages written to the cache
//   - review_cache_errors_total{operation} (Counter)
//
// Pagination (pkg/pagination):
//   - review_pages_fetched_total (Counter)
//   - review_entries_total{outcome} (Counter): kept, duplicate, out_of_window
//
// Output (pkg/output, pkg/sink):
//   - review_batches_written_total, review_records_written_total (Counter)
//   - review_batch_validation_failures_total (Counter)
//   - review_batch_write_duration_seconds (Histogram)
//   - review_sink_publish_total{sink, status} (Counter)
//   - review_sink_publish_duration_seconds{sink} (Histogram)
//
// Pipeline (pkg/pipeline):
//   - review_pipeline_runs_total{outcome} (Counter)
//   - review_pipeline_run_duration_seconds (Histogram)
//   - review_pipeline_remaining (Gauge): Remaining-to-fetch counter
//   - review_pipeline_duplicate_ids_total (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(review_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(review_cache_lookups_total[5m]))
//
//   # Duplicate share of received entries
//   rate(review_entries_total{outcome="duplicate"}[5m]) / sum(rate(review_entries_total[5m]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(review_feed_request_duration_seconds_bucket[5m]))
