// Package sink forwards written batches to secondary destinations.
//
// Sinks run after a batch file has been persisted and validated. A failing
// sink aborts the run the same way a validation failure does.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_sink_publish_total",
		Help: "Batches handed to secondary sinks",
	}, []string{"sink", "status"}) // status: success, error

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_sink_publish_duration_seconds",
		Help:    "Time spent publishing one batch",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
)

// Batch is one written, validated batch file.
type Batch struct {
	RunID   string
	Index   int
	Name    string
	Records []review.Record
	Data    []byte
}

// Sink receives batches after they are written.
type Sink interface {
	Name() string
	Publish(ctx context.Context, b Batch) error
	Close() error
}

// Multi publishes to every sink in order and stops at the first failure.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	return "multi"
}

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, b Batch) error {
	for _, s := range m {
		start := time.Now()
		err := s.Publish(ctx, b)
		publishDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			publishTotal.WithLabelValues(s.Name(), "error").Inc()
			return fmt.Errorf("sink %s: publish %s: %w", s.Name(), b.Name, err)
		}
		publishTotal.WithLabelValues(s.Name(), "success").Inc()
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("sink %s: close: %w", s.Name(), err)
		}
	}
	return first
}
