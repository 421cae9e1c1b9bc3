// Package pipeline drives a run: it pulls pages from the fetcher, keeps the
// run's accounting and hands kept records to the batch writer, either inline
// or on a dedicated writer goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/output"
	"github.com/Sternrassler/steam-review-ingest/pkg/pagination"
	"github.com/Sternrassler/steam-review-ingest/pkg/sink"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_pipeline_runs_total",
		Help: "Completed runs by outcome",
	}, []string{"outcome"}) // success, error

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_pipeline_run_duration_seconds",
		Help:    "Wall time of one run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_pipeline_remaining",
		Help: "Remaining-to-fetch counter of the current run",
	})

	duplicateIDs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_pipeline_duplicate_ids_total",
		Help: "Record ids kept more than once",
	})
)

// DefaultPerBatch is the number of records per output file.
const DefaultPerBatch = 5000

// Config holds orchestrator configuration.
type Config struct {
	// RunID prefixes every output file name
	RunID string

	// PerBatch is the size of every output file but the last
	PerBatch int

	// MaxFiles caps the number of output files; 0 means no cap
	MaxFiles int

	// Overlap moves batching and writing to a dedicated goroutine
	Overlap bool

	// ChannelDepth bounds the handoff to the writer goroutine
	ChannelDepth int
}

// Source yields filtered pages. *pagination.Fetcher implements it.
type Source interface {
	NextPage(ctx context.Context) (pagination.Result, error)
	Cursor() string
	Close()
}

// Orchestrator runs the fetch, batch and write loop.
type Orchestrator struct {
	source Source
	writer *output.Writer
	sink   sink.Sink
	config Config
	logger zerolog.Logger
}

// New creates an orchestrator. s may be nil when no secondary sink is configured.
func New(source Source, w *output.Writer, s sink.Sink, cfg Config) (*Orchestrator, error) {
	if source == nil || w == nil {
		return nil, fmt.Errorf("pipeline: source and writer are required")
	}
	if cfg.PerBatch < 1 {
		return nil, fmt.Errorf("pipeline: per batch must be at least 1 (got %d)", cfg.PerBatch)
	}
	if cfg.MaxFiles < 0 {
		return nil, fmt.Errorf("pipeline: max files must not be negative (got %d)", cfg.MaxFiles)
	}
	return &Orchestrator{
		source: source,
		writer: w,
		sink:   s,
		config: cfg,
		logger: logging.NewLogger("pipeline").With().Str("run_id", cfg.RunID).Logger(),
	}, nil
}

// Run fetches until end of feed, window exhaustion or the file cap,
// whichever comes first. The remaining-to-fetch counter only reconciles
// against the feed's reported total. Teardown always runs: the buffered
// remainder is flushed and accounting drift is reported. The summary is
// valid even when an error is returned.
func (o *Orchestrator) Run(ctx context.Context) (summary RunSummary, err error) {
	start := time.Now()
	state := newRunState()

	b := newBatcher(o.writer, o.sink, o.config)
	var st stage = &inline{b: b}
	if o.config.Overlap {
		st = startOverlapped(ctx, b, o.config.ChannelDepth)
	}

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			summary, err = o.finish(ctx, state, st, err)
			runDuration.Observe(time.Since(start).Seconds())
		})
	}
	defer teardown()

	o.logger.Info().
		Int("per_batch", o.config.PerBatch).
		Int("max_files", o.config.MaxFiles).
		Bool("overlap", o.config.Overlap).
		Msg("Run started")

	err = o.loop(ctx, state, st)
	teardown()
	return summary, err
}

func (o *Orchestrator) loop(ctx context.Context, state *RunState, st stage) error {
	for {
		res, err := o.source.NextPage(ctx)
		if err != nil {
			return err
		}

		if !state.started {
			o.logger.Info().Int("total", res.Total).Msg("Feed total received")
		}
		state.observe(res.Total, res.Applicable)
		remainingGauge.Set(float64(state.remaining))

		if len(res.Records) > 0 {
			ids := make([]string, len(res.Records))
			for i, r := range res.Records {
				ids[i] = r.ID
			}
			state.track(ids)

			if err := st.submit(ctx, res.Records); err != nil {
				if errors.Is(err, errStopped) {
					return nil
				}
				return err
			}
		}

		switch {
		case res.EndOfFeed:
			state.endOfFeed = true
			return nil
		case res.WindowExhausted:
			state.windowExhausted = true
			return nil
		}
	}
}

// finish is the run's teardown. It runs exactly once per Run.
func (o *Orchestrator) finish(ctx context.Context, state *RunState, st stage, runErr error) (RunSummary, error) {
	o.source.Close()
	res := st.close(ctx)

	summary := RunSummary{
		Files:           res.files,
		Records:         res.written,
		Kept:            state.kept,
		Dropped:         state.kept - res.written,
		Remaining:       state.remaining,
		Duplicates:      state.duplicates(),
		FinalCursor:     o.source.Cursor(),
		EndOfFeed:       state.endOfFeed,
		WindowExhausted: state.windowExhausted,
		CapReached:      res.capReached,
	}

	err := runErr
	if res.err != nil {
		if err == nil {
			err = res.err
		} else if !errors.Is(err, res.err) {
			err = errors.Join(err, res.err)
		}
	}

	if summary.CapReached && summary.Dropped > 0 {
		o.logger.Warn().
			Int("dropped", summary.Dropped).
			Int("max_files", o.config.MaxFiles).
			Msg("File cap reached, buffered records not written")
	}
	if summary.Remaining != 0 {
		o.logger.Warn().
			Int("remaining", summary.Remaining).
			Msg("Remaining-to-fetch counter did not reach zero")
	}
	for _, id := range sortedKeys(summary.Duplicates) {
		duplicateIDs.Inc()
		o.logger.Warn().
			Str("id", id).
			Int("duplicates", summary.Duplicates[id]).
			Msg("Record id kept more than once")
	}
	o.logger.Debug().Str("cursor", summary.FinalCursor).Msg("Final cursor")

	event := o.logger.Info()
	outcome := "success"
	if err != nil {
		event = o.logger.Error().Err(err)
		outcome = "error"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	event.
		Int("files", summary.Files).
		Int("records", summary.Records).
		Bool("end_of_feed", summary.EndOfFeed).
		Bool("window_exhausted", summary.WindowExhausted).
		Bool("cap_reached", summary.CapReached).
		Msg("Run finished")

	return summary, err
}
