// Package output persists record batches as numbered JSON files and checks
// each written file against the batch schema.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

var (
	batchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_batches_written_total",
		Help: "Total batch files written",
	})

	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_records_written_total",
		Help: "Total records written to batch files",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_batch_validation_failures_total",
		Help: "Batch files that failed schema validation",
	})

	writeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_batch_write_duration_seconds",
		Help:    "Time to persist and validate one batch file",
		Buckets: prometheus.DefBuckets,
	})
)

// ValidationError reports a persisted batch file that violates the schema.
// The file is left on disk for inspection.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("batch file %s failed validation: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// File describes one written batch.
type File struct {
	Name    string
	Path    string
	Index   int
	Records []review.Record
	Data    []byte
}

// Writer writes batches to <dir>/<runID>.<index>.json with index counting from 0.
// A Writer is owned by a single goroutine.
type Writer struct {
	dir    string
	runID  string
	next   int
	logger zerolog.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir, runID string) (*Writer, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id must not be empty")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{
		dir:    dir,
		runID:  runID,
		logger: logging.NewLogger("output"),
	}, nil
}

// FileName returns the name of the batch file with the given index.
func FileName(runID string, index int) string {
	return fmt.Sprintf("%s.%d.json", runID, index)
}

// Files returns the number of files written so far.
func (w *Writer) Files() int {
	return w.next
}

// Write persists records and then validates the written bytes.
// The index advances once the file is on disk, so a file that fails
// validation still consumes its index.
func (w *Writer) Write(records []review.Record) (File, error) {
	start := time.Now()
	defer func() { writeDuration.Observe(time.Since(start).Seconds()) }()

	data, err := review.MarshalIndent(records)
	if err != nil {
		return File{}, fmt.Errorf("encode batch: %w", err)
	}

	name := FileName(w.runID, w.next)
	f := File{
		Name:    name,
		Path:    filepath.Join(w.dir, name),
		Index:   w.next,
		Records: records,
		Data:    data,
	}

	w.logger.Info().Int("records", len(records)).Str("file", f.Path).Msg("Writing batch")
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return File{}, fmt.Errorf("write %s: %w", f.Path, err)
	}
	w.next++

	if err := Validate(data); err != nil {
		validationFailures.Inc()
		return f, &ValidationError{Path: f.Path, Err: err}
	}

	batchesWritten.Inc()
	recordsWritten.Add(float64(len(records)))
	return f, nil
}

// ReadFile loads the records of a batch file.
func ReadFile(path string) ([]review.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []review.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
