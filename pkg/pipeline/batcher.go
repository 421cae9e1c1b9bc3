package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/steam-review-ingest/pkg/batch"
	"github.com/Sternrassler/steam-review-ingest/pkg/output"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
	"github.com/Sternrassler/steam-review-ingest/pkg/sink"
)

// errStopped is returned by submit once downstream accepts no more records,
// either because the file cap is reached or because writing failed.
var errStopped = errors.New("batch writer stopped")

// batcher owns the accumulator and the writer. Exactly one goroutine uses it.
type batcher struct {
	acc      *batch.Accumulator
	writer   *output.Writer
	sink     sink.Sink
	runID    string
	perBatch int
	maxFiles int

	written int
	failed  error
}

func newBatcher(w *output.Writer, s sink.Sink, cfg Config) *batcher {
	return &batcher{
		acc:      batch.NewAccumulator(),
		writer:   w,
		sink:     s,
		runID:    cfg.RunID,
		perBatch: cfg.PerBatch,
		maxFiles: cfg.MaxFiles,
	}
}

func (b *batcher) capped() bool {
	return b.maxFiles > 0 && b.writer.Files() >= b.maxFiles
}

// add buffers records and writes every full batch. Once capped, records
// are still buffered but never written.
func (b *batcher) add(ctx context.Context, records []review.Record) error {
	b.acc.Append(records...)
	for b.acc.Ready(b.perBatch) {
		if b.capped() {
			return errStopped
		}
		if err := b.flush(ctx, b.perBatch); err != nil {
			return err
		}
	}
	if b.capped() {
		return errStopped
	}
	return nil
}

func (b *batcher) flush(ctx context.Context, n int) error {
	records := b.acc.Split(n)
	f, err := b.writer.Write(records)
	if err != nil {
		b.failed = err
		return err
	}
	b.written += len(records)

	if b.sink == nil {
		return nil
	}
	err = b.sink.Publish(ctx, sink.Batch{
		RunID:   b.runID,
		Index:   f.Index,
		Name:    f.Name,
		Records: f.Records,
		Data:    f.Data,
	})
	if err != nil {
		b.failed = err
	}
	return err
}

// drain writes the buffered remainder in batches of at most perBatch while
// under the file cap. After a failed write nothing more is written.
func (b *batcher) drain(ctx context.Context) error {
	for b.failed == nil && b.acc.Len() > 0 && !b.capped() {
		if err := b.flush(ctx, b.perBatch); err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
	}
	return nil
}
