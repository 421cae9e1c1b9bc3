package pipeline

import (
	"context"
	"errors"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// stage is the downstream side of the orchestrator: accumulate, split, write.
type stage interface {
	// submit hands kept records downstream. It returns errStopped once
	// downstream accepts no more records.
	submit(ctx context.Context, records []review.Record) error

	// close flushes what is buffered and reports the stage's totals.
	close(ctx context.Context) stageResult
}

type stageResult struct {
	files      int
	written    int
	capReached bool
	err        error
}

// inline runs the batcher on the orchestrator's goroutine.
type inline struct {
	b *batcher
}

func (s *inline) submit(ctx context.Context, records []review.Record) error {
	return s.b.add(ctx, records)
}

func (s *inline) close(ctx context.Context) stageResult {
	err := s.b.drain(context.WithoutCancel(ctx))
	return stageResult{
		files:      s.b.writer.Files(),
		written:    s.b.written,
		capReached: s.b.capped(),
		err:        err,
	}
}

// overlapped runs the batcher on a dedicated writer goroutine fed through a
// bounded channel. The writer re-batches by volume, independent of how the
// orchestrator chunked its sends. A slow writer blocks submit once depth
// sends are queued. Closing the channel tells it to drain.
type overlapped struct {
	in      chan []review.Record
	stopped chan struct{}
	done    chan stageResult
}

func startOverlapped(ctx context.Context, b *batcher, depth int) *overlapped {
	if depth < 1 {
		depth = 1
	}
	s := &overlapped{
		in:      make(chan []review.Record, depth),
		stopped: make(chan struct{}),
		done:    make(chan stageResult, 1),
	}
	go s.run(ctx, b)
	return s
}

func (s *overlapped) run(ctx context.Context, b *batcher) {
	var err error
	for records := range s.in {
		if err = b.add(ctx, records); err != nil {
			// Stop receiving; submit sees stopped instead of a free slot.
			close(s.stopped)
			break
		}
	}

	drainErr := b.drain(context.WithoutCancel(ctx))
	if err == nil || errors.Is(err, errStopped) {
		err = drainErr
	}
	s.done <- stageResult{
		files:      b.writer.Files(),
		written:    b.written,
		capReached: b.capped(),
		err:        err,
	}
}

func (s *overlapped) submit(ctx context.Context, records []review.Record) error {
	select {
	case <-s.stopped:
		return errStopped
	default:
	}

	select {
	case s.in <- records:
		return nil
	case <-s.stopped:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *overlapped) close(ctx context.Context) stageResult {
	close(s.in)
	return <-s.done
}
