// Package batch buffers transformed records and cuts them into ordered batches.
//
// Records arrive date-descending within each page. Split exploits that order:
// it only sorts runs of records sharing one date, which yields the total order
// (date descending, id ascending) in a single pass.
package batch

import (
	"sort"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// Accumulator is an append-only record buffer owned by a single goroutine.
type Accumulator struct {
	buf []review.Record
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds records to the end of the buffer.
func (a *Accumulator) Append(records ...review.Record) {
	a.buf = append(a.buf, records...)
}

// Len returns the number of buffered records.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Ready reports whether a full batch of perBatch records is buffered.
func (a *Accumulator) Ready(perBatch int) bool {
	return perBatch > 0 && len(a.buf) >= perBatch
}

// Split removes and returns the first n records in final order.
//
// Maximal runs of equal date are popped from the front and sorted by id.
// The run in progress when n is reached is collected completely before the
// cut, and its unused tail goes back to the front of the buffer, still
// id-sorted, so later splits continue the same order.
func (a *Accumulator) Split(n int) []review.Record {
	if n <= 0 || len(a.buf) == 0 {
		return nil
	}
	if n > len(a.buf) {
		n = len(a.buf)
	}

	out := make([]review.Record, 0, n)
	pos := 0
	for len(out) < n {
		end := pos + 1
		for end < len(a.buf) && a.buf[end].Date == a.buf[pos].Date {
			end++
		}

		run := a.buf[pos:end]
		sort.Slice(run, func(i, j int) bool { return run[i].ID < run[j].ID })

		take := n - len(out)
		if take >= len(run) {
			out = append(out, run...)
			pos = end
			continue
		}
		out = append(out, run[:take]...)
		pos += take
	}

	rest := make([]review.Record, len(a.buf)-pos)
	copy(rest, a.buf[pos:])
	a.buf = rest
	return out
}

// Drain splits off everything still buffered.
func (a *Accumulator) Drain() []review.Record {
	return a.Split(len(a.buf))
}
