package review

import (
	"fmt"

	"github.com/Sternrassler/steam-review-ingest/pkg/fingerprint"
)

// Transformer maps feed entries to records. The date source is fixed at
// construction.
type Transformer struct {
	source DateSource
}

// NewTransformer returns a Transformer for source.
func NewTransformer(source DateSource) (Transformer, error) {
	if !source.Valid() {
		return Transformer{}, fmt.Errorf("%w: %v", ErrUnknownDateSource, source)
	}
	return Transformer{source: source}, nil
}

// Source returns the configured date source.
func (t Transformer) Source() DateSource {
	return t.source
}

// Watermark returns the calendar date used for window filtering.
func (t Transformer) Watermark(e RawEntry) string {
	return DateOf(t.source.Timestamp(e))
}

// Transform converts one entry. It performs no I/O.
func (t Transformer) Transform(e RawEntry) Record {
	return Record{
		ID:          fingerprint.Record(e.RecommendationID, e.Review),
		Author:      fingerprint.Author(e.Author.SteamID),
		Date:        t.Watermark(e),
		Hours:       e.Author.PlaytimeAtReview,
		Content:     e.Review,
		Comments:    int64(e.CommentCount),
		Source:      Source,
		Helpful:     int64(e.VotesUp),
		Funny:       int64(e.VotesFunny),
		Recommended: e.VotedUp,
	}
}
