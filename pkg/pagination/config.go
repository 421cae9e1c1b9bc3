package pagination

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/steam-review-ingest/pkg/client"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// Construction errors.
var (
	ErrInvalidPageSize   = errors.New("invalid page size")
	ErrInvalidDateWindow = errors.New("invalid date window")
	ErrLookbackExceeded  = errors.New("date window exceeds lookback limit")
)

// MaxLookbackDays is how far before the run date MinDate may lie.
const MaxLookbackDays = 365

// MaxDayRange is the largest day_range the feed honours. A window reaching
// MaxLookbackDays back spans MaxDayRange+1 calendar days, so its first day
// can be partly missing from the feed's answer.
const MaxDayRange = 365

// Config holds fetcher configuration.
type Config struct {
	// PageSize is the per-request ceiling (1..100)
	PageSize int

	// DateSource selects the watermark timestamp and the feed ordering
	DateSource review.DateSource

	// MinDate and MaxDate bound the watermark, inclusive. A zero MinDate
	// disables the window. A zero MaxDate means the run date.
	MinDate time.Time
	MaxDate time.Time

	// Now is the run date; zero means time.Now()
	Now time.Time

	// FetchAhead requests the next page while the current one is consumed
	FetchAhead bool
}

// Windowed reports whether a date window is configured.
func (c Config) Windowed() bool {
	return !c.MinDate.IsZero()
}

// civil truncates t to midnight UTC of its calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// window is the validated, resolved date window.
type window struct {
	enabled  bool
	min      string
	max      string
	dayRange int

	// truncated is set when dayRange could not cover the whole window.
	truncated bool
}

// Validate checks page size, date source and the date window.
func (c Config) Validate() error {
	_, err := c.validate()
	return err
}

// validate checks the configuration and resolves the window.
func (c Config) validate() (window, error) {
	if c.PageSize < 1 || c.PageSize > client.MaxPageSize {
		return window{}, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidPageSize, c.PageSize, client.MaxPageSize)
	}
	if !c.DateSource.Valid() {
		return window{}, fmt.Errorf("%w: %v", review.ErrUnknownDateSource, c.DateSource)
	}
	if !c.Windowed() {
		return window{}, nil
	}

	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := civil(now)
	minDate := civil(c.MinDate)
	maxDate := today
	if !c.MaxDate.IsZero() {
		maxDate = civil(c.MaxDate)
	}

	if maxDate.After(today) {
		return window{}, fmt.Errorf("%w: max date %s is after run date %s",
			ErrInvalidDateWindow, maxDate.Format(review.DateLayout), today.Format(review.DateLayout))
	}
	if !maxDate.After(minDate) {
		return window{}, fmt.Errorf("%w: max date %s must be after min date %s",
			ErrInvalidDateWindow, maxDate.Format(review.DateLayout), minDate.Format(review.DateLayout))
	}
	if minDate.Before(today.AddDate(0, 0, -MaxLookbackDays)) {
		return window{}, fmt.Errorf("%w: min date %s is more than %d days before %s",
			ErrLookbackExceeded, minDate.Format(review.DateLayout), MaxLookbackDays, today.Format(review.DateLayout))
	}

	days := int(today.Sub(minDate).Hours()/24) + 1
	truncated := days > MaxDayRange
	if truncated {
		days = MaxDayRange
	}

	return window{
		enabled:   true,
		min:       minDate.Format(review.DateLayout),
		max:       maxDate.Format(review.DateLayout),
		dayRange:  days,
		truncated: truncated,
	}, nil
}
