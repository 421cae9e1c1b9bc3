package review

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDateSource is returned for a date source other than created or updated.
var ErrUnknownDateSource = errors.New("unknown date source")

// DateSource selects which entry timestamp becomes the record date and the
// watermark. It also decides the feed's ordering filter.
type DateSource int

const (
	// DateCreated uses timestamp_created and the "recent" feed ordering.
	DateCreated DateSource = iota
	// DateUpdated uses timestamp_updated and the "updated" feed ordering.
	DateUpdated
)

// ParseDateSource resolves a configuration value.
func ParseDateSource(s string) (DateSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "":
		return DateCreated, nil
	case "updated":
		return DateUpdated, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDateSource, s)
	}
}

// Valid reports whether d is one of the two known variants.
func (d DateSource) Valid() bool {
	return d == DateCreated || d == DateUpdated
}

// String implements fmt.Stringer.
func (d DateSource) String() string {
	switch d {
	case DateCreated:
		return "created"
	case DateUpdated:
		return "updated"
	default:
		return fmt.Sprintf("DateSource(%d)", int(d))
	}
}

// Filter returns the feed filter that orders pages by this timestamp.
func (d DateSource) Filter() string {
	if d == DateUpdated {
		return "updated"
	}
	return "recent"
}

// Timestamp returns the entry timestamp selected by d.
func (d DateSource) Timestamp(e RawEntry) int64 {
	if d == DateUpdated {
		return e.TimestampUpdated
	}
	return e.TimestampCreated
}
