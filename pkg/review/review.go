// Package review defines the feed entry and output record shapes and the
// transformation between them.
package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Source is the literal tag stored in every record produced from the feed.
const Source = "steam"

// DateLayout is the ISO-8601 calendar date layout used for Record.Date.
const DateLayout = "2006-01-02"

// Count is a non-negative counter that the feed sometimes encodes as a
// JSON string instead of a number.
type Count int64

// UnmarshalJSON accepts both 12 and "12".
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse count %q: %w", data, err)
	}
	*c = Count(n)
	return nil
}

// Author is the author block of a feed entry.
type Author struct {
	SteamID          string `json:"steamid"`
	PlaytimeAtReview int64  `json:"playtime_at_review"`
}

// RawEntry is one element of a feed page.
type RawEntry struct {
	RecommendationID string `json:"recommendationid"`
	Author           Author `json:"author"`
	TimestampCreated int64  `json:"timestamp_created"`
	TimestampUpdated int64  `json:"timestamp_updated"`
	Review           string `json:"review"`
	CommentCount     Count  `json:"comment_count"`
	VotesUp          Count  `json:"votes_up"`
	VotesFunny       Count  `json:"votes_funny"`
	VotedUp          bool   `json:"voted_up"`
}

// Record is the canonical output unit. Field order matches the output files.
type Record struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Date        string `json:"date"`
	Hours       int64  `json:"hours"`
	Content     string `json:"content"`
	Comments    int64  `json:"comments"`
	Source      string `json:"source"`
	Helpful     int64  `json:"helpful"`
	Funny       int64  `json:"funny"`
	Recommended bool   `json:"recommended"`
}

// DateOf formats a unix timestamp as a UTC calendar date.
func DateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateLayout)
}

// MarshalIndent renders records the way output files store them.
func MarshalIndent(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "\t")
}
