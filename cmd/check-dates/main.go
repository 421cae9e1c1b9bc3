// Command check-dates reports batch records whose date lies outside
// [MIN, MAX].
//
//	check-dates MIN MAX FILE...
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/steam-review-ingest/pkg/output"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "usage: check-dates MIN MAX FILE...")
		return 2
	}

	minDate, err := time.Parse(review.DateLayout, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "min date: %v\n", err)
		return 2
	}
	maxDate, err := time.Parse(review.DateLayout, args[1])
	if err != nil {
		fmt.Fprintf(stderr, "max date: %v\n", err)
		return 2
	}

	code := 0
	for _, path := range args[2:] {
		records, err := output.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		for _, r := range records {
			d, err := time.Parse(review.DateLayout, r.Date)
			if err != nil || d.Before(minDate) || d.After(maxDate) {
				fmt.Fprintf(stdout, "%s: Bad date: %s\n", path, r.Date)
				code = 1
			}
		}
	}
	return code
}
