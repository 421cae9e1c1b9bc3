// Command count-records prints the number of records in each batch file
// and the total.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/steam-review-ingest/pkg/output"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	total := 0
	for _, path := range args {
		records, err := output.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		total += len(records)
		fmt.Fprintf(stdout, "%s\t: %d\n", path, len(records))
	}
	fmt.Fprintf(stdout, "total\t: %d\n", total)
	return 0
}
