package pipeline

import "sort"

// RunSummary reports the outcome of one run.
type RunSummary struct {
	// Files is the number of batch files written.
	Files int

	// Records is the number of records written to files.
	Records int

	// Kept is the number of records that passed filtering and deduplication.
	Kept int

	// Dropped counts kept records that were never written, because of the
	// file cap or a failed write.
	Dropped int

	// Remaining is the remaining-to-fetch counter at teardown; 0 means the
	// feed's reported total was reconciled exactly.
	Remaining int

	// Duplicates maps record ids kept more than once to their extra occurrences.
	Duplicates map[string]int

	FinalCursor     string
	EndOfFeed       bool
	WindowExhausted bool
	CapReached      bool
}

// RunState is the orchestrator's accounting. Only the orchestrator's own
// goroutine touches it.
type RunState struct {
	started   bool
	remaining int
	kept      int
	ids       map[string]int

	endOfFeed       bool
	windowExhausted bool
	capReached      bool
}

func newRunState() *RunState {
	return &RunState{ids: make(map[string]int)}
}

// observe records the feed total from the first page and reduces the
// remaining counter by the page's applicable count.
func (s *RunState) observe(total, applicable int) {
	if !s.started {
		s.remaining = total
		s.started = true
	}
	s.remaining -= applicable
}

func (s *RunState) track(ids []string) {
	for _, id := range ids {
		s.ids[id]++
	}
	s.kept += len(ids)
}

// duplicates returns ids kept more than once with their extra occurrences.
func (s *RunState) duplicates() map[string]int {
	dups := make(map[string]int)
	for id, n := range s.ids {
		if n > 1 {
			dups[id] = n - 1
		}
	}
	return dups
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
