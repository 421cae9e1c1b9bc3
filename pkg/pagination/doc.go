// Package pagination walks a cursor-addressed review feed one page at a time.
//
// The feed hands out an opaque continuation cursor with every page, starting
// from "*". A page that carries no entries and repeats the cursor it was
// requested with marks the end of the feed.
//
// Example usage:
//
//	f, err := pagination.NewFetcher(feedClient, pagination.Config{
//		PageSize:   100,
//		DateSource: review.DateCreated,
//		FetchAhead: true,
//	})
//	defer f.Close()
//	for !f.EndOfFeed() {
//		res, err := f.NextPage(ctx)
//		...
//	}
//
// The fetcher:
//   - Validates the page size and date window before any request
//   - Drops entries outside [MinDate, MaxDate] and entries whose external id
//     was already seen in this run
//   - Counts "applicable" entries (watermark at or after MinDate) so callers
//     can reconcile against the feed's reported total
//   - Optionally requests page N+1 as soon as page N has arrived
package pagination
