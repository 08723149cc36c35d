package content

import (
	"context"
)

// Fetcher pulls account timelines through a shared Limiter so that
// concurrent analyze workers cannot overwhelm the upstream API.
type Fetcher struct {
	source   Source
	limiter  *Limiter
	maxItems int
}

// NewFetcher creates a fetcher over the given source. maxConcurrent
// bounds parallel upstream calls independent of the caller's own
// worker concurrency.
func NewFetcher(source Source, maxConcurrent, maxItems int) *Fetcher {
	return &Fetcher{
		source:   source,
		limiter:  NewLimiter(maxConcurrent),
		maxItems: maxItems,
	}
}

// FetchTimeline fetches one handle's timeline, waiting for a limiter
// slot first.
func (f *Fetcher) FetchTimeline(ctx context.Context, handle string) ([]TimelineItem, error) {
	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer f.limiter.Release()

	return f.source.FetchTimeline(ctx, handle, f.maxItems)
}
