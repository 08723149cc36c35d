// Package content implements access to the external social content
// API: keyword search, per-account timelines, and the bounded fan-out
// used to fetch many timelines at once.
package content

import (
	"context"
	"time"
)

// SearchItem is one search hit: a post plus the account that wrote it.
type SearchItem struct {
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Followers   int       `json:"followers"`
	Text        string    `json:"text"`
	PostedAt    time.Time `json:"posted_at"`
}

// SearchPage is one page of cursor-paginated search results.
type SearchPage struct {
	Items      []SearchItem `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// TimelineItem is one post from an account's timeline.
type TimelineItem struct {
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

// Source is the external content API consumed by the pipeline.
// Implementations are external collaborators; the pipeline depends
// only on this interface.
type Source interface {
	// SearchByKeyword returns one page of results for a keyword.
	// Pass an empty cursor for the first page.
	SearchByKeyword(ctx context.Context, keyword, cursor string) (*SearchPage, error)

	// FetchTimeline returns up to maxItems recent posts for a handle.
	FetchTimeline(ctx context.Context, handle string, maxItems int) ([]TimelineItem, error)
}
