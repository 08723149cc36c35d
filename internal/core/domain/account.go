package domain

import (
	"strings"
	"time"
)

// Account is a discovered social-media account. ExternalID is the
// stable key (platform + lowercased handle) used for upserts and
// idempotency checks.
type Account struct {
	ID           uint64
	ExternalID   string
	Handle       string
	DisplayName  string
	Bio          string
	Platform     string
	Followers    int
	DiscoveredAt time.Time
}

// ExternalID builds the stable account key from platform and handle.
func ExternalID(platform, handle string) string {
	return platform + ":" + strings.ToLower(handle)
}

// Post is one piece of fetched account content.
type Post struct {
	AccountID string
	Text      string
	Keyword   string // search keyword that surfaced the post, if any
	PostedAt  time.Time
	FetchedAt time.Time
}
