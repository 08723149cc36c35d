package domain

import "time"

// Category is a classification outcome label. Most labels come from
// the topic configuration; the constants below are the sentinel
// outcomes the pipeline itself depends on.
type Category string

const (
	// CategoryNeedsReview is the primary-stage "insufficient signal"
	// outcome. Accounts with this category are routed to the
	// secondary-analyze stage.
	CategoryNeedsReview Category = "needs_review"

	// CategoryUncategorized is the fallback result for accounts the
	// classifier could not resolve after exhausting retries.
	CategoryUncategorized Category = "uncategorized"

	// CategoryInsufficientData is the deterministic result for
	// accounts with no fetched content. It never consumes an AI call.
	CategoryInsufficientData Category = "insufficient_data"
)

// Terminal reports whether a category ends the pipeline for an
// account. CategoryNeedsReview is the only non-terminal outcome.
func (c Category) Terminal() bool {
	return c != "" && c != CategoryNeedsReview
}

// Classification is the persisted classification state of one account.
// Mutated only by stage workers; the SecondaryPass marker makes
// re-delivered secondary jobs idempotent no-ops.
type Classification struct {
	AccountID     string
	Category      Category
	Confidence    float64
	Reasoning     string
	ClassifiedAt  time.Time
	SecondaryPass bool
	Error         string
}
