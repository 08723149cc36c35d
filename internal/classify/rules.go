package classify

import (
	"strings"

	"leadscout/internal/core/domain"
)

// snapRules maps common off-list model answers onto sentinel
// categories. Checked after normalization, before the allowed-set
// lookup.
var snapRules = map[string]domain.Category{
	"unknown":       domain.CategoryNeedsReview,
	"unsure":        domain.CategoryNeedsReview,
	"unclear":       domain.CategoryNeedsReview,
	"review":        domain.CategoryNeedsReview,
	"needs_review":  domain.CategoryNeedsReview,
	"n_a":           domain.CategoryNeedsReview,
	"none":          domain.CategoryNeedsReview,
	"other":         domain.CategoryNeedsReview,
	"not_enough":    domain.CategoryInsufficientData,
	"no_data":       domain.CategoryInsufficientData,
	"insufficient":  domain.CategoryInsufficientData,
	"uncategorized": domain.CategoryUncategorized,
}

// normalizeCategory lowercases and collapses separators so "Needs
// Review", "needs-review" and "needs_review" all compare equal.
func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

// snapCategory resolves a raw model answer against the allowed
// category set. Off-list answers fall through the snap rules, then to
// needs_review so an inventing model can never introduce a new label.
func snapCategory(raw string, allowed []domain.Category) domain.Category {
	norm := normalizeCategory(raw)
	if norm == "" {
		return domain.CategoryNeedsReview
	}

	for _, c := range allowed {
		if normalizeCategory(string(c)) == norm {
			return c
		}
	}
	if snapped, ok := snapRules[norm]; ok {
		return snapped
	}
	// Prefix match last: "seller_account" snaps onto "seller".
	for _, c := range allowed {
		if strings.HasPrefix(norm, normalizeCategory(string(c))) {
			return c
		}
	}
	return domain.CategoryNeedsReview
}
