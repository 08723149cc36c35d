package classify

import (
	"testing"

	"leadscout/internal/core/domain"
)

func TestSnapCategory(t *testing.T) {
	allowed := []domain.Category{"seller", "collector", "market_watcher"}

	tests := []struct {
		name string
		raw  string
		want domain.Category
	}{
		{"exact", "seller", "seller"},
		{"case insensitive", "Seller", "seller"},
		{"space to underscore", "Market Watcher", "market_watcher"},
		{"hyphen to underscore", "market-watcher", "market_watcher"},
		{"snap unknown", "unknown", domain.CategoryNeedsReview},
		{"snap none", "none", domain.CategoryNeedsReview},
		{"snap no data", "no data", domain.CategoryInsufficientData},
		{"prefix match", "seller_account", "seller"},
		{"invented label", "crypto_influencer", domain.CategoryNeedsReview},
		{"empty", "", domain.CategoryNeedsReview},
		{"whitespace", "  ", domain.CategoryNeedsReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapCategory(tt.raw, allowed); got != tt.want {
				t.Errorf("snapCategory(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSnapCategory_NeedsReviewAlwaysLegal(t *testing.T) {
	// needs_review must snap onto itself even when not in the topic's
	// category list, since it drives the secondary-stage handoff.
	got := snapCategory("needs_review", []domain.Category{"seller"})
	if got != domain.CategoryNeedsReview {
		t.Errorf("expected needs_review, got %q", got)
	}
}
