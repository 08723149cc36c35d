package classify

import (
	"fmt"
	"strings"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/ai/provider"
)

// AccountContent is the input to classification: one account's profile
// plus its fetched posts. ID is the stable external id.
type AccountContent struct {
	ID     string
	Handle string
	Bio    string
	Posts  []string
}

// HasContent reports whether there is anything to classify. Accounts
// without content get a deterministic result and never reach the AI.
func (a AccountContent) HasContent() bool {
	return strings.TrimSpace(a.Bio) != "" || len(a.Posts) > 0
}

const systemPrompt = `You are an analyst labeling social-media accounts for a discovery pipeline.
Respond with a JSON array only, no prose. One object per account:
[{"handle": "<handle>", "category": "<category>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}]
Every account in the input must appear exactly once in the output.
Use only the categories you are given.`

// buildMessages renders the chat messages for one batch. The topic's
// prompt template may reference {{categories}} and {{accounts}}; both
// are substituted, and missing placeholders fall back to appending the
// rendered sections so a minimal template still works.
func buildMessages(topic *domain.TopicConfig, accounts []AccountContent, secondary bool) []provider.Message {
	template := topic.PromptTemplate
	categories := topic.Categories
	if secondary {
		template = topic.SecondaryPromptTemplate
		categories = topic.SecondaryCategories
	}

	catList := renderCategories(categories, secondary)
	acctBlock := renderAccounts(accounts)

	var user string
	if strings.Contains(template, "{{categories}}") || strings.Contains(template, "{{accounts}}") {
		user = strings.NewReplacer(
			"{{categories}}", catList,
			"{{accounts}}", acctBlock,
		).Replace(template)
	} else {
		var b strings.Builder
		if template != "" {
			b.WriteString(template)
			b.WriteString("\n\n")
		}
		b.WriteString("Categories: ")
		b.WriteString(catList)
		b.WriteString("\n\nAccounts:\n")
		b.WriteString(acctBlock)
		user = b.String()
	}

	return []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

func renderCategories(categories []domain.Category, secondary bool) string {
	names := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		names = append(names, string(c))
	}
	if !secondary {
		// needs_review is a legal answer on the primary pass so the
		// model has an escape hatch instead of inventing labels. The
		// secondary pass must commit to a terminal category.
		names = append(names, string(domain.CategoryNeedsReview))
	}
	return strings.Join(names, ", ")
}

func renderAccounts(accounts []AccountContent) string {
	var b strings.Builder
	for i, a := range accounts {
		fmt.Fprintf(&b, "%d. @%s\n", i+1, a.Handle)
		if a.Bio != "" {
			fmt.Fprintf(&b, "   bio: %s\n", a.Bio)
		}
		for _, p := range a.Posts {
			fmt.Fprintf(&b, "   post: %s\n", p)
		}
	}
	return b.String()
}
