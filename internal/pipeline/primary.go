package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"leadscout/internal/classify"
	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
)

// maxPostsPerClassification caps how much stored content goes into a
// prompt for one account.
const maxPostsPerClassification = 20

// runPrimary executes one primary-analyze job: fetch the account's
// timeline, classify bio + posts, persist the result, and emit a
// secondary-analyze job when the answer is needs_review.
//
// Re-delivery is an idempotent no-op: an account that already holds a
// classification is not classified again, though a pending
// needs_review still re-emits its secondary job so a crash between
// save and emit cannot strand it.
func (p *Pipeline) runPrimary(ctx context.Context, job *domain.Job, emit emitFunc) error {
	var payload domain.AnalyzePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid analyze payload: %w", err)
	}

	existing, err := p.classes.Get(ctx, payload.AccountID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.Category.Terminal() || existing.SecondaryPass {
			return nil
		}
		if existing.Category == domain.CategoryNeedsReview {
			return p.emitSecondary(ctx, payload, emit)
		}
	}

	topic, err := p.topics.Get(ctx, payload.TopicID)
	if err != nil {
		return fmt.Errorf("topic %s: %w", payload.TopicID, err)
	}
	account, err := p.accounts.GetByExternalID(ctx, payload.AccountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", payload.AccountID, err)
	}

	if err := p.refreshTimeline(ctx, account); err != nil {
		// Stored search posts may still be enough to classify on.
		p.log.Warn("timeline fetch failed, classifying on stored content",
			"account", account.Handle, "error", err)
	}

	input, err := p.accountContent(ctx, account)
	if err != nil {
		return err
	}

	results, err := p.classifier.ClassifyBatch(ctx, topic, []classify.AccountContent{input}, false)
	if err != nil {
		return err
	}
	result := results[0]
	if err := p.classes.Save(ctx, &result); err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}

	p.log.Info("account classified",
		"account", account.Handle, "category", result.Category, "confidence", result.Confidence)

	if result.Category == domain.CategoryNeedsReview {
		return p.emitSecondary(ctx, payload, emit)
	}
	return nil
}

func (p *Pipeline) emitSecondary(ctx context.Context, payload domain.AnalyzePayload, emit emitFunc) error {
	next, err := newAnalyzeJob(domain.StageSecondary, payload.TopicID, payload.AccountID)
	if err != nil {
		return err
	}
	return emit(ctx, next)
}

// refreshTimeline pulls the account's recent posts through the
// concurrency-limited fetcher and stores them.
func (p *Pipeline) refreshTimeline(ctx context.Context, account *domain.Account) error {
	items, err := p.fetcher.FetchTimeline(ctx, account.Handle)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	posts := make([]domain.Post, 0, len(items))
	for _, item := range items {
		posts = append(posts, domain.Post{
			AccountID: account.ExternalID,
			Text:      item.Text,
			PostedAt:  item.PostedAt,
			FetchedAt: now,
		})
	}
	return p.accounts.SavePosts(ctx, posts)
}

// accountContent assembles the classification input from the account
// profile and its stored posts, newest first.
func (p *Pipeline) accountContent(ctx context.Context, account *domain.Account) (classify.AccountContent, error) {
	posts, err := p.accounts.GetPostsByAccount(ctx, account.ExternalID)
	if err != nil {
		return classify.AccountContent{}, fmt.Errorf("failed to load posts: %w", err)
	}

	texts := make([]string, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		if _, dup := seen[post.Text]; dup {
			continue
		}
		seen[post.Text] = struct{}{}
		texts = append(texts, post.Text)
		if len(texts) >= maxPostsPerClassification {
			break
		}
	}

	return classify.AccountContent{
		ID:     account.ExternalID,
		Handle: account.Handle,
		Bio:    account.Bio,
		Posts:  texts,
	}, nil
}
