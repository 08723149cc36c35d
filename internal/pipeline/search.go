package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
	"leadscout/internal/metrics"
)

// runSearch executes one search job: paginate every topic keyword,
// upsert the accounts that surface, store the posts that matched, and
// emit a primary-analyze job per account that still needs a label.
func (p *Pipeline) runSearch(ctx context.Context, job *domain.Job, emit emitFunc) error {
	var payload domain.SearchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid search payload: %w", err)
	}

	topic, err := p.topics.Get(ctx, payload.TopicID)
	if err != nil {
		return fmt.Errorf("topic %s: %w", payload.TopicID, err)
	}
	maxPages := payload.MaxPages
	if maxPages <= 0 {
		maxPages = topic.MaxPages
	}

	start := time.Now()
	discovered := make(map[string]string) // external id -> handle

	for _, keyword := range topic.Keywords {
		if err := p.searchKeyword(ctx, topic, keyword, maxPages, discovered); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One keyword failing must not sink the others.
			p.log.Warn("keyword search failed", "topic", topic.ID, "keyword", keyword, "error", err)
		}
	}

	var emitted int
	for externalID := range discovered {
		needsAnalysis, err := p.needsPrimaryAnalysis(ctx, externalID)
		if err != nil {
			return err
		}
		if !needsAnalysis {
			continue
		}
		next, err := newAnalyzeJob(domain.StagePrimary, topic.ID, externalID)
		if err != nil {
			return err
		}
		if err := emit(ctx, next); err != nil {
			return fmt.Errorf("failed to hand off account %s: %w", externalID, err)
		}
		emitted++
	}

	p.log.Info("search finished",
		"topic", topic.ID,
		"discovered", len(discovered),
		"analyzing", emitted,
		"took", time.Since(start))
	return nil
}

func (p *Pipeline) searchKeyword(ctx context.Context, topic *domain.TopicConfig, keyword string, maxPages int, discovered map[string]string) error {
	cursor := ""
	now := time.Now().UTC()

	for page := 0; page < maxPages; page++ {
		result, err := p.source.SearchByKeyword(ctx, keyword, cursor)
		if err != nil {
			return err
		}

		var posts []domain.Post
		for _, item := range result.Items {
			externalID := domain.ExternalID(p.platform, item.Handle)
			created, err := p.accounts.Upsert(ctx, &domain.Account{
				ExternalID:  externalID,
				Handle:      item.Handle,
				DisplayName: item.DisplayName,
				Bio:         item.Bio,
				Platform:    p.platform,
				Followers:   item.Followers,
			})
			if err != nil {
				return fmt.Errorf("failed to save account %s: %w", item.Handle, err)
			}
			if created {
				metrics.AccountsDiscovered.WithLabelValues(topic.ID).Inc()
			}
			discovered[externalID] = item.Handle

			if item.Text != "" {
				posts = append(posts, domain.Post{
					AccountID: externalID,
					Text:      item.Text,
					Keyword:   keyword,
					PostedAt:  item.PostedAt,
					FetchedAt: now,
				})
			}
		}
		if err := p.accounts.SavePosts(ctx, posts); err != nil {
			return fmt.Errorf("failed to save posts: %w", err)
		}

		cursor = result.NextCursor
		if cursor == "" {
			break
		}
	}
	return nil
}

// needsPrimaryAnalysis reports whether a discovered account should get
// a primary-analyze job. Accounts with a terminal label or a finished
// secondary pass are done; re-discovery must not re-classify them.
func (p *Pipeline) needsPrimaryAnalysis(ctx context.Context, externalID string) (bool, error) {
	existing, err := p.classes.Get(ctx, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !existing.Category.Terminal() && !existing.SecondaryPass, nil
}
