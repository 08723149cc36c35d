package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"leadscout/internal/classify"
	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
)

// runSecondary executes one secondary-analyze job: refresh the
// account's timeline so the pass sees current content alongside the
// stored search posts, classify into the secondary category set, and
// persist with the SecondaryPass marker. The marker and the
// terminal-category check make re-delivered jobs no-ops without
// spending an AI call.
func (p *Pipeline) runSecondary(ctx context.Context, job *domain.Job) error {
	var payload domain.AnalyzePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid analyze payload: %w", err)
	}

	existing, err := p.classes.Get(ctx, payload.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		// Secondary without a primary result: the primary job failed
		// after emitting. Nothing to refine.
		p.log.Warn("secondary job for unclassified account, skipping", "account", payload.AccountID)
		return nil
	}
	if err != nil {
		return err
	}
	if existing.SecondaryPass || existing.Category.Terminal() {
		return nil
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
		// The primary pass may have failed its fetch too; stored search
		// posts are still worth a second look.
		p.log.Warn("timeline fetch failed, refining on stored content",
			"account", account.Handle, "error", err)
	}

	input, err := p.accountContent(ctx, account)
	if err != nil {
		return err
	}

	results, err := p.classifier.ClassifyBatch(ctx, topic, []classify.AccountContent{input}, true)
	if err != nil {
		return err
	}
	result := results[0]
	if err := p.classes.Save(ctx, &result); err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}

	p.log.Info("secondary pass finished",
		"account", account.Handle, "category", result.Category, "confidence", result.Confidence)
	return nil
}
