// Package classify turns fetched account content into category labels
// via batched AI completions, with whole-batch retry and deterministic
// fallback results so every input account always gets an answer.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/ai/provider"
	"leadscout/internal/infra/ai/routing"
	"leadscout/internal/metrics"
)

// Config controls batch retry behavior.
type Config struct {
	// BatchSize is the maximum accounts per AI call.
	BatchSize int

	// Retries is how many times an incomplete or unparseable batch is
	// re-sent before fallback results are produced.
	Retries int

	// RetryDelay is the linear backoff base: attempt N waits N×delay.
	RetryDelay time.Duration
}

// DefaultConfig matches the pipeline defaults: batches of 10, 3
// retries, 2s backoff base.
func DefaultConfig() Config {
	return Config{BatchSize: 10, Retries: 3, RetryDelay: 2 * time.Second}
}

// Classifier labels batches of accounts using whichever provider the
// router selects.
type Classifier struct {
	router Router
	cfg    Config
	log    *slog.Logger
}

// Router is the completion surface used by the classifier. Satisfied
// by routing.Router.
type Router interface {
	Complete(ctx context.Context, messages []provider.Message) (string, error)
}

// NewClassifier creates a classifier over the given router.
func NewClassifier(router Router, cfg Config, log *slog.Logger) *Classifier {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Classifier{
		router: router,
		cfg:    cfg,
		log:    log.With("component", "classifier"),
	}
}

// ClassifyBatch labels the given accounts for a topic. Accounts with
// content are partitioned into chunks of at most Config.BatchSize, one
// AI call per chunk, each chunk retried independently. It always
// returns exactly one classification per input account, in input
// order:
//   - accounts with no content get CategoryInsufficientData without
//     consuming an AI call
//   - accounts the model failed to label after all retries get
//     CategoryUncategorized with the failure recorded in Error; a
//     failed chunk never sinks the results of the others
//
// The only error return is context cancellation.
func (c *Classifier) ClassifyBatch(ctx context.Context, topic *domain.TopicConfig, accounts []AccountContent, secondary bool) ([]domain.Classification, error) {
	now := time.Now().UTC()
	results := make([]domain.Classification, len(accounts))

	var pending []AccountContent
	for i, a := range accounts {
		if !a.HasContent() {
			results[i] = domain.Classification{
				AccountID:     a.ID,
				Category:      domain.CategoryInsufficientData,
				Reasoning:     "no bio or posts available",
				ClassifiedAt:  now,
				SecondaryPass: secondary,
			}
			continue
		}
		pending = append(pending, a)
		results[i] = domain.Classification{AccountID: a.ID, SecondaryPass: secondary}
	}
	if len(pending) == 0 {
		return results, nil
	}

	entries := make(map[string]resultEntry, len(pending))
	failures := make(map[string]string)

	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		chunk := pending[start:min(start+c.cfg.BatchSize, len(pending))]

		parsed, err := c.classifyWithRetry(ctx, topic, chunk, secondary)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("chunk classification failed, emitting fallback results",
				"topic", topic.ID, "accounts", len(chunk), "error", err)
			for _, a := range chunk {
				failures[handleKey(a.Handle)] = err.Error()
			}
			if errors.Is(err, routing.ErrExhausted) {
				// Every provider is down; the remaining chunks would
				// only burn calls against the same dead router.
				for _, a := range pending[start+len(chunk):] {
					failures[handleKey(a.Handle)] = err.Error()
				}
				break
			}
			continue
		}
		for k, v := range parsed {
			entries[k] = v
		}
	}

	allowed := topic.Categories
	if secondary {
		allowed = topic.SecondaryCategories
	}

	for i := range results {
		if results[i].Category != "" {
			continue // insufficient-data short circuit
		}
		handle := handleKey(findHandle(accounts, results[i].AccountID))
		entry, ok := entries[handle]
		if !ok {
			results[i].Category = domain.CategoryUncategorized
			results[i].ClassifiedAt = now
			if msg, failed := failures[handle]; failed {
				results[i].Error = msg
			} else {
				results[i].Error = "missing from model response"
			}
			continue
		}

		cat := snapCategory(entry.Category, allowed)
		if secondary && !cat.Terminal() {
			// The secondary pass must commit; an evasive answer
			// becomes uncategorized rather than looping forever.
			cat = domain.CategoryUncategorized
		}
		results[i].Category = cat
		results[i].Confidence = clamp01(entry.Confidence)
		results[i].Reasoning = entry.Reasoning
		results[i].ClassifiedAt = now
	}

	for _, r := range results {
		metrics.AccountsClassified.WithLabelValues(stageLabel(secondary), string(r.Category)).Inc()
	}
	return results, nil
}

// classifyWithRetry sends one chunk until every account in it appears
// in the response or retries run out. Partial responses retry the
// whole chunk; per-account patching is not attempted.
func (c *Classifier) classifyWithRetry(ctx context.Context, topic *domain.TopicConfig, chunk []AccountContent, secondary bool) (map[string]resultEntry, error) {
	messages := buildMessages(topic, chunk, secondary)
	backoff := retry.WithMaxRetries(uint64(c.cfg.Retries), linearBackoff(c.cfg.RetryDelay))

	var entries map[string]resultEntry
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		raw, err := c.router.Complete(ctx, messages)
		if err != nil {
			if errors.Is(err, routing.ErrExhausted) {
				// All providers down: retrying the batch cannot help.
				return err
			}
			return retry.RetryableError(err)
		}

		parsed, err := parseResponse(raw)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("unparseable response: %w", err))
		}

		var missing []string
		for _, a := range chunk {
			if _, ok := parsed[handleKey(a.Handle)]; !ok {
				missing = append(missing, a.Handle)
			}
		}
		if len(missing) > 0 {
			return retry.RetryableError(fmt.Errorf("response missing %d of %d accounts: %s",
				len(missing), len(chunk), strings.Join(missing, ", ")))
		}

		entries = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func stageLabel(secondary bool) string {
	if secondary {
		return string(domain.StageSecondary)
	}
	return string(domain.StagePrimary)
}

// linearBackoff waits base×attempt between retries.
func linearBackoff(base time.Duration) retry.Backoff {
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n := atomic.AddInt64(&attempt, 1)
		return time.Duration(n) * base, false
	})
}

func handleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(handle, "@")))
}

func findHandle(accounts []AccountContent, id string) string {
	for _, a := range accounts {
		if a.ID == id {
			return a.Handle
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
