// Package pipeline orchestrates the discovery flow: keyword search
// discovers accounts, a primary analysis pass labels them, and
// accounts the first pass could not resolve get a secondary pass.
// Stage transitions ride the durable queue; when the broker is down a
// single search at a time runs in-process instead.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"leadscout/internal/classify"
	"leadscout/internal/core/domain"
	"leadscout/internal/infra/content"
	"leadscout/internal/infra/storage"
	"leadscout/internal/queue"
)

// DurableQueue is the broker-backed queue surface the pipeline uses.
// Satisfied by queue.RedisQueue; nil means fallback-only operation.
type DurableQueue interface {
	queue.Queue
	Ping(ctx context.Context) error
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Topics          storage.TopicRepository
	Accounts        storage.AccountRepository
	Classifications storage.ClassificationRepository
	Source          content.Source
	Fetcher         *content.Fetcher
	Classifier      *classify.Classifier
	Durable         DurableQueue
	Platform        string
	Log             *slog.Logger
}

// Pipeline coordinates stages and owns the durable-vs-fallback
// enqueue decision.
type Pipeline struct {
	topics   storage.TopicRepository
	accounts storage.AccountRepository
	classes  storage.ClassificationRepository

	source     content.Source
	fetcher    *content.Fetcher
	classifier *classify.Classifier

	durable  DurableQueue
	fallback *queue.InlineExecutor

	platform string
	log      *slog.Logger
}

// New creates a pipeline. The in-process fallback executor is always
// present; it only activates when the durable queue is missing or
// unreachable.
func New(deps Deps) *Pipeline {
	p := &Pipeline{
		topics:     deps.Topics,
		accounts:   deps.Accounts,
		classes:    deps.Classifications,
		source:     deps.Source,
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		durable:    deps.Durable,
		platform:   deps.Platform,
		log:        deps.Log.With("component", "pipeline"),
	}
	p.fallback = queue.NewInlineExecutor(p.runInline, deps.Log)
	return p
}

// TriggerSearch starts a search for a topic. It prefers the durable
// queue and switches to the in-process fallback when the broker is
// unreachable; in fallback mode a second trigger while one search runs
// returns queue.SearchInProgressError.
func (p *Pipeline) TriggerSearch(ctx context.Context, topicID string, maxPages int) (*domain.JobStatus, error) {
	topic, err := p.topics.Get(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = topic.MaxPages
	}

	payload, err := json.Marshal(domain.SearchPayload{TopicID: topic.ID, MaxPages: maxPages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search payload: %w", err)
	}
	job := &domain.Job{
		ID:         uuid.NewString(),
		Stage:      domain.StageSearch,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	if p.durable != nil {
		err := p.durable.Enqueue(ctx, job)
		if err == nil {
			return &domain.JobStatus{ID: job.ID, Stage: job.Stage, State: domain.JobStateQueued}, nil
		}
		if !queue.IsUnavailable(err) {
			return nil, err
		}
		p.log.Warn("durable queue unreachable, switching to in-process fallback",
			"topic", topicID, "error", err)
	}

	if err := p.fallback.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return &domain.JobStatus{ID: job.ID, Stage: job.Stage, State: domain.JobStateActive, Fallback: true}, nil
}

// Status resolves a job id against the durable queue first, then the
// fallback executor, so callers need not know where a job ran.
func (p *Pipeline) Status(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	if p.durable != nil {
		status, err := p.durable.GetJob(ctx, jobID)
		if err == nil {
			return status, nil
		}
		if err != queue.ErrJobNotFound && !queue.IsUnavailable(err) {
			return nil, err
		}
	}
	return p.fallback.GetJob(ctx, jobID)
}

// Counts merges durable and fallback queue depths per stage.
func (p *Pipeline) Counts(ctx context.Context) (map[domain.Stage]domain.QueueCounts, error) {
	merged := make(map[domain.Stage]domain.QueueCounts, len(domain.Stages))

	if p.durable != nil {
		durable, err := p.durable.Counts(ctx)
		if err != nil && !queue.IsUnavailable(err) {
			return nil, err
		}
		for stage, c := range durable {
			merged[stage] = c
		}
	}

	inline, err := p.fallback.Counts(ctx)
	if err != nil {
		return nil, err
	}
	for stage, c := range inline {
		m := merged[stage]
		m.Active += c.Active
		m.Completed += c.Completed
		m.Failed += c.Failed
		merged[stage] = m
	}
	return merged, nil
}

// emitFunc delivers a follow-up job: durable enqueue in queued mode,
// synchronous execution in fallback mode.
type emitFunc func(ctx context.Context, job *domain.Job) error

// HandleSearch is the durable queue handler for the search stage.
func (p *Pipeline) HandleSearch(ctx context.Context, job *domain.Job) error {
	return p.runSearch(ctx, job, p.emitDurable)
}

// HandlePrimary is the durable queue handler for the primary-analyze
// stage.
func (p *Pipeline) HandlePrimary(ctx context.Context, job *domain.Job) error {
	return p.runPrimary(ctx, job, p.emitDurable)
}

// HandleSecondary is the durable queue handler for the
// secondary-analyze stage.
func (p *Pipeline) HandleSecondary(ctx context.Context, job *domain.Job) error {
	return p.runSecondary(ctx, job)
}

func (p *Pipeline) emitDurable(ctx context.Context, job *domain.Job) error {
	return p.durable.Enqueue(ctx, job)
}

// runInline executes the whole flow synchronously for one fallback
// search job: discovered accounts are analyzed immediately instead of
// being queued, and needs_review accounts flow straight into the
// secondary pass.
func (p *Pipeline) runInline(ctx context.Context, job *domain.Job) error {
	return p.runSearch(ctx, job, func(ctx context.Context, next *domain.Job) error {
		return p.runPrimary(ctx, next, func(ctx context.Context, sec *domain.Job) error {
			return p.runSecondary(ctx, sec)
		})
	})
}

func newAnalyzeJob(stage domain.Stage, topicID, accountID string) (*domain.Job, error) {
	payload, err := json.Marshal(domain.AnalyzePayload{TopicID: topicID, AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyze payload: %w", err)
	}
	return &domain.Job{
		ID:         uuid.NewString(),
		Stage:      stage,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}
