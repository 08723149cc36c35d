package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"leadscout/internal/core/domain"
	"leadscout/internal/metrics"
)

// SearchInProgressError is returned when a fallback search is rejected
// because one is already running. It carries the running job's id so
// callers can report it.
type SearchInProgressError struct {
	JobID string
}

func (e *SearchInProgressError) Error() string {
	return fmt.Sprintf("search already in progress: %s", e.JobID)
}

// InlineExecutor runs search jobs in-process when the broker is down.
// It allows at most one search at a time; concurrent triggers get a
// SearchInProgressError naming the running job. Job statuses are kept
// in memory and lost on restart, which is the accepted durability
// trade-off of fallback mode.
type InlineExecutor struct {
	run Handler
	log *slog.Logger

	mu       sync.Mutex
	activeID string
	statuses map[string]*domain.JobStatus
}

// NewInlineExecutor creates a fallback executor. run performs the full
// synchronous search pipeline for one job.
func NewInlineExecutor(run Handler, log *slog.Logger) *InlineExecutor {
	return &InlineExecutor{
		run:      run,
		log:      log.With("component", "fallback"),
		statuses: make(map[string]*domain.JobStatus),
	}
}

// Enqueue accepts a search job and runs it in a background goroutine.
// Only one search may be active; others are rejected immediately.
func (e *InlineExecutor) Enqueue(ctx context.Context, job *domain.Job) error {
	if job.Stage != domain.StageSearch {
		return fmt.Errorf("fallback executor only accepts search jobs, got %s", job.Stage)
	}

	e.mu.Lock()
	if e.activeID != "" {
		active := e.activeID
		e.mu.Unlock()
		return &SearchInProgressError{JobID: active}
	}
	e.activeID = job.ID
	e.statuses[job.ID] = &domain.JobStatus{
		ID:       job.ID,
		Stage:    job.Stage,
		State:    domain.JobStateActive,
		Fallback: true,
	}
	e.mu.Unlock()

	metrics.FallbackActivations.Inc()
	e.log.Warn("queue unavailable, running search in-process", "job", job.ID)

	go func() {
		// Detached from the request context: the caller's HTTP request
		// finishes long before the search does.
		err := e.run(context.WithoutCancel(ctx), job)

		e.mu.Lock()
		defer e.mu.Unlock()
		st := e.statuses[job.ID]
		if err != nil {
			st.State = domain.JobStateFailed
			st.Error = err.Error()
			e.log.Error("fallback search failed", "job", job.ID, "error", err)
		} else {
			st.State = domain.JobStateCompleted
		}
		e.activeID = ""
	}()

	return nil
}

// GetJob returns the status of a fallback job.
func (e *InlineExecutor) GetJob(_ context.Context, id string) (*domain.JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.statuses[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	clone := *st
	return &clone, nil
}

// Counts reports fallback activity. Only the search stage can have an
// active entry; finished jobs count as completed or failed.
func (e *InlineExecutor) Counts(_ context.Context) (map[domain.Stage]domain.QueueCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var c domain.QueueCounts
	for _, st := range e.statuses {
		switch st.State {
		case domain.JobStateActive:
			c.Active++
		case domain.JobStateCompleted:
			c.Completed++
		case domain.JobStateFailed:
			c.Failed++
		}
	}
	return map[domain.Stage]domain.QueueCounts{domain.StageSearch: c}, nil
}
