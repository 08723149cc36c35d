// Package queue provides durable job queuing for the discovery
// pipeline, with a Redis-backed implementation and an in-process
// fallback executor for when the broker is unreachable.
package queue

import (
	"context"
	"errors"
	"strings"
	"syscall"

	"leadscout/internal/core/domain"
)

var (
	// ErrUnavailable indicates the queue broker cannot be reached.
	ErrUnavailable = errors.New("queue unavailable")

	// ErrJobNotFound indicates no job exists with the given id.
	ErrJobNotFound = errors.New("job not found")
)

// Handler processes one dequeued job. A nil return acknowledges the
// job; an error marks it failed.
type Handler func(ctx context.Context, job *domain.Job) error

// Queue enqueues pipeline jobs and answers status queries.
type Queue interface {
	// Enqueue adds a job to its stage's queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// GetJob returns the status of a previously enqueued job, or
	// ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*domain.JobStatus, error)

	// Counts reports per-stage queue depths.
	Counts(ctx context.Context) (map[domain.Stage]domain.QueueCounts, error)
}

// IsUnavailable reports whether err indicates the broker itself is
// down, as opposed to a job-level failure. Used to decide when to
// switch to the in-process fallback.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "no such host")
}
