package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"leadscout/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, workers map[domain.Stage]int) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueFromClient(client, workers, testLogger())
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func searchJob(t *testing.T, id, topicID string) *domain.Job {
	t.Helper()
	payload, err := json.Marshal(domain.SearchPayload{TopicID: topicID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &domain.Job{ID: id, Stage: domain.StageSearch, Payload: payload, EnqueuedAt: time.Now()}
}

func TestRedisQueue_EnqueueAndStatus(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	if err := q.Enqueue(ctx, searchJob(t, "job-1", "topic-a")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	status, err := q.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if status.State != domain.JobStateQueued {
		t.Errorf("expected queued state, got %s", status.State)
	}
	if status.Stage != domain.StageSearch {
		t.Errorf("expected search stage, got %s", status.Stage)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[domain.StageSearch].Waiting != 1 {
		t.Errorf("expected 1 waiting, got %d", counts[domain.StageSearch].Waiting)
	}
}

func TestRedisQueue_GetJobNotFound(t *testing.T) {
	q, _ := newTestQueue(t, nil)

	_, err := q.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRedisQueue_WorkerProcessesJobs(t *testing.T) {
	q, _ := newTestQueue(t, map[domain.Stage]int{domain.StageSearch: 1})
	ctx := context.Background()

	var processed atomic.Int32
	done := make(chan struct{}, 2)
	q.Register(domain.StageSearch, func(ctx context.Context, job *domain.Job) error {
		processed.Add(1)
		done <- struct{}{}
		return nil
	})

	if err := q.Enqueue(ctx, searchJob(t, "job-1", "topic-a")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, searchJob(t, "job-2", "topic-b")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	q.Start(ctx)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	q.Stop()

	if got := processed.Load(); got != 2 {
		t.Errorf("expected 2 processed jobs, got %d", got)
	}

	status, err := q.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if status.State != domain.JobStateCompleted {
		t.Errorf("expected completed state, got %s", status.State)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[domain.StageSearch].Completed != 2 {
		t.Errorf("expected 2 completed, got %d", counts[domain.StageSearch].Completed)
	}
}

func TestRedisQueue_FailedJobRecordsError(t *testing.T) {
	q, _ := newTestQueue(t, map[domain.Stage]int{domain.StageSearch: 1})
	ctx := context.Background()

	done := make(chan struct{})
	q.Register(domain.StageSearch, func(ctx context.Context, job *domain.Job) error {
		close(done)
		return errors.New("topic not found")
	})

	if err := q.Enqueue(ctx, searchJob(t, "job-1", "gone")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	q.Start(ctx)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
	}
	q.Stop()

	status, err := q.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if status.State != domain.JobStateFailed {
		t.Errorf("expected failed state, got %s", status.State)
	}
	if status.Error != "topic not found" {
		t.Errorf("expected error message recorded, got %q", status.Error)
	}
}

func TestRedisQueue_ConcurrentWorkersNoDuplicates(t *testing.T) {
	q, _ := newTestQueue(t, map[domain.Stage]int{domain.StagePrimary: 4})
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 10)
	q.Register(domain.StagePrimary, func(ctx context.Context, job *domain.Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(domain.AnalyzePayload{TopicID: "t", AccountID: "a"})
		job := &domain.Job{ID: string(rune('a' + i)), Stage: domain.StagePrimary, Payload: payload}
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	q.Start(ctx)
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s delivered %d times", id, n)
		}
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 distinct jobs, got %d", len(seen))
	}
}

func TestRedisQueue_UnavailableBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueFromClient(client, nil, testLogger())
	mr.Close()

	err := q.Enqueue(context.Background(), searchJob(t, "job-1", "topic-a"))
	if err == nil {
		t.Fatal("expected error from closed broker")
	}
	if !IsUnavailable(err) {
		t.Errorf("expected IsUnavailable to match, got %v", err)
	}
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrUnavailable, true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"dial string", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), true},
		{"timeout", errors.New("read tcp: i/o timeout"), true},
		{"job error", errors.New("topic not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnavailable(tt.err); got != tt.want {
				t.Errorf("IsUnavailable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
