package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadscout/internal/core/domain"
)

func TestInlineExecutor_RunsSearch(t *testing.T) {
	done := make(chan struct{})
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		close(done)
		return nil
	}, testLogger())

	job := &domain.Job{ID: "fb-1", Stage: domain.StageSearch}
	if err := exec.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("search never ran")
	}

	// The status flips to completed after the goroutine records it.
	deadline := time.After(time.Second)
	for {
		status, err := exec.GetJob(context.Background(), "fb-1")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if !status.Fallback {
			t.Fatal("expected fallback flag on status")
		}
		if status.State == domain.JobStateCompleted {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, state %s", status.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInlineExecutor_RejectsConcurrentSearch(t *testing.T) {
	release := make(chan struct{})
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		<-release
		return nil
	}, testLogger())
	defer close(release)

	if err := exec.Enqueue(context.Background(), &domain.Job{ID: "fb-1", Stage: domain.StageSearch}); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}

	err := exec.Enqueue(context.Background(), &domain.Job{ID: "fb-2", Stage: domain.StageSearch})
	var inProgress *SearchInProgressError
	if !errors.As(err, &inProgress) {
		t.Fatalf("expected SearchInProgressError, got %v", err)
	}
	if inProgress.JobID != "fb-1" {
		t.Errorf("expected running job id fb-1, got %s", inProgress.JobID)
	}
}

func TestInlineExecutor_SlotFreedAfterCompletion(t *testing.T) {
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		return nil
	}, testLogger())

	if err := exec.Enqueue(context.Background(), &domain.Job{ID: "fb-1", Stage: domain.StageSearch}); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}

	// Once the first search finishes, a new one must be accepted.
	deadline := time.After(time.Second)
	for {
		err := exec.Enqueue(context.Background(), &domain.Job{ID: "fb-2", Stage: domain.StageSearch})
		if err == nil {
			return
		}
		var inProgress *SearchInProgressError
		if !errors.As(err, &inProgress) {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("slot never freed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInlineExecutor_FailureRecorded(t *testing.T) {
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		return errors.New("search exploded")
	}, testLogger())

	if err := exec.Enqueue(context.Background(), &domain.Job{ID: "fb-1", Stage: domain.StageSearch}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		status, err := exec.GetJob(context.Background(), "fb-1")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if status.State == domain.JobStateFailed {
			if status.Error != "search exploded" {
				t.Errorf("expected error recorded, got %q", status.Error)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("failure never recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInlineExecutor_RejectsNonSearchStages(t *testing.T) {
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		return nil
	}, testLogger())

	err := exec.Enqueue(context.Background(), &domain.Job{ID: "x", Stage: domain.StagePrimary})
	if err == nil {
		t.Fatal("expected error for non-search stage")
	}
}

func TestInlineExecutor_AtMostOneActive(t *testing.T) {
	var active, peak int32
	release := make(chan struct{})
	exec := NewInlineExecutor(func(ctx context.Context, job *domain.Job) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&active, -1)
		return nil
	}, testLogger())

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := &domain.Job{ID: string(rune('a' + i)), Stage: domain.StageSearch}
			if err := exec.Enqueue(context.Background(), job); err == nil {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(release)

	if got := accepted.Load(); got != 1 {
		t.Errorf("expected exactly 1 accepted search, got %d", got)
	}
	if p := atomic.LoadInt32(&peak); p > 1 {
		t.Errorf("expected at most 1 active search, saw %d", p)
	}
}
