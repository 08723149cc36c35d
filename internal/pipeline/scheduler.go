package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"leadscout/internal/queue"
)

// Scheduler triggers periodic searches for topics that configure a
// scan interval. A trigger that collides with a still-running fallback
// search is skipped, not queued up.
type Scheduler struct {
	pipeline *Pipeline
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler over the pipeline.
func NewScheduler(p *Pipeline, log *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline: p,
		log:      log.With("component", "scheduler"),
	}
}

// Start launches one ticker per scheduled topic. Topics without a scan
// interval are ignored.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	topics, err := s.pipeline.topics.List(ctx)
	if err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, topic := range topics {
		if topic.ScanInterval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.run(ctx, topic.ID, topic.ScanInterval)
		s.log.Info("scheduled topic", "topic", topic.ID, "interval", topic.ScanInterval)
	}
	return nil
}

// Stop halts all tickers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, topicID string, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := s.pipeline.TriggerSearch(ctx, topicID, 0)
			if err != nil {
				var inProgress *queue.SearchInProgressError
				if errors.As(err, &inProgress) {
					s.log.Info("skipping scheduled search, one already running",
						"topic", topicID, "job", inProgress.JobID)
					continue
				}
				s.log.Error("scheduled search failed", "topic", topicID, "error", err)
				continue
			}
			s.log.Info("scheduled search triggered", "topic", topicID, "job", status.ID)
		}
	}
}
