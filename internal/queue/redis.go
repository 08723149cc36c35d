package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"leadscout/internal/core/domain"
	"leadscout/internal/metrics"
)

const (
	jobTTL       = 24 * time.Hour
	pollInterval = 250 * time.Millisecond
	leaseTTL     = 5 * time.Minute
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisQueue is a Redis-backed Queue. Each stage gets its own ready
// list and in-flight set; job state lives in a per-job hash so status
// queries work identically for queued, active, and finished jobs.
type RedisQueue struct {
	client   *redis.Client
	handlers map[domain.Stage]Handler
	workers  map[domain.Stage]int
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisQueue builds a queue client. Worker counts are per stage;
// stages absent from workers get a single worker.
func NewRedisQueue(cfg RedisConfig, workers map[domain.Stage]int, log *slog.Logger) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisQueue{
		client:   client,
		handlers: make(map[domain.Stage]Handler),
		workers:  workers,
		log:      log.With("component", "queue"),
	}
}

// NewRedisQueueFromClient wraps an existing client, used by tests.
func NewRedisQueueFromClient(client *redis.Client, workers map[domain.Stage]int, log *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client:   client,
		handlers: make(map[domain.Stage]Handler),
		workers:  workers,
		log:      log.With("component", "queue"),
	}
}

func readyKey(stage domain.Stage) string {
	return fmt.Sprintf("scout:ready:%s", stage)
}

func inflightKey(stage domain.Stage) string {
	return fmt.Sprintf("scout:inflight:%s", stage)
}

func statsKey(stage domain.Stage) string {
	return fmt.Sprintf("scout:stats:%s", stage)
}

func jobKey(id string) string {
	return "scout:job:" + id
}

// Ping checks broker reachability.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Register installs the handler for a stage. Must be called before Start.
func (q *RedisQueue) Register(stage domain.Stage, h Handler) {
	q.handlers[stage] = h
}

// Enqueue adds a job to its stage's ready list and records its state.
func (q *RedisQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"stage", string(job.Stage),
		"state", string(domain.JobStateQueued),
		"data", payload,
	)
	pipe.Expire(ctx, jobKey(job.ID), jobTTL)
	pipe.RPush(ctx, readyKey(job.Stage), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.QueueDepth.WithLabelValues(string(job.Stage)).Inc()
	return nil
}

// GetJob returns the status of a job by id.
func (q *RedisQueue) GetJob(ctx context.Context, id string) (*domain.JobStatus, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return &domain.JobStatus{
		ID:     id,
		Stage:  domain.Stage(fields["stage"]),
		State:  domain.JobState(fields["state"]),
		Result: fields["result"],
		Error:  fields["error"],
	}, nil
}

// Counts reports per-stage queue depths.
func (q *RedisQueue) Counts(ctx context.Context) (map[domain.Stage]domain.QueueCounts, error) {
	counts := make(map[domain.Stage]domain.QueueCounts, len(domain.Stages))
	for _, stage := range domain.Stages {
		waiting, err := q.client.LLen(ctx, readyKey(stage)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read queue depth: %w", err)
		}
		active, err := q.client.ZCard(ctx, inflightKey(stage)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read in-flight count: %w", err)
		}
		stats, err := q.client.HGetAll(ctx, statsKey(stage)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stage stats: %w", err)
		}
		c := domain.QueueCounts{Waiting: waiting, Active: active}
		fmt.Sscanf(stats["completed"], "%d", &c.Completed)
		fmt.Sscanf(stats["failed"], "%d", &c.Failed)
		counts[stage] = c
	}
	return counts, nil
}

// Start launches worker pools for all registered stages.
func (q *RedisQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	ctx, q.cancel = context.WithCancel(ctx)
	for stage, handler := range q.handlers {
		n := q.workers[stage]
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			q.wg.Add(1)
			go q.workerLoop(ctx, stage, handler)
		}
		q.log.Info("workers started", "stage", stage, "count", n)
	}
}

// Stop halts all workers and waits for in-flight jobs to finish.
func (q *RedisQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
}

// Close stops workers and releases the Redis client.
func (q *RedisQueue) Close() error {
	q.Stop()
	return q.client.Close()
}

func (q *RedisQueue) workerLoop(ctx context.Context, stage domain.Stage, handler Handler) {
	defer q.wg.Done()

	for {
		job, err := q.dequeue(ctx, stage)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Warn("dequeue failed", "stage", stage, "error", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		q.process(ctx, stage, job, handler)
	}
}

// dequeueScript pops a ready job and records its lease atomically, so
// a crash between the two steps cannot lose a job.
var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return false
`)

func (q *RedisQueue) dequeue(ctx context.Context, stage domain.Stage) (*domain.Job, error) {
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{readyKey(stage), inflightKey(stage)},
		time.Now().Add(leaseTTL).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}

	data, err := q.client.HGet(ctx, jobKey(id), "data").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) process(ctx context.Context, stage domain.Stage, job *domain.Job, handler Handler) {
	_ = q.client.HSet(ctx, jobKey(job.ID), "state", string(domain.JobStateActive)).Err()
	metrics.QueueDepth.WithLabelValues(string(stage)).Dec()

	err := handler(ctx, job)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey(stage), job.ID)
	if err != nil {
		pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.JobStateFailed), "error", err.Error())
		pipe.HIncrBy(ctx, statsKey(stage), "failed", 1)
		metrics.JobsProcessed.WithLabelValues(string(stage), "failed").Inc()
		q.log.Error("job failed", "stage", stage, "job", job.ID, "error", err)
	} else {
		pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.JobStateCompleted))
		pipe.HIncrBy(ctx, statsKey(stage), "completed", 1)
		metrics.JobsProcessed.WithLabelValues(string(stage), "completed").Inc()
	}
	if _, perr := pipe.Exec(context.WithoutCancel(ctx)); perr != nil {
		q.log.Warn("failed to record job outcome", "job", job.ID, "error", perr)
	}
}
