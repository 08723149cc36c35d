// Package control wires the application together: storage, AI
// providers, the content source, queue, pipeline, scheduler, and the
// HTTP control surface.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"leadscout/internal/classify"
	"leadscout/internal/core/config"
	"leadscout/internal/core/domain"
	"leadscout/internal/infra/ai"
	"leadscout/internal/infra/content"
	"leadscout/internal/infra/storage"
	"leadscout/internal/infra/storage/memory"
	"leadscout/internal/infra/storage/postgres"
	"leadscout/internal/pipeline"
	"leadscout/internal/queue"
)

// Scout is the main application struct managing component lifecycle.
type Scout struct {
	cfg       *config.AppConfig
	db        *postgres.DB
	redis     *queue.RedisQueue
	pipeline  *pipeline.Pipeline
	scheduler *pipeline.Scheduler
	server    *Server
	router    *ai.Router
	log       *slog.Logger
}

// NewScout builds the application from configuration.
func NewScout(cfg *config.AppConfig, log *slog.Logger) (*Scout, error) {
	// 1. Storage: PostgreSQL when configured, in-memory otherwise.
	var (
		accountRepo storage.AccountRepository
		classRepo   storage.ClassificationRepository
		topicRepo   storage.TopicRepository
		db          *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		accountRepo = postgres.NewAccountRepo(db)
		classRepo = postgres.NewClassificationRepo(db)
		topicRepo = postgres.NewTopicRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		accountRepo = memory.NewAccountRepo()
		classRepo = memory.NewClassificationRepo()
		topicRepo = memory.NewTopicRepo()
		log.Info("Using memory storage")
	}

	// 2. Seed topics from configuration.
	for _, tc := range cfg.Topics {
		topic := tc.Topic()
		if err := topicRepo.Save(context.Background(), &topic); err != nil {
			return nil, fmt.Errorf("failed to seed topic %s: %w", tc.ID, err)
		}
	}

	// 3. AI providers in priority order behind the failover router.
	providers := make([]ai.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providers = append(providers,
			ai.NewChatProvider(pc.Name, pc.BaseURL, pc.APIKey, pc.Models, pc.Timeout))
		log.Info("Registered AI provider", "name", pc.Name, "models", len(pc.Models))
	}
	routerCfg := ai.DefaultRouterConfig()
	if cfg.Pipeline.HighTraffic > 0 {
		routerCfg.HighTraffic = cfg.Pipeline.HighTraffic
	}
	router := ai.NewRouter(providers, routerCfg)

	classifier := classify.NewClassifier(router, classify.Config{
		BatchSize:  cfg.Pipeline.BatchSize,
		Retries:    cfg.Pipeline.BatchRetries,
		RetryDelay: cfg.Pipeline.BatchRetryDelay,
	}, log)

	// 4. Content source with its concurrency-limited fetcher.
	source, err := content.NewHTTPSource(cfg.Content.BaseURL, cfg.Content.APIKey, cfg.Content.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to init content source: %w", err)
	}
	fetcher := content.NewFetcher(source, cfg.Content.MaxConcurrent, cfg.Content.TimelineItems)

	// 5. Durable queue. Without Redis the pipeline runs fallback-only.
	var redisQueue *queue.RedisQueue
	var durable pipeline.DurableQueue
	if cfg.Redis.URL != "" {
		workers := map[domain.Stage]int{
			domain.StageSearch:    1,
			domain.StagePrimary:   cfg.Pipeline.AnalyzeWorkers,
			domain.StageSecondary: cfg.Pipeline.AnalyzeWorkers,
		}
		redisQueue = queue.NewRedisQueue(queue.RedisConfig{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
		}, workers, log)
		durable = redisQueue
		log.Info("Using Redis job queue", "addr", cfg.Redis.URL)
	} else {
		log.Warn("No Redis configured, searches run in-process only")
	}

	p := pipeline.New(pipeline.Deps{
		Topics:          topicRepo,
		Accounts:        accountRepo,
		Classifications: classRepo,
		Source:          source,
		Fetcher:         fetcher,
		Classifier:      classifier,
		Durable:         durable,
		Platform:        cfg.Content.Platform,
		Log:             log,
	})
	if redisQueue != nil {
		redisQueue.Register(domain.StageSearch, p.HandleSearch)
		redisQueue.Register(domain.StagePrimary, p.HandlePrimary)
		redisQueue.Register(domain.StageSecondary, p.HandleSecondary)
	}

	scheduler := pipeline.NewScheduler(p, log)
	server := NewServer(p, router, db, redisQueue, cfg.Server.Port, log)

	return &Scout{
		cfg:       cfg,
		db:        db,
		redis:     redisQueue,
		pipeline:  p,
		scheduler: scheduler,
		server:    server,
		router:    router,
		log:       log,
	}, nil
}

// Start launches workers, the scheduler, and the HTTP server.
func (s *Scout) Start(ctx context.Context) error {
	if s.redis != nil {
		s.redis.Start(ctx)
	}
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		if err := s.server.Start(); err != nil {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts everything down, draining in-flight jobs first.
func (s *Scout) Stop(ctx context.Context) error {
	s.log.Info("Stopping scout...")

	s.scheduler.Stop()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("Failed to close queue", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
	return s.server.Stop(ctx)
}
