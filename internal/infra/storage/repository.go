package storage

import (
	"context"
	"errors"

	"leadscout/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// AccountRepository handles discovered-account storage
type AccountRepository interface {
	// Upsert saves an account keyed by its stable external id. It
	// reports whether the account was newly created.
	Upsert(ctx context.Context, account *domain.Account) (created bool, err error)

	// GetByExternalID retrieves an account by external id
	GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error)

	// SavePosts stores fetched content for accounts
	SavePosts(ctx context.Context, posts []domain.Post) error

	// GetPostsByAccount retrieves stored content for one account
	GetPostsByAccount(ctx context.Context, accountID string) ([]domain.Post, error)
}

// ClassificationRepository handles per-account classification state
type ClassificationRepository interface {
	// Get retrieves the classification for an account, or ErrNotFound
	Get(ctx context.Context, accountID string) (*domain.Classification, error)

	// Save upserts the classification for an account
	Save(ctx context.Context, c *domain.Classification) error
}

// TopicRepository handles topic configurations. Configurations are
// externally owned; the pipeline only reads them.
type TopicRepository interface {
	// Get retrieves a topic configuration by id, or ErrNotFound
	Get(ctx context.Context, id string) (*domain.TopicConfig, error)

	// List retrieves all topic configurations
	List(ctx context.Context) ([]*domain.TopicConfig, error)

	// Save upserts a topic configuration (used at startup to seed
	// topics from the config file)
	Save(ctx context.Context, topic *domain.TopicConfig) error
}
