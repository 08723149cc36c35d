// Package memory provides in-memory repository implementations, used
// when no database is configured and by pipeline tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
)

// AccountRepo is an in-memory storage.AccountRepository.
type AccountRepo struct {
	mu     sync.RWMutex
	nextID uint64
	byExt  map[string]*domain.Account
	posts  map[string][]domain.Post
}

// NewAccountRepo creates an empty in-memory account repository.
func NewAccountRepo() *AccountRepo {
	return &AccountRepo{
		byExt: make(map[string]*domain.Account),
		posts: make(map[string][]domain.Post),
	}
}

func (r *AccountRepo) Upsert(_ context.Context, account *domain.Account) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byExt[account.ExternalID]; ok {
		existing.Handle = account.Handle
		existing.DisplayName = account.DisplayName
		existing.Bio = account.Bio
		existing.Followers = account.Followers
		account.ID = existing.ID
		account.DiscoveredAt = existing.DiscoveredAt
		return false, nil
	}

	r.nextID++
	account.ID = r.nextID
	if account.DiscoveredAt.IsZero() {
		account.DiscoveredAt = time.Now().UTC()
	}
	clone := *account
	r.byExt[account.ExternalID] = &clone
	return true, nil
}

func (r *AccountRepo) GetByExternalID(_ context.Context, externalID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byExt[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (r *AccountRepo) SavePosts(_ context.Context, posts []domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range posts {
		if p.FetchedAt.IsZero() {
			p.FetchedAt = time.Now().UTC()
		}
		r.posts[p.AccountID] = append(r.posts[p.AccountID], p)
	}
	return nil
}

func (r *AccountRepo) GetPostsByAccount(_ context.Context, accountID string) ([]domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]domain.Post, len(r.posts[accountID]))
	copy(posts, r.posts[accountID])
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].FetchedAt.After(posts[j].FetchedAt)
	})
	return posts, nil
}

// ClassificationRepo is an in-memory storage.ClassificationRepository.
type ClassificationRepo struct {
	mu      sync.RWMutex
	byAccnt map[string]*domain.Classification
}

// NewClassificationRepo creates an empty in-memory classification repository.
func NewClassificationRepo() *ClassificationRepo {
	return &ClassificationRepo{byAccnt: make(map[string]*domain.Classification)}
}

func (r *ClassificationRepo) Get(_ context.Context, accountID string) (*domain.Classification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byAccnt[accountID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *ClassificationRepo) Save(_ context.Context, c *domain.Classification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *c
	if clone.ClassifiedAt.IsZero() {
		clone.ClassifiedAt = time.Now().UTC()
	}
	r.byAccnt[c.AccountID] = &clone
	return nil
}

// TopicRepo is an in-memory storage.TopicRepository.
type TopicRepo struct {
	mu   sync.RWMutex
	byID map[string]*domain.TopicConfig
}

// NewTopicRepo creates an empty in-memory topic repository.
func NewTopicRepo() *TopicRepo {
	return &TopicRepo{byID: make(map[string]*domain.TopicConfig)}
}

func (r *TopicRepo) Get(_ context.Context, id string) (*domain.TopicConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topic, ok := r.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *topic
	return &clone, nil
}

func (r *TopicRepo) List(_ context.Context) ([]*domain.TopicConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]*domain.TopicConfig, 0, len(r.byID))
	for _, t := range r.byID {
		clone := *t
		topics = append(topics, &clone)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics, nil
}

func (r *TopicRepo) Save(_ context.Context, topic *domain.TopicConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *topic
	r.byID[topic.ID] = &clone
	return nil
}
