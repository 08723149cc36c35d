package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
)

// TopicRepo implements storage.TopicRepository.
type TopicRepo struct {
	db *DB
}

// NewTopicRepo creates a new topic repository.
func NewTopicRepo(db *DB) *TopicRepo {
	return &TopicRepo{db: db}
}

type topicRow struct {
	ID                      string `db:"id"`
	Name                    string `db:"name"`
	Keywords                []byte `db:"keywords"`
	Categories              []byte `db:"categories"`
	SecondaryCategories     []byte `db:"secondary_categories"`
	PromptTemplate          string `db:"prompt_template"`
	SecondaryPromptTemplate string `db:"secondary_prompt_template"`
	MaxPages                int    `db:"max_pages"`
	ScanIntervalSecs        int64  `db:"scan_interval_secs"`
}

func (r topicRow) toDomain() (*domain.TopicConfig, error) {
	topic := &domain.TopicConfig{
		ID:                      r.ID,
		Name:                    r.Name,
		PromptTemplate:          r.PromptTemplate,
		SecondaryPromptTemplate: r.SecondaryPromptTemplate,
		MaxPages:                r.MaxPages,
		ScanInterval:            time.Duration(r.ScanIntervalSecs) * time.Second,
	}
	if err := json.Unmarshal(r.Keywords, &topic.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords: %w", err)
	}
	if err := json.Unmarshal(r.Categories, &topic.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	if len(r.SecondaryCategories) > 0 {
		if err := json.Unmarshal(r.SecondaryCategories, &topic.SecondaryCategories); err != nil {
			return nil, fmt.Errorf("failed to decode secondary categories: %w", err)
		}
	}
	return topic, nil
}

// Get retrieves a topic configuration by id.
func (r *TopicRepo) Get(ctx context.Context, id string) (*domain.TopicConfig, error) {
	query := `
		SELECT id, name, keywords, categories, secondary_categories,
		       prompt_template, secondary_prompt_template, max_pages, scan_interval_secs
		FROM topic_configs
		WHERE id = $1
	`

	var row topicRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}

	return row.toDomain()
}

// List retrieves all topic configurations.
func (r *TopicRepo) List(ctx context.Context) ([]*domain.TopicConfig, error) {
	query := `
		SELECT id, name, keywords, categories, secondary_categories,
		       prompt_template, secondary_prompt_template, max_pages, scan_interval_secs
		FROM topic_configs
		ORDER BY id
	`

	var rows []topicRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	topics := make([]*domain.TopicConfig, 0, len(rows))
	for _, row := range rows {
		topic, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// Save upserts a topic configuration.
func (r *TopicRepo) Save(ctx context.Context, topic *domain.TopicConfig) error {
	keywords, err := json.Marshal(topic.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	categories, err := json.Marshal(topic.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	secondary, err := json.Marshal(topic.SecondaryCategories)
	if err != nil {
		return fmt.Errorf("failed to encode secondary categories: %w", err)
	}

	query := `
		INSERT INTO topic_configs (id, name, keywords, categories, secondary_categories,
		                           prompt_template, secondary_prompt_template, max_pages, scan_interval_secs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			keywords = EXCLUDED.keywords,
			categories = EXCLUDED.categories,
			secondary_categories = EXCLUDED.secondary_categories,
			prompt_template = EXCLUDED.prompt_template,
			secondary_prompt_template = EXCLUDED.secondary_prompt_template,
			max_pages = EXCLUDED.max_pages,
			scan_interval_secs = EXCLUDED.scan_interval_secs
	`

	_, err = r.db.ExecContext(ctx, query,
		topic.ID,
		topic.Name,
		keywords,
		categories,
		secondary,
		topic.PromptTemplate,
		topic.SecondaryPromptTemplate,
		topic.MaxPages,
		int64(topic.ScanInterval/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to save topic: %w", err)
	}
	return nil
}
