package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leadscout/internal/core/domain"
	"leadscout/internal/infra/storage"
)

// ClassificationRepo implements storage.ClassificationRepository.
type ClassificationRepo struct {
	db *DB
}

// NewClassificationRepo creates a new classification repository.
func NewClassificationRepo(db *DB) *ClassificationRepo {
	return &ClassificationRepo{db: db}
}

type classificationRow struct {
	AccountID     string    `db:"account_external_id"`
	Category      string    `db:"category"`
	Confidence    float64   `db:"confidence"`
	Reasoning     string    `db:"reasoning"`
	ClassifiedAt  time.Time `db:"classified_at"`
	SecondaryPass bool      `db:"secondary_pass"`
	Error         string    `db:"error"`
}

// Get retrieves the classification for an account.
func (r *ClassificationRepo) Get(ctx context.Context, accountID string) (*domain.Classification, error) {
	query := `
		SELECT account_external_id, category, confidence, reasoning, classified_at, secondary_pass, error
		FROM classifications
		WHERE account_external_id = $1
	`

	var row classificationRow
	if err := r.db.GetContext(ctx, &row, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	return &domain.Classification{
		AccountID:     row.AccountID,
		Category:      domain.Category(row.Category),
		Confidence:    row.Confidence,
		Reasoning:     row.Reasoning,
		ClassifiedAt:  row.ClassifiedAt,
		SecondaryPass: row.SecondaryPass,
		Error:         row.Error,
	}, nil
}

// Save upserts the classification for an account.
func (r *ClassificationRepo) Save(ctx context.Context, c *domain.Classification) error {
	query := `
		INSERT INTO classifications (account_external_id, category, confidence, reasoning, classified_at, secondary_pass, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_external_id) DO UPDATE SET
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			classified_at = EXCLUDED.classified_at,
			secondary_pass = EXCLUDED.secondary_pass,
			error = EXCLUDED.error
	`

	classifiedAt := c.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		c.AccountID,
		string(c.Category),
		c.Confidence,
		c.Reasoning,
		classifiedAt,
		c.SecondaryPass,
		c.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	return nil
}
