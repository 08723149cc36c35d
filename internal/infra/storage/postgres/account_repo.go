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

// AccountRepo implements storage.AccountRepository.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

type accountRow struct {
	ID           uint64    `db:"id"`
	ExternalID   string    `db:"external_id"`
	Handle       string    `db:"handle"`
	DisplayName  string    `db:"display_name"`
	Bio          string    `db:"bio"`
	Platform     string    `db:"platform"`
	Followers    int       `db:"followers"`
	DiscoveredAt time.Time `db:"discovered_at"`
}

func (r accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:           r.ID,
		ExternalID:   r.ExternalID,
		Handle:       r.Handle,
		DisplayName:  r.DisplayName,
		Bio:          r.Bio,
		Platform:     r.Platform,
		Followers:    r.Followers,
		DiscoveredAt: r.DiscoveredAt,
	}
}

// Upsert saves an account keyed by external id. Re-discovering an
// existing account refreshes its profile fields but keeps the original
// discovery timestamp. Reports whether the row was newly inserted.
func (r *AccountRepo) Upsert(ctx context.Context, account *domain.Account) (bool, error) {
	query := `
		INSERT INTO accounts (external_id, handle, display_name, bio, platform, followers, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			followers = EXCLUDED.followers
		RETURNING id, (xmax = 0) AS created
	`

	discoveredAt := account.DiscoveredAt
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	var id uint64
	var created bool
	err := r.db.QueryRowContext(ctx, query,
		account.ExternalID,
		account.Handle,
		account.DisplayName,
		account.Bio,
		account.Platform,
		account.Followers,
		discoveredAt,
	).Scan(&id, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert account: %w", err)
	}

	account.ID = id
	return created, nil
}

// GetByExternalID retrieves an account by its stable external id.
func (r *AccountRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	query := `
		SELECT id, external_id, handle, display_name, bio, platform, followers, discovered_at
		FROM accounts
		WHERE external_id = $1
	`

	var row accountRow
	if err := r.db.GetContext(ctx, &row, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return row.toDomain(), nil
}

// SavePosts stores fetched content. Duplicate posts (same account, text
// and fetch time) are ignored.
func (r *AccountRepo) SavePosts(ctx context.Context, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	query := `
		INSERT INTO account_posts (account_external_id, text, keyword, posted_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range posts {
		fetchedAt := p.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, p.AccountID, p.Text, p.Keyword, p.PostedAt, fetchedAt); err != nil {
			return fmt.Errorf("failed to save post: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit posts: %w", err)
	}
	return nil
}

type postRow struct {
	AccountID string    `db:"account_external_id"`
	Text      string    `db:"text"`
	Keyword   string    `db:"keyword"`
	PostedAt  time.Time `db:"posted_at"`
	FetchedAt time.Time `db:"fetched_at"`
}

// GetPostsByAccount retrieves stored content for one account, most
// recently fetched first.
func (r *AccountRepo) GetPostsByAccount(ctx context.Context, accountID string) ([]domain.Post, error) {
	query := `
		SELECT account_external_id, text, keyword, posted_at, fetched_at
		FROM account_posts
		WHERE account_external_id = $1
		ORDER BY fetched_at DESC, id DESC
	`

	var rows []postRow
	if err := r.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to get posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, domain.Post{
			AccountID: row.AccountID,
			Text:      row.Text,
			Keyword:   row.Keyword,
			PostedAt:  row.PostedAt,
			FetchedAt: row.FetchedAt,
		})
	}
	return posts, nil
}
