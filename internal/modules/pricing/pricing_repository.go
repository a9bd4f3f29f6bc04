package pricing

import (
	"context"
	"fmt"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface declares storage for the admin-tunable rate card.
type RepositoryInterface interface {
	ListConfig(ctx context.Context) ([]models.ConfigItem, error)
	UpsertConfig(ctx context.Context, key string, value float64) error
}

// Repository is the PostgreSQL implementation.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) ListConfig(ctx context.Context) ([]models.ConfigItem, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM pricing_config`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListConfig: %w", err)
	}
	defer rows.Close()

	var items []models.ConfigItem
	for rows.Next() {
		var it models.ConfigItem
		if err := rows.Scan(&it.Key, &it.Value); err != nil {
			return nil, fmt.Errorf("repository.ListConfig scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) UpsertConfig(ctx context.Context, key string, value float64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pricing_config (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("repository.UpsertConfig: %w", err)
	}
	return nil
}
