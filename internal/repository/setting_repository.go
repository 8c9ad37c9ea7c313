package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// SettingRepository persists durable key/value settings.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository constructs the repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get fetches a single setting by key.
func (r *SettingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	const query = `SELECT key, value, type, description, updated_by, updated_at FROM settings WHERE key = $1`
	var setting models.Setting
	if err := r.db.GetContext(ctx, &setting, query, key); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert inserts or updates a setting entry.
func (r *SettingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	const query = `INSERT INTO settings (key, value, type, description, updated_by, updated_at)
VALUES (:key, :value, :type, :description, :updated_by, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type, description = EXCLUDED.description,
              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	setting.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
