package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// SettingRepository stores persisted key-value flags.
type SettingRepository struct {
	db *sqlx.DB
}

func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns one setting value; ok is false when the key is unset.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// GetTime reads a timestamp-valued setting; nil when unset.
func (r *SettingRepository) GetTime(ctx context.Context, key string) (*time.Time, error) {
	value, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	parsed, err := time.ParseInLocation(models.SettingTimeLayout, value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse setting %s: %w", key, err)
	}
	return &parsed, nil
}

// Set writes one setting value.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO settings (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// SetTime writes a timestamp-valued setting in the storage layout.
func (r *SettingRepository) SetTime(ctx context.Context, key string, value time.Time) error {
	return r.Set(ctx, key, value.Format(models.SettingTimeLayout))
}

// List returns all settings ordered by key.
func (r *SettingRepository) List(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.SelectContext(ctx, &settings,
		"SELECT key, value, description, updated_at FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}
