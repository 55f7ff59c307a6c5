package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ZenMix/logger"
	"ZenMix/model"

	"gorm.io/gorm"
)

// MixRepository defines the interface for persisted mix operations.
// GetLegacyByID reads the pre-v2 `mixes` table and is only consulted when
// the primary table has no row for an id.
type MixRepository interface {
	Create(ctx context.Context, mix *model.Mix) error
	GetByID(ctx context.Context, id string) (*model.Mix, error)
	GetLegacyByID(ctx context.Context, id string) (*model.LegacyMix, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Mix, error)
	Delete(ctx context.Context, id string, userID int64) error
}

// mysqlMixRepository uses GORM for mixes_v2 and a raw connection for the
// legacy table, which was never modeled.
type mysqlMixRepository struct {
	db     *gorm.DB
	legacy *sql.DB
}

// NewMySQLMixRepository creates a new instance of mysqlMixRepository.
// legacy may be nil, in which case the fallback path reports not-found.
func NewMySQLMixRepository(db *gorm.DB, legacy *sql.DB) MixRepository {
	return &mysqlMixRepository{db: db, legacy: legacy}
}

// Create writes the mix row and its track snapshots in one transaction.
// The snapshots live in a JSON column on the parent row, so a partial
// write cannot occur, but the transaction also covers future side tables.
func (r *mysqlMixRepository) Create(ctx context.Context, mix *model.Mix) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(mix).Error
	})
}

// GetByID retrieves a mix by its ID. Returns nil, nil when not found.
func (r *mysqlMixRepository) GetByID(ctx context.Context, id string) (*model.Mix, error) {
	var mix model.Mix
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&mix).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mix, nil
}

// GetLegacyByID reads the original `mixes` table shape: sound names and
// URLs as parallel JSON arrays, no per-track settings.
func (r *mysqlMixRepository) GetLegacyByID(ctx context.Context, id string) (*model.LegacyMix, error) {
	if r.legacy == nil {
		return nil, nil
	}

	query := `SELECT id, user_id, name, duration, sound_names, sound_urls, created_at
	           FROM mixes WHERE id = ?`
	row := r.legacy.QueryRowContext(ctx, query, id)

	mix := &model.LegacyMix{}
	var namesJSON, urlsJSON []byte
	err := row.Scan(&mix.ID, &mix.UserID, &mix.Name, &mix.Duration, &namesJSON, &urlsJSON, &mix.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan legacy mix %s: %w", id, err)
	}

	if err := json.Unmarshal(namesJSON, &mix.SoundNames); err != nil {
		return nil, fmt.Errorf("failed to decode legacy sound names for mix %s: %w", id, err)
	}
	if err := json.Unmarshal(urlsJSON, &mix.SoundURLs); err != nil {
		return nil, fmt.Errorf("failed to decode legacy sound urls for mix %s: %w", id, err)
	}

	logger.Debug("loaded mix from legacy table", logger.String("mixId", id))
	return mix, nil
}

func (r *mysqlMixRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Mix, error) {
	var mixes []*model.Mix
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&mixes).Error
	if err != nil {
		return nil, err
	}
	return mixes, nil
}

func (r *mysqlMixRepository) Delete(ctx context.Context, id string, userID int64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Mix{}).Error
}
