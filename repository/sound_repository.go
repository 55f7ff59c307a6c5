package repository

import (
	"context"

	"ZenMix/model"

	"gorm.io/gorm"
)

// SoundRepository defines the interface for catalog sound data operations.
type SoundRepository interface {
	Create(ctx context.Context, sound *model.AudioTrack) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.AudioTrack, error)
	// List returns live rows ordered by name. Category narrows to one
	// category unless it is model.CategoryAll; ownerID narrows to one
	// uploader when non-nil; builtInOnly keeps only built-in sounds.
	List(ctx context.Context, category string, ownerID *int64, builtInOnly bool) ([]*model.AudioTrack, error)
	GetByNames(ctx context.Context, names []string) ([]*model.AudioTrack, error)
	SoftDelete(ctx context.Context, id int64, ownerID int64) error
}

// gormSoundRepository GORM 实现
type gormSoundRepository struct {
	db *gorm.DB
}

// NewGormSoundRepository creates a new instance of gormSoundRepository.
func NewGormSoundRepository(db *gorm.DB) SoundRepository {
	return &gormSoundRepository{db: db}
}

// Create adds a new sound to the catalog.
func (r *gormSoundRepository) Create(ctx context.Context, sound *model.AudioTrack) (int64, error) {
	if err := r.db.WithContext(ctx).Create(sound).Error; err != nil {
		return 0, err
	}
	return sound.ID, nil
}

// GetByID retrieves a sound by its ID. Returns nil, nil when not found.
func (r *gormSoundRepository) GetByID(ctx context.Context, id int64) (*model.AudioTrack, error) {
	var sound model.AudioTrack
	err := r.db.WithContext(ctx).
		Where("id = ? AND state = 1", id).
		First(&sound).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sound, nil
}

func (r *gormSoundRepository) List(ctx context.Context, category string, ownerID *int64, builtInOnly bool) ([]*model.AudioTrack, error) {
	q := r.db.WithContext(ctx).Where("state = 1")
	if category != "" && category != model.CategoryAll {
		q = q.Where("category = ?", category)
	}
	if ownerID != nil {
		q = q.Where("user_id = ?", *ownerID)
	}
	if builtInOnly {
		q = q.Where("is_built_in = ?", true)
	}

	var sounds []*model.AudioTrack
	if err := q.Order("name").Find(&sounds).Error; err != nil {
		return nil, err
	}
	return sounds, nil
}

// GetByNames retrieves sounds whose name is in names. Used by mix loading
// to recover natural durations for saved track names.
func (r *gormSoundRepository) GetByNames(ctx context.Context, names []string) ([]*model.AudioTrack, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var sounds []*model.AudioTrack
	err := r.db.WithContext(ctx).
		Where("name IN ? AND state = 1", names).
		Find(&sounds).Error
	if err != nil {
		return nil, err
	}
	return sounds, nil
}

// SoftDelete flips the row state; the blob stays in object storage until a
// cleanup pass removes it.
func (r *gormSoundRepository) SoftDelete(ctx context.Context, id int64, ownerID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.AudioTrack{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Update("state", 0).Error
}
