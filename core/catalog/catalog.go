// Package catalog exposes the selectable sound library: built-in sounds,
// community sounds and the user's own uploads.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"ZenMix/cache"
	"ZenMix/core/auth"
	"ZenMix/logger"
	"ZenMix/model"
	"ZenMix/repository"

	"github.com/google/uuid"
)

// ErrCatalogUnavailable wraps storage/network failures while listing. The
// caller shows an empty list with an error indicator instead of crashing.
var ErrCatalogUnavailable = errors.New("sound catalog is unavailable")

// OwnerScope narrows a listing to a slice of the catalog.
type OwnerScope string

const (
	ScopeAll     OwnerScope = "all"
	ScopeBuiltIn OwnerScope = "built-in"
	ScopeMine    OwnerScope = "mine"
)

// Filter selects catalog sounds. The zero value lists everything.
type Filter struct {
	Category string
	Scope    OwnerScope
}

// BlobStore is the slice of blob storage the catalog writes through.
// storage.Client implements it.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, durationSeconds float64) (string, error)
	Remove(ctx context.Context, objectPaths []string) error
}

// Service reads the catalog through a cache and accepts user uploads.
type Service struct {
	sounds   repository.SoundRepository
	cache    *cache.CatalogCache
	store    BlobStore
	identity auth.Identity
}

// NewService 创建目录服务
func NewService(sounds repository.SoundRepository, c *cache.CatalogCache, store BlobStore, identity auth.Identity) *Service {
	return &Service{sounds: sounds, cache: c, store: store, identity: identity}
}

// ListSounds returns the catalog sounds matching the filter. Category
// "all" (or empty) is the identity filter.
func (s *Service) ListSounds(ctx context.Context, f Filter) ([]*model.AudioTrack, error) {
	category := f.Category
	if category == "" {
		category = model.CategoryAll
	}

	var ownerID *int64
	builtInOnly := false
	switch f.Scope {
	case ScopeMine:
		uid, err := s.identity.CurrentUserID(ctx)
		if err != nil {
			return nil, err
		}
		ownerID = &uid
	case ScopeBuiltIn:
		builtInOnly = true
	}

	if sounds, ok := s.cache.Get(ctx, category, ownerID, builtInOnly); ok {
		return sounds, nil
	}

	sounds, err := s.sounds.List(ctx, category, ownerID, builtInOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	s.cache.Set(ctx, category, ownerID, builtInOnly, sounds)
	return sounds, nil
}

// GetSound returns one catalog sound, or nil when it does not exist.
func (s *Service) GetSound(ctx context.Context, id int64) (*model.AudioTrack, error) {
	sound, err := s.sounds.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return sound, nil
}

// UploadSound stores a user-contributed sound blob and registers it in
// the catalog under the uploads category (or a given valid category).
// durationSeconds, when known, is stamped on the object so playback
// backends and mix loading can recover it.
func (s *Service) UploadSound(ctx context.Context, name, category, fileName string, r io.Reader, size int64, contentType string, durationSeconds float64) (*model.AudioTrack, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sound name is required")
	}
	if !model.ValidCategory(category) {
		category = model.CategoryUpload
	}

	uid, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	objectPath := fmt.Sprintf("audio/%d/%s%s", uid, uuid.NewString(), objectExt(fileName))
	sound := &model.AudioTrack{
		UserID:   &uid,
		Name:     name,
		Category: category,
		Duration: durationSeconds,
	}
	if err := s.register(ctx, sound, objectPath, r, size, contentType, durationSeconds); err != nil {
		return nil, err
	}

	logger.Info("sound uploaded",
		logger.Int64("soundId", sound.ID),
		logger.String("name", name),
		logger.Int64("userId", uid))
	return sound, nil
}

// IngestBuiltIn registers a sound with no owner, marked built-in so it is
// visible to every user. This is the entry point for server-side sources
// (the drop-directory watcher); it deliberately bypasses the request
// identity, which does not exist outside a request.
func (s *Service) IngestBuiltIn(ctx context.Context, name, category, fileName string, r io.Reader, size int64, contentType string, durationSeconds float64) (*model.AudioTrack, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sound name is required")
	}
	if !model.ValidCategory(category) {
		category = model.CategoryUpload
	}

	objectPath := fmt.Sprintf("audio/builtin/%s%s", uuid.NewString(), objectExt(fileName))
	sound := &model.AudioTrack{
		Name:      name,
		Category:  category,
		Duration:  durationSeconds,
		IsBuiltIn: true,
	}
	if err := s.register(ctx, sound, objectPath, r, size, contentType, durationSeconds); err != nil {
		return nil, err
	}

	logger.Info("built-in sound ingested",
		logger.Int64("soundId", sound.ID),
		logger.String("name", name))
	return sound, nil
}

// register stores the blob, fills in the URL and inserts the row,
// rolling the blob back when the insert fails.
func (s *Service) register(ctx context.Context, sound *model.AudioTrack, objectPath string, r io.Reader, size int64, contentType string, durationSeconds float64) error {
	url, err := s.store.Upload(ctx, objectPath, r, size, contentType, durationSeconds)
	if err != nil {
		return fmt.Errorf("failed to store sound blob: %w", err)
	}
	sound.URL = url

	if _, err := s.sounds.Create(ctx, sound); err != nil {
		// Roll the blob back so a failed insert leaves no orphan object.
		if rmErr := s.store.Remove(ctx, []string{objectPath}); rmErr != nil {
			logger.Error("orphaned blob after failed catalog insert",
				logger.String("object", objectPath), logger.ErrorField(rmErr))
		}
		return fmt.Errorf("failed to register sound: %w", err)
	}

	s.cache.Invalidate(ctx)
	return nil
}

func objectExt(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".mp3"
	}
	return ext
}

// DeleteSound soft-deletes one of the caller's uploads. The blob is kept
// for any mixes that still reference its URL.
func (s *Service) DeleteSound(ctx context.Context, id int64) error {
	uid, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	if err := s.sounds.SoftDelete(ctx, id, uid); err != nil {
		return fmt.Errorf("failed to delete sound: %w", err)
	}
	s.cache.Invalidate(ctx)
	return nil
}
