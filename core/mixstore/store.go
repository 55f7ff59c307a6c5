// Package mixstore persists and restores mixes: named snapshots of the
// mixer's assigned tracks plus a master duration.
package mixstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"ZenMix/core/auth"
	"ZenMix/logger"
	"ZenMix/model"
	"ZenMix/repository"

	"github.com/google/uuid"
)

var (
	// ErrEmptyMix rejects a save with no assigned tracks.
	ErrEmptyMix = errors.New("mix has no tracks to save")
	// ErrValidation rejects bad user input on save.
	ErrValidation = errors.New("mix validation failed")
	// ErrNotFound reports an unknown mix id on load.
	ErrNotFound = errors.New("mix not found")
	// ErrPersistence wraps failures of the relational interface.
	ErrPersistence = errors.New("mix persistence failed")
)

// LoadedMix is the restored form of a saved mix, ready to be applied to
// engine slots positionally.
type LoadedMix struct {
	ID        string
	Name      string
	Duration  int
	IsPublic  bool
	Snapshots model.TrackSnapshots
}

// Store is the mix persistence adapter.
type Store struct {
	mixes    repository.MixRepository
	sounds   repository.SoundRepository
	identity auth.Identity
}

// NewStore 创建混音持久化适配器
func NewStore(mixes repository.MixRepository, sounds repository.SoundRepository, identity auth.Identity) *Store {
	return &Store{mixes: mixes, sounds: sounds, identity: identity}
}

// Save writes a full snapshot of the assigned tracks as a new mix and
// returns its id. The duration is rounded to whole seconds before the
// write; the persistence layer expects an integer and a fractional value
// would fail the insert. Snapshots are written atomically with the parent
// row.
func (s *Store) Save(ctx context.Context, snapshots []model.TrackSnapshot, durationSeconds float64, name string, isPublic bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}

	assigned := make(model.TrackSnapshots, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.Name == "" || snap.URL == "" {
			continue
		}
		if snap.LoopTime <= 0 {
			snap.LoopTime = model.DefaultLoopTime
		}
		assigned = append(assigned, snap)
	}
	if len(assigned) == 0 {
		return "", ErrEmptyMix
	}

	uid, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}

	mix := &model.Mix{
		ID:            uuid.NewString(),
		UserID:        uid,
		Name:          name,
		Duration:      int(math.Round(durationSeconds)),
		IsPublic:      isPublic,
		SchemaVersion: model.MixSchemaVersion,
		Tracks:        assigned,
	}
	if err := s.mixes.Create(ctx, mix); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.Info("mix saved",
		logger.String("mixId", mix.ID),
		logger.String("name", name),
		logger.Int("tracks", len(assigned)),
		logger.Int64("userId", uid))
	return mix.ID, nil
}

// Load restores a mix. Snapshot index maps to slot index; snapshots past
// the track limit are dropped. When the current table has no row for the
// id, the legacy table is consulted before giving up.
func (s *Store) Load(ctx context.Context, id string) (*LoadedMix, error) {
	mix, err := s.mixes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var loaded *LoadedMix
	if mix != nil {
		loaded = &LoadedMix{
			ID:        mix.ID,
			Name:      mix.Name,
			Duration:  mix.Duration,
			IsPublic:  mix.IsPublic,
			Snapshots: mix.Tracks,
		}
	} else {
		legacy, err := s.mixes.GetLegacyByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if legacy == nil {
			return nil, ErrNotFound
		}
		loaded = &LoadedMix{
			ID:        legacy.ID,
			Name:      legacy.Name,
			Duration:  legacy.Duration,
			Snapshots: legacy.Snapshots(),
		}
	}

	if len(loaded.Snapshots) > 8 {
		loaded.Snapshots = loaded.Snapshots[:8]
	}
	for i := range loaded.Snapshots {
		if loaded.Snapshots[i].LoopTime <= 0 {
			loaded.Snapshots[i].LoopTime = model.DefaultLoopTime
		}
		if loaded.Snapshots[i].Volume < 0 {
			loaded.Snapshots[i].Volume = 1
		}
	}

	loaded.Duration = s.resolveDuration(ctx, loaded)
	return loaded, nil
}

// resolveDuration implements the derived duration policy: the mix
// auto-stretches to its longest sound's natural duration when one is
// discoverable, else the stored duration, else the default.
func (s *Store) resolveDuration(ctx context.Context, loaded *LoadedMix) int {
	names := make([]string, 0, len(loaded.Snapshots))
	for _, snap := range loaded.Snapshots {
		if snap.Name != "" {
			names = append(names, snap.Name)
		}
	}

	var maxNatural float64
	if len(names) > 0 {
		sounds, err := s.sounds.GetByNames(ctx, names)
		if err != nil {
			logger.Warn("could not resolve natural durations for mix",
				logger.String("mixId", loaded.ID), logger.ErrorField(err))
		}
		for _, sound := range sounds {
			if sound.Duration > maxNatural {
				maxNatural = sound.Duration
			}
		}
		// Fill URLs lost by legacy rows back in from the catalog.
		for i := range loaded.Snapshots {
			if loaded.Snapshots[i].URL != "" {
				continue
			}
			for _, sound := range sounds {
				if sound.Name == loaded.Snapshots[i].Name {
					loaded.Snapshots[i].URL = sound.URL
					loaded.Snapshots[i].SourceID = sound.ID
					break
				}
			}
		}
	}

	switch {
	case maxNatural > 0:
		return int(math.Round(maxNatural))
	case loaded.Duration > 0:
		return loaded.Duration
	default:
		return 300
	}
}

// ListMine returns the caller's saved mixes, newest first.
func (s *Store) ListMine(ctx context.Context) ([]*model.Mix, error) {
	uid, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	mixes, err := s.mixes.ListByUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return mixes, nil
}

// Delete removes one of the caller's mixes.
func (s *Store) Delete(ctx context.Context, id string) error {
	uid, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	if err := s.mixes.Delete(ctx, id, uid); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
