package tick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/kasuganosora/rtsmicro/resource"
)

// ErrUnknownProfile is returned when a named priority profile does not exist.
var ErrUnknownProfile = errors.New("tick: unknown priority profile")

const (
	profileKeyPrefix = "profile:"
	profileCacheTTL  = 5 * time.Minute
)

// ProfileStore persists priority profiles and caches decoded tables.
type ProfileStore struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewProfileStore creates a ProfileStore.
func NewProfileStore(db *gorm.DB, c cache.Cache, logger *zap.Logger) *ProfileStore {
	return &ProfileStore{db: db, cache: c, logger: logger}
}

// Priorities returns the table of the named profile. An empty name yields a
// nil table, which selects power-based valuation.
func (s *ProfileStore) Priorities(ctx context.Context, name string) (combat.Priorities, error) {
	if name == "" {
		return nil, nil
	}
	if raw, err := s.cache.Get(ctx, profileKeyPrefix+name); err == nil {
		var p combat.Priorities
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return p, nil
		}
		s.logger.Warn("profile cache entry corrupt", zap.String("profile", name))
	} else if !cache.IsNotFound(err) {
		s.logger.Warn("profile cache read failed", zap.String("profile", name), zap.Error(err))
	}

	prof, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	p, err := decode(prof.Priorities)
	if err != nil {
		return nil, fmt.Errorf("tick: profile %s: %w", name, err)
	}
	if err := s.cache.Set(ctx, profileKeyPrefix+name, string(prof.Priorities), profileCacheTTL); err != nil {
		s.logger.Warn("profile cache write failed", zap.String("profile", name), zap.Error(err))
	}
	return p, nil
}

// Get loads a profile row by name.
func (s *ProfileStore) Get(ctx context.Context, name string) (*model.PriorityProfile, error) {
	var prof model.PriorityProfile
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	if err != nil {
		return nil, fmt.Errorf("tick: load profile %s: %w", name, err)
	}
	return &prof, nil
}

// List returns all profiles ordered by name.
func (s *ProfileStore) List(ctx context.Context) ([]model.PriorityProfile, error) {
	var out []model.PriorityProfile
	if err := s.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("tick: list profiles: %w", err)
	}
	return out, nil
}

// Save creates or replaces the named profile.
func (s *ProfileStore) Save(ctx context.Context, name, description string, p combat.Priorities) (*model.PriorityProfile, error) {
	if name == "" {
		return nil, errors.New("tick: profile name is required")
	}
	if p == nil {
		p = combat.Priorities{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("tick: encode profile %s: %w", name, err)
	}

	var prof model.PriorityProfile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", name).First(&prof).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			prof = model.PriorityProfile{Name: name, Description: description, Priorities: datatypes.JSON(raw)}
			return tx.Create(&prof).Error
		case err != nil:
			return err
		}
		prof.Description = description
		prof.Priorities = datatypes.JSON(raw)
		return tx.Save(&prof).Error
	})
	if err != nil {
		return nil, fmt.Errorf("tick: save profile %s: %w", name, err)
	}
	s.invalidate(ctx, name)
	return &prof, nil
}

// Delete removes the named profile.
func (s *ProfileStore) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&model.PriorityProfile{})
	if res.Error != nil {
		return fmt.Errorf("tick: delete profile %s: %w", name, res.Error)
	}
	s.invalidate(ctx, name)
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return nil
}

// Seed creates the presets that do not exist yet. Existing profiles are
// left untouched so operator edits survive restarts.
func (s *ProfileStore) Seed(ctx context.Context, presets []*resource.PriorityPreset) (int, error) {
	created := 0
	for _, pr := range presets {
		if pr == nil || pr.Name == "" {
			continue
		}
		_, err := s.Get(ctx, pr.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrUnknownProfile) {
			return created, err
		}
		if _, err := s.Save(ctx, pr.Name, "", combat.Priorities(pr.Priorities)); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		s.logger.Info("priority profiles seeded", zap.Int("count", created))
	}
	return created, nil
}

func (s *ProfileStore) invalidate(ctx context.Context, name string) {
	if err := s.cache.Del(ctx, profileKeyPrefix+name); err != nil {
		s.logger.Warn("profile cache invalidate failed", zap.String("profile", name), zap.Error(err))
	}
}

func decode(raw datatypes.JSON) (combat.Priorities, error) {
	p := combat.Priorities{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
