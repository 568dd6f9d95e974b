package database

import (
	"context"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"
	"github.com/timekeep/timekeep/internal/rounding"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// PreferencesRepository reads per-user timer preferences. The rows are owned
// by account settings; this subsystem only consumes them.
type PreferencesRepository struct {
	db *DB
}

func NewPreferencesRepository(db *DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// GetPreferences returns the user's stored preferences, or the subsystem
// defaults when no row exists.
func (r *PreferencesRepository) GetPreferences(ctx context.Context, userID string) (*models.UserTimerPreferences, error) {
	var prefs models.UserTimerPreferences
	err := r.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DefaultPreferences(userID), nil
		}
		return nil, errors.Wrap(err, "failed to query preferences")
	}
	return &prefs, nil
}

// SetPreferences upserts a user's preferences after validating the rounding
// parameters. Invalid values are rejected, never silently coerced.
func (r *PreferencesRepository) SetPreferences(ctx context.Context, prefs *models.UserTimerPreferences) error {
	if !rounding.ValidInterval(prefs.RoundingInterval) {
		return errors.Wrapf(apperr.ErrInvalidInput, "rounding interval %d", prefs.RoundingInterval)
	}
	if !rounding.ValidMethod(rounding.Method(prefs.RoundingMethod)) {
		return errors.Wrapf(apperr.ErrInvalidInput, "rounding method %q", prefs.RoundingMethod)
	}
	if err := r.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return errors.Wrap(err, "failed to save preferences")
	}
	return nil
}
