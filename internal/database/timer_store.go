package database

import (
	"context"
	"strings"
	"time"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// TimerStore handles all database operations for timer records and idle
// notifications. Every mutation runs inside a single transaction so that
// invariant checks and writes cannot interleave with a concurrent request
// for the same user.
type TimerStore struct {
	db *DB
}

// NewTimerStore creates a new store instance.
func NewTimerStore(db *DB) *TimerStore {
	return &TimerStore{db: db}
}

// CreateRunning inserts a new running timer for the user. Fails with
// apperr.ErrConflict if the user already has a running timer; the check and
// the insert share one transaction, and the partial unique index backstops
// any race that slips past it.
func (s *TimerStore) CreateRunning(ctx context.Context, userID, taskID, projectID, description string, startTime time.Time) (*models.TimerRecord, error) {
	rec := &models.TimerRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		TaskID:      taskID,
		ProjectID:   projectID,
		StartTime:   &startTime,
		IsRunning:   true,
		Description: description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TimerRecord{}).
			Where("user_id = ? AND is_running = ?", userID, true).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to check for running timer")
		}
		if count > 0 {
			return errors.Wrapf(apperr.ErrConflict, "user %s already has a running timer", userID)
		}
		if err := tx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(apperr.ErrConflict, "concurrent start for user %s", userID)
			}
			return errors.Wrap(err, "failed to insert timer record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Stop marks a running timer as finished. The update is guarded on
// is_running so stopping an already stopped or deleted timer reports
// apperr.ErrNotFound instead of silently rewriting history.
func (s *TimerStore) Stop(ctx context.Context, timerID string, endTime time.Time, duration int64) (*models.TimerRecord, error) {
	var rec models.TimerRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.TimerRecord{}).
			Where("id = ? AND is_running = ?", timerID, true).
			Updates(map[string]interface{}{
				"end_time":   endTime,
				"duration":   duration,
				"is_running": false,
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to stop timer")
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(apperr.ErrNotFound, "no running timer %s", timerID)
		}
		if err := tx.First(&rec, "id = ?", timerID).Error; err != nil {
			return errors.Wrap(err, "failed to reload stopped timer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// StopAndCreateRunning atomically stops the user's current timer, if any,
// and inserts a new running one. computeDuration turns the stopped timer's
// raw elapsed time into the stored duration (rounding lives with the
// caller). Both writes share one transaction so no concurrent start can
// interleave between them.
func (s *TimerStore) StopAndCreateRunning(ctx context.Context, userID string, endTime time.Time, computeDuration func(elapsed time.Duration) (int64, error), taskID, projectID, description string, startTime time.Time) (stopped, created *models.TimerRecord, err error) {
	newRec := &models.TimerRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		TaskID:      taskID,
		ProjectID:   projectID,
		StartTime:   &startTime,
		IsRunning:   true,
		Description: description,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.TimerRecord
		findErr := tx.Where("user_id = ? AND is_running = ?", userID, true).First(&current).Error
		switch {
		case findErr == nil:
			if current.StartTime == nil {
				return errors.Wrapf(apperr.ErrConflict, "running timer %s has no start time", current.ID)
			}
			if !endTime.After(*current.StartTime) {
				// The stopped record must end strictly after it started.
				endTime = current.StartTime.Add(time.Second)
			}
			duration, derr := computeDuration(endTime.Sub(*current.StartTime))
			if derr != nil {
				return derr
			}
			result := tx.Model(&models.TimerRecord{}).
				Where("id = ? AND is_running = ?", current.ID, true).
				Updates(map[string]interface{}{
					"end_time":   endTime,
					"duration":   duration,
					"is_running": false,
				})
			if result.Error != nil {
				return errors.Wrap(result.Error, "failed to auto-stop timer")
			}
			if err := tx.First(&current, "id = ?", current.ID).Error; err != nil {
				return errors.Wrap(err, "failed to reload auto-stopped timer")
			}
			stopped = &current
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			// Nothing running; plain start.
		default:
			return errors.Wrap(findErr, "failed to check for running timer")
		}

		if err := tx.Create(newRec).Error; err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(apperr.ErrConflict, "concurrent start for user %s", userID)
			}
			return errors.Wrap(err, "failed to insert timer record")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return stopped, newRec, nil
}

// Delete removes a timer row entirely. A discarded timer leaves no trace.
// Guarded on is_running: this subsystem only ever discards running timers,
// and a stale discard must not erase an already stopped record.
func (s *TimerStore) Delete(ctx context.Context, timerID string) error {
	result := s.db.WithContext(ctx).
		Where("is_running = ?", true).
		Delete(&models.TimerRecord{}, "id = ?", timerID)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete timer")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "no timer %s", timerID)
	}
	return nil
}

// GetRunningForUser retrieves the user's running timer, if any.
func (s *TimerStore) GetRunningForUser(ctx context.Context, userID string) (*models.TimerRecord, error) {
	var rec models.TimerRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_running = ?", userID, true).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "no running timer for user %s", userID)
		}
		return nil, errors.Wrap(err, "failed to query running timer")
	}
	return &rec, nil
}

// GetByID retrieves a timer record regardless of state.
func (s *TimerStore) GetByID(ctx context.Context, timerID string) (*models.TimerRecord, error) {
	var rec models.TimerRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", timerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "no timer %s", timerID)
		}
		return nil, errors.Wrap(err, "failed to query timer")
	}
	return &rec, nil
}

// ListRunning returns every running timer across all users, ordered by start
// time. Used by the idle sweep, which reads the store directly.
func (s *TimerStore) ListRunning(ctx context.Context) ([]*models.TimerRecord, error) {
	var recs []*models.TimerRecord
	err := s.db.WithContext(ctx).
		Where("is_running = ?", true).
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running timers")
	}
	return recs, nil
}

// UpdateDescription writes a description back to the store. Used by the
// cache-to-store reconciliation job for cache-side description edits.
func (s *TimerStore) UpdateDescription(ctx context.Context, timerID, description string) error {
	result := s.db.WithContext(ctx).Model(&models.TimerRecord{}).
		Where("id = ?", timerID).
		Update("description", description)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update description")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "no timer %s", timerID)
	}
	return nil
}

// CreateIdleNotification records a new idle episode for a running timer.
// Fails with apperr.ErrConflict if an unresolved notification already exists
// for the timer, or if the timer is no longer running.
func (s *TimerStore) CreateIdleNotification(ctx context.Context, timerID, userID string, idleStart time.Time) (*models.IdleNotification, error) {
	notif := &models.IdleNotification{
		ID:            uuid.NewString(),
		TimerRecordID: timerID,
		UserID:        userID,
		IdleStartTime: idleStart,
		ActionTaken:   models.IdleActionNone,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running int64
		if err := tx.Model(&models.TimerRecord{}).
			Where("id = ? AND is_running = ?", timerID, true).
			Count(&running).Error; err != nil {
			return errors.Wrap(err, "failed to check timer state")
		}
		if running == 0 {
			return errors.Wrapf(apperr.ErrNotFound, "no running timer %s", timerID)
		}

		var pending int64
		if err := tx.Model(&models.IdleNotification{}).
			Where("timer_record_id = ? AND action_taken = ?", timerID, models.IdleActionNone).
			Count(&pending).Error; err != nil {
			return errors.Wrap(err, "failed to check for unresolved notification")
		}
		if pending > 0 {
			return errors.Wrapf(apperr.ErrConflict, "timer %s already has an unresolved notification", timerID)
		}

		if err := tx.Create(notif).Error; err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(apperr.ErrConflict, "concurrent notification for timer %s", timerID)
			}
			return errors.Wrap(err, "failed to insert idle notification")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}

// HasUnresolvedNotification reports whether the timer has a pending idle
// notification. The sweep uses this for duplicate detection.
func (s *TimerStore) HasUnresolvedNotification(ctx context.Context, timerID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.IdleNotification{}).
		Where("timer_record_id = ? AND action_taken = ?", timerID, models.IdleActionNone).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check for unresolved notification")
	}
	return count > 0, nil
}

// ListUnresolvedNotifications returns every pending idle notification.
func (s *TimerStore) ListUnresolvedNotifications(ctx context.Context) ([]*models.IdleNotification, error) {
	var notifs []*models.IdleNotification
	err := s.db.WithContext(ctx).
		Where("action_taken = ?", models.IdleActionNone).
		Order("created_at ASC").
		Find(&notifs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unresolved notifications")
	}
	return notifs, nil
}

// ListUnresolvedNotificationsForUser returns the user's pending idle
// notifications, for rendering the resolution prompt.
func (s *TimerStore) ListUnresolvedNotificationsForUser(ctx context.Context, userID string) ([]*models.IdleNotification, error) {
	var notifs []*models.IdleNotification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND action_taken = ?", userID, models.IdleActionNone).
		Order("created_at ASC").
		Find(&notifs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unresolved notifications")
	}
	return notifs, nil
}

// GetIdleNotification retrieves a notification by id, scoped to its owner.
func (s *TimerStore) GetIdleNotification(ctx context.Context, notificationID, userID string) (*models.IdleNotification, error) {
	var notif models.IdleNotification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notif).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "no idle notification %s", notificationID)
		}
		return nil, errors.Wrap(err, "failed to query idle notification")
	}
	return &notif, nil
}

// ResolveIdle applies a terminal action to an unresolved notification and,
// for discard/stop_at_idle, stops the timer retroactively at the idle start.
// Every action is guarded on both the notification and the timer: acting
// twice on the same notification, or acting after the timer was
// independently stopped or discarded, fails with apperr.ErrConflict.
func (s *TimerStore) ResolveIdle(ctx context.Context, notificationID string, action models.IdleAction, endTime time.Time, duration int64) (*models.TimerRecord, error) {
	var rec models.TimerRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notif models.IdleNotification
		if err := tx.First(&notif, "id = ?", notificationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(apperr.ErrNotFound, "no idle notification %s", notificationID)
			}
			return errors.Wrap(err, "failed to load idle notification")
		}

		result := tx.Model(&models.IdleNotification{}).
			Where("id = ? AND action_taken = ?", notificationID, models.IdleActionNone).
			Update("action_taken", action)
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to resolve idle notification")
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(apperr.ErrConflict, "notification %s already resolved", notificationID)
		}

		if action == models.IdleActionKeep {
			// The idle time counts as work; the timer keeps running. Keep
			// still requires a running timer: resolving after an independent
			// stop or discard conflicts, same as the stopping actions.
			if err := tx.First(&rec, "id = ? AND is_running = ?", notif.TimerRecordID, true).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Wrapf(apperr.ErrConflict, "timer %s no longer running", notif.TimerRecordID)
				}
				return errors.Wrap(err, "failed to load timer")
			}
			return nil
		}

		timerUpdate := tx.Model(&models.TimerRecord{}).
			Where("id = ? AND is_running = ?", notif.TimerRecordID, true).
			Updates(map[string]interface{}{
				"end_time":   endTime,
				"duration":   duration,
				"is_running": false,
			})
		if timerUpdate.Error != nil {
			return errors.Wrap(timerUpdate.Error, "failed to stop idle timer")
		}
		if timerUpdate.RowsAffected == 0 {
			return errors.Wrapf(apperr.ErrConflict, "timer %s no longer running", notif.TimerRecordID)
		}
		if err := tx.First(&rec, "id = ?", notif.TimerRecordID).Error; err != nil {
			return errors.Wrap(err, "failed to reload timer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// isUniqueViolation matches sqlite's unique-constraint error text. gorm does
// not normalize driver constraint errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
