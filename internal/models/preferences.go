package models

import (
	"time"
)

const (
	// DefaultIdleThresholdMinutes applies when a user has no stored
	// preferences or an unset threshold.
	DefaultIdleThresholdMinutes = 5
)

// UserTimerPreferences is per-user timer configuration, owned by account
// settings. Read-only input to the timer subsystem.
type UserTimerPreferences struct {
	UserID string `gorm:"primaryKey" json:"user_id"`
	// RoundingInterval in minutes; one of 0, 5, 10, 15, 30. Zero disables
	// rounding.
	RoundingInterval int    `gorm:"not null;default:0" json:"rounding_interval"`
	RoundingMethod   string `gorm:"not null;default:nearest" json:"rounding_method"`
	// IdleThresholdMinutes >= 1; <= 0 disables idle detection for the user.
	IdleThresholdMinutes int       `gorm:"not null;default:5" json:"idle_threshold_minutes"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultPreferences returns the subsystem defaults: no rounding, 5 minute
// idle threshold.
func DefaultPreferences(userID string) *UserTimerPreferences {
	return &UserTimerPreferences{
		UserID:               userID,
		RoundingInterval:     0,
		RoundingMethod:       "nearest",
		IdleThresholdMinutes: DefaultIdleThresholdMinutes,
	}
}

// IdleThreshold returns the idle threshold as a duration.
func (p *UserTimerPreferences) IdleThreshold() time.Duration {
	return time.Duration(p.IdleThresholdMinutes) * time.Minute
}
