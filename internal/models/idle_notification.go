package models

import (
	"time"
)

// IdleAction is the resolution applied to an idle notification. It
// transitions exactly once, from IdleActionNone to a terminal value.
type IdleAction string

const (
	IdleActionNone       IdleAction = "none"
	IdleActionKeep       IdleAction = "keep"
	IdleActionDiscard    IdleAction = "discard"
	IdleActionStopAtIdle IdleAction = "stop_at_idle"
)

// Valid reports whether a is a known terminal resolution action.
func (a IdleAction) Valid() bool {
	switch a {
	case IdleActionKeep, IdleActionDiscard, IdleActionStopAtIdle:
		return true
	}
	return false
}

// IdleNotification is one row per detected idle episode. At most one
// unresolved (ActionTaken=none) notification exists per timer at any time.
// Rows are never deleted; they remain as an audit trail.
type IdleNotification struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	TimerRecordID string     `gorm:"not null;index" json:"timer_record_id"`
	UserID        string     `gorm:"not null;index" json:"user_id"`
	IdleStartTime time.Time  `gorm:"not null" json:"idle_start_time"`
	ActionTaken   IdleAction `gorm:"not null;default:none;index" json:"action_taken"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
