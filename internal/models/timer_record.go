package models

import (
	"time"
)

// TimerRecord is one row per timer instance. A record with IsRunning=true is
// "the active timer" for its user; the store enforces at most one per user.
type TimerRecord struct {
	ID        string `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"not null;index" json:"user_id"`
	TaskID    string `gorm:"not null;index" json:"task_id"`
	ProjectID string `gorm:"index" json:"project_id"` // denormalized from the task at creation

	// StartTime is null only for pure-duration manual entries, never for a
	// running timer. EndTime is null while running.
	StartTime *time.Time `gorm:"index" json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	// Duration holds the authoritative elapsed seconds. Zero while running;
	// elapsed time for a running timer is computed on read, never stored.
	Duration int64 `gorm:"not null;default:0" json:"duration"`

	IsRunning bool `gorm:"not null;default:false;index" json:"is_running"`

	IsBillable   bool    `gorm:"not null;default:false" json:"is_billable"`
	BillableRate float64 `gorm:"not null;default:0" json:"billable_rate"`
	Currency     string  `json:"currency"`

	Description string `json:"description"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ElapsedSeconds computes elapsed time for a running timer as of now.
// Returns the stored duration for a stopped timer.
func (t *TimerRecord) ElapsedSeconds(now time.Time) int64 {
	if t.IsRunning && t.StartTime != nil {
		elapsed := int64(now.Sub(*t.StartTime).Seconds())
		if elapsed < 0 {
			return 0
		}
		return elapsed
	}
	return t.Duration
}

// TimerSnapshot is the denormalized projection of a running timer, held in
// the cache and returned to callers. Never the source of truth; always
// reconstructable from the TimerRecord.
type TimerSnapshot struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TaskID         string     `json:"task_id"`
	TaskTitle      string     `json:"task_title"`
	ProjectID      string     `json:"project_id"`
	ProjectName    string     `json:"project_name"`
	StartTime      *time.Time `json:"start_time"`
	Description    string     `json:"description"`
	IsRunning      bool       `json:"is_running"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
}

// SnapshotFromRecord builds a cacheable snapshot from a timer row.
func SnapshotFromRecord(rec *TimerRecord, taskTitle, projectName string, now time.Time) *TimerSnapshot {
	return &TimerSnapshot{
		ID:             rec.ID,
		UserID:         rec.UserID,
		TaskID:         rec.TaskID,
		TaskTitle:      taskTitle,
		ProjectID:      rec.ProjectID,
		ProjectName:    projectName,
		StartTime:      rec.StartTime,
		Description:    rec.Description,
		IsRunning:      rec.IsRunning,
		ElapsedSeconds: rec.ElapsedSeconds(now),
	}
}
