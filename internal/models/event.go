package models

import (
	"time"
)

// EventType identifies a timer lifecycle event delivered to client sessions.
type EventType string

const (
	EventStarted   EventType = "started"
	EventStopped   EventType = "stopped"
	EventUpdated   EventType = "updated"
	EventDiscarded EventType = "discarded"
)

// Event is the payload pushed to every connected session of the owning user.
// started/updated carry the full snapshot fields; stopped carries the final
// duration; discarded carries only the timer id.
type Event struct {
	Type    EventType `json:"type"`
	TimerID string    `json:"timer_id"`

	TaskID         string     `json:"task_id,omitempty"`
	TaskTitle      string     `json:"task_title,omitempty"`
	ProjectID      string     `json:"project_id,omitempty"`
	ProjectName    string     `json:"project_name,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds,omitempty"`
	Description    string     `json:"description,omitempty"`
	IsRunning      bool       `json:"is_running"`

	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds,omitempty"`
}

// SnapshotEvent builds the full-snapshot payload carried by started and
// updated events.
func SnapshotEvent(typ EventType, snap *TimerSnapshot) Event {
	return Event{
		Type:           typ,
		TimerID:        snap.ID,
		TaskID:         snap.TaskID,
		TaskTitle:      snap.TaskTitle,
		ProjectID:      snap.ProjectID,
		ProjectName:    snap.ProjectName,
		StartTime:      snap.StartTime,
		ElapsedSeconds: snap.ElapsedSeconds,
		Description:    snap.Description,
		IsRunning:      true,
	}
}

// StoppedEvent builds the reduced stopped payload.
func StoppedEvent(timerID string, endTime time.Time, durationSeconds int64) Event {
	return Event{
		Type:            EventStopped,
		TimerID:         timerID,
		IsRunning:       false,
		EndTime:         &endTime,
		DurationSeconds: durationSeconds,
	}
}

// DiscardedEvent builds the minimal discarded payload.
func DiscardedEvent(timerID string) Event {
	return Event{
		Type:    EventDiscarded,
		TimerID: timerID,
	}
}
