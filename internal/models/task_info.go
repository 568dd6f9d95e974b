package models

// TaskInfo is the slice of an externally-owned task record this subsystem
// denormalizes into snapshots and events.
type TaskInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// Task mirrors the task rows owned by the surrounding application. This
// subsystem only reads them for ownership checks and display names.
type Task struct {
	ID          string `gorm:"primaryKey" json:"id"`
	UserID      string `gorm:"not null;index" json:"user_id"`
	Title       string `gorm:"not null" json:"title"`
	ProjectID   string `gorm:"index" json:"project_id"`
	ProjectName string `json:"project_name"`
}
