package database

import (
	"context"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// TaskDirectory answers ownership and display-name lookups against the task
// rows the surrounding application keeps in the same database. The timer
// subsystem never writes them.
type TaskDirectory struct {
	db *DB
}

func NewTaskDirectory(db *DB) *TaskDirectory {
	return &TaskDirectory{db: db}
}

func (d *TaskDirectory) OwnsTask(ctx context.Context, userID, taskID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check task ownership")
	}
	return count > 0, nil
}

func (d *TaskDirectory) TaskInfo(ctx context.Context, taskID string) (*models.TaskInfo, error) {
	var task models.Task
	err := d.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "no task %s", taskID)
		}
		return nil, errors.Wrap(err, "failed to query task")
	}
	return &models.TaskInfo{
		ID:          task.ID,
		Title:       task.Title,
		ProjectID:   task.ProjectID,
		ProjectName: task.ProjectName,
	}, nil
}
