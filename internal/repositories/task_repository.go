package repositories

import (
	"context"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type TaskRepository struct {
	db *gorm.DB
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ForLead(ctx context.Context, leadID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).Where("lead_id = ?", leadID).Order("due_date ASC").Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) ForAssignee(ctx context.Context, assigneeID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("assignee_id = ? AND status NOT IN ?", assigneeID, []string{models.TaskStatusDone, models.TaskStatusCancelled}).
		Order("due_date ASC").Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) SetStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Update("status", status).Error
}
