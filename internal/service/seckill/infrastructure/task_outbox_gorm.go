// internal/service/seckill/infrastructure/task_outbox_gorm.go
package infrastructure

import (
	"context"
	"time"

	"flashmall/internal/service/seckill/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormTaskOutbox implements domain.TaskOutbox on the seckill_task table.
type GormTaskOutbox struct {
	db *gorm.DB
}

func NewGormTaskOutbox(db *gorm.DB) *GormTaskOutbox {
	return &GormTaskOutbox{db: db}
}

func (o *GormTaskOutbox) Create(ctx context.Context, task *domain.SeckillTask) error {
	model, err := toTaskModel(task)
	if err != nil {
		return errors.Wrap(err, "failed to encode task headers")
	}
	if err := o.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "failed to insert seckill task")
	}
	task.ID = model.ID
	return nil
}

func (o *GormTaskOutbox) FetchDue(ctx context.Context, now time.Time, limit int) ([]*domain.SeckillTask, error) {
	var models []SeckillTaskModel
	err := o.db.WithContext(ctx).
		Where("status = ? AND next_retry_time <= ?", string(domain.TaskPending), now).
		Order("next_retry_time ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch due seckill tasks")
	}

	tasks := make([]*domain.SeckillTask, 0, len(models))
	for i := range models {
		task, err := toDomainTask(&models[i])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode task %d", models[i].ID)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (o *GormTaskOutbox) MarkDispatched(ctx context.Context, id uint64) error {
	err := o.db.WithContext(ctx).
		Model(&SeckillTaskModel{}).
		Where("id = ?", id).
		Update("status", string(domain.TaskDispatched)).Error
	return errors.Wrapf(err, "failed to mark task %d dispatched", id)
}

func (o *GormTaskOutbox) Reschedule(ctx context.Context, id uint64, next time.Time) error {
	err := o.db.WithContext(ctx).
		Model(&SeckillTaskModel{}).
		Where("id = ?", id).
		Update("next_retry_time", next).Error
	return errors.Wrapf(err, "failed to reschedule task %d", id)
}
