package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"GeoCheckin/internal/model"
	"GeoCheckin/pkg/errors"
)

// ScheduleRepository 排班及其标签查询
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListActiveSchedules 返回 is_active 的排班，时间窗由调用方判断
func (r *ScheduleRepository) ListActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return schedules, nil
}

// GetSchedule 查询单个排班
func (r *ScheduleRepository) GetSchedule(ctx context.Context, scheduleID int64) (*model.Schedule, error) {
	var schedule model.Schedule
	err := r.db.WithContext(ctx).Where("id = ?", scheduleID).First(&schedule).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule %d: %w", scheduleID, errors.ScheduleNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule %d: %w", scheduleID, err)
	}
	return &schedule, nil
}

// ListScheduleTags 返回排班关联的标签，按 ID 排序
func (r *ScheduleRepository) ListScheduleTags(ctx context.Context, scheduleID int64) ([]model.Tag, error) {
	var tags []model.Tag
	err := r.db.WithContext(ctx).
		Joins("JOIN schedule_tags ON schedule_tags.tag_id = tags.id").
		Where("schedule_tags.schedule_id = ?", scheduleID).
		Order("tags.id").
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tags of schedule %d: %w", scheduleID, err)
	}
	return tags, nil
}

// SchedulesForTag 返回关联该标签且 is_active 的排班，按 ID 排序
func (r *ScheduleRepository) SchedulesForTag(ctx context.Context, tagID int64) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.WithContext(ctx).
		Joins("JOIN schedule_tags ON schedule_tags.schedule_id = schedules.id").
		Where("schedule_tags.tag_id = ? AND schedules.is_active = ?", tagID, true).
		Order("schedules.id").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules of tag %d: %w", tagID, err)
	}
	return schedules, nil
}
