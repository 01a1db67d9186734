package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"GeoCheckin/internal/model"
)

// CheckinRepository 打卡记录存储，记录只插入不更新
type CheckinRepository struct {
	db *gorm.DB
}

func NewCheckinRepository(db *gorm.DB) *CheckinRepository {
	return &CheckinRepository{db: db}
}

// InsertAutomatic 以 ON CONFLICT DO NOTHING 写入自动打卡。
// 唯一索引 (user_id, schedule_id, auto_dedup_day) 已存在时返回 false
func (r *CheckinRepository) InsertAutomatic(ctx context.Context, checkin *model.Checkin) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(checkin)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert automatic checkin: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CreateManual 写入手动打卡
func (r *CheckinRepository) CreateManual(ctx context.Context, checkin *model.Checkin) error {
	if err := r.db.WithContext(ctx).Create(checkin).Error; err != nil {
		return fmt.Errorf("failed to create manual checkin: %w", err)
	}
	return nil
}

// FindCompletedManual 查询用户当天在该标签已完成的手动打卡，走主库
func (r *CheckinRepository) FindCompletedManual(ctx context.Context, userID, tagID int64, day string) (*model.Checkin, error) {
	var checkin model.Checkin
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("user_id = ? AND tag_id = ? AND checkin_date = ? AND type = ? AND status = ?",
			userID, tagID, day, model.CheckinTypeManual, model.CheckinStatusCompleted).
		Order("id").
		First(&checkin).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find manual checkin: %w", err)
	}
	return &checkin, nil
}

// HasAutomaticCheckinToday 只读查询，写路径依赖唯一索引而非此方法
func (r *CheckinRepository) HasAutomaticCheckinToday(ctx context.Context, scheduleID, userID int64, day string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Checkin{}).
		Where("schedule_id = ? AND user_id = ? AND auto_dedup_day = ?", scheduleID, userID, day).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check automatic checkin: %w", err)
	}
	return count > 0, nil
}
