package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"GeoCheckin/internal/model"
)

// GroupRepository 分组与成员关系存储
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GroupsLinkedToSchedule 返回排班关联的未删除分组 ID
func (r *GroupRepository) GroupsLinkedToSchedule(ctx context.Context, scheduleID int64) ([]int64, error) {
	var groupIDs []int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupSchedule{}).
		Joins("JOIN user_groups ON user_groups.id = group_schedules.group_id AND user_groups.deleted_at IS NULL").
		Where("group_schedules.schedule_id = ?", scheduleID).
		Order("group_schedules.group_id").
		Pluck("group_schedules.group_id", &groupIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of schedule %d: %w", scheduleID, err)
	}
	return groupIDs, nil
}

// UpsertGroupMembership 已是成员时不做任何修改，返回是否新增
func (r *GroupRepository) UpsertGroupMembership(ctx context.Context, groupID, userID, sourceScheduleID int64) (bool, error) {
	membership := &model.GroupMembership{
		GroupID:          groupID,
		UserID:           userID,
		AddedBy:          model.MembershipAddedAuto,
		SourceScheduleID: &sourceScheduleID,
		CreatedAt:        time.Now().UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(membership)
	if result.Error != nil {
		return false, fmt.Errorf("failed to upsert membership group=%d user=%d: %w", groupID, userID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsMember 查询用户是否属于分组
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}
