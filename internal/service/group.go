package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"GeoCheckin/pkg/metrics"
)

// MembershipStore 分组成员写入
type MembershipStore interface {
	GroupsLinkedToSchedule(ctx context.Context, scheduleID int64) ([]int64, error)
	UpsertGroupMembership(ctx context.Context, groupID, userID, sourceScheduleID int64) (bool, error)
}

// AssociationResult 每个分组的处理结果
type AssociationResult struct {
	Added   []int64
	Existed []int64
	Failed  []int64
}

// GroupAssociator 成功打卡后把用户加入排班关联的分组
type GroupAssociator struct {
	store   MembershipStore
	logger  *zap.Logger
	metrics *metrics.CheckinMetrics
}

func NewGroupAssociator(store MembershipStore, logger *zap.Logger, m *metrics.CheckinMetrics) *GroupAssociator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupAssociator{store: store, logger: logger, metrics: m}
}

// EnsureMembership 幂等；单个分组失败不影响其他分组，全部尝试后返回汇总错误
func (a *GroupAssociator) EnsureMembership(ctx context.Context, userID, scheduleID int64) (*AssociationResult, error) {
	groupIDs, err := a.store.GroupsLinkedToSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	result := &AssociationResult{}
	var errs []error
	for _, groupID := range groupIDs {
		added, err := a.store.UpsertGroupMembership(ctx, groupID, userID, scheduleID)
		if err != nil {
			result.Failed = append(result.Failed, groupID)
			errs = append(errs, fmt.Errorf("group %d: %w", groupID, err))
			a.logger.Warn("Failed to add user to group",
				zap.Int64("group_id", groupID),
				zap.Int64("user_id", userID),
				zap.Int64("schedule_id", scheduleID),
				zap.Error(err),
			)
			continue
		}
		if added {
			result.Added = append(result.Added, groupID)
		} else {
			result.Existed = append(result.Existed, groupID)
		}
	}

	a.metrics.RecordMembershipsAdded(ctx, len(result.Added))
	if len(result.Added) > 0 {
		a.logger.Info("User added to schedule groups",
			zap.Int64("user_id", userID),
			zap.Int64("schedule_id", scheduleID),
			zap.Int64s("group_ids", result.Added),
		)
	}

	return result, stderrors.Join(errs...)
}
