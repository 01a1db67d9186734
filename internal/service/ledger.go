package service

import (
	"context"
	"fmt"
	"time"

	"GeoCheckin/internal/model"
)

// CheckinStore 打卡记录写入
type CheckinStore interface {
	InsertAutomatic(ctx context.Context, checkin *model.Checkin) (bool, error)
	CreateManual(ctx context.Context, checkin *model.Checkin) error
}

// AutomaticCheckin 自动打卡写入参数，Day 为排班时区下的日期
type AutomaticCheckin struct {
	Day            string
	UserID         int64
	TagID          int64
	ScheduleID     int64
	Latitude       float64
	Longitude      float64
	DistanceMeters float64
	IsWithinRadius bool
}

// ManualCheckin 手动打卡写入参数
type ManualCheckin struct {
	ScheduleID     *int64
	Day            string
	UserID         int64
	TagID          int64
	Latitude       float64
	Longitude      float64
	DistanceMeters float64
	IsWithinRadius bool
}

// RecordResult Created 为 false 表示当天该排班已有自动打卡
type RecordResult struct {
	Checkin *model.Checkin
	Created bool
}

// Ledger 打卡账本，自动打卡的去重完全依赖数据库唯一索引
type Ledger struct {
	store CheckinStore
	now   func() time.Time
}

func NewLedger(store CheckinStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock 替换时钟，测试使用
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// TryRecordAutomatic 单条 INSERT ... ON CONFLICT DO NOTHING，不做先查后写
func (l *Ledger) TryRecordAutomatic(ctx context.Context, in AutomaticCheckin) (RecordResult, error) {
	if in.DistanceMeters < 0 {
		return RecordResult{}, fmt.Errorf("negative distance %v for user %d", in.DistanceMeters, in.UserID)
	}
	if in.Day == "" {
		return RecordResult{}, fmt.Errorf("missing calendar day for user %d", in.UserID)
	}

	day := in.Day
	scheduleID := in.ScheduleID
	checkin := &model.Checkin{
		UserID:         in.UserID,
		TagID:          in.TagID,
		ScheduleID:     &scheduleID,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		DistanceMeters: in.DistanceMeters,
		IsWithinRadius: in.IsWithinRadius,
		Type:           model.CheckinTypeAutomatic,
		Status:         statusFor(in.IsWithinRadius),
		CheckinDate:    day,
		AutoDedupDay:   &day,
		CreatedAt:      l.now().UTC(),
	}

	created, err := l.store.InsertAutomatic(ctx, checkin)
	if err != nil {
		return RecordResult{}, err
	}
	if !created {
		return RecordResult{}, nil
	}
	return RecordResult{Created: true, Checkin: checkin}, nil
}

// TryRecordManual 手动打卡总是写入，当天去重由调用方负责
func (l *Ledger) TryRecordManual(ctx context.Context, in ManualCheckin) (*model.Checkin, error) {
	if in.DistanceMeters < 0 {
		return nil, fmt.Errorf("negative distance %v for user %d", in.DistanceMeters, in.UserID)
	}

	checkin := &model.Checkin{
		UserID:         in.UserID,
		TagID:          in.TagID,
		ScheduleID:     in.ScheduleID,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		DistanceMeters: in.DistanceMeters,
		IsWithinRadius: in.IsWithinRadius,
		Type:           model.CheckinTypeManual,
		Status:         statusFor(in.IsWithinRadius),
		CheckinDate:    in.Day,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.store.CreateManual(ctx, checkin); err != nil {
		return nil, err
	}
	return checkin, nil
}

func statusFor(withinRadius bool) model.CheckinStatus {
	if withinRadius {
		return model.CheckinStatusCompleted
	}
	return model.CheckinStatusFailed
}
