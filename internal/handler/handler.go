package handler

import (
	"context"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/schedule"
	"GeoCheckin/internal/service"
)

// ManualCheckiner 手动打卡
type ManualCheckiner interface {
	CheckIn(ctx context.Context, req service.ManualCheckinRequest) (*service.ManualCheckinResult, error)
}

// PingRecorder 位置上报
type PingRecorder interface {
	RecordPing(ctx context.Context, in service.LocationPingInput) (*model.LocationPing, error)
}

// ScheduleRunner 立即执行单个排班
type ScheduleRunner interface {
	RunSchedule(ctx context.Context, scheduleID int64) (*schedule.ScheduleRunStats, error)
}

// HealthCheck 依赖探活，返回 nil 表示正常
type HealthCheck func(ctx context.Context) error

// Handler 聚合 HTTP 处理函数的依赖
type Handler struct {
	checkins  ManualCheckiner
	locations PingRecorder
	runner    ScheduleRunner
	checks    map[string]HealthCheck
}

func New(checkins ManualCheckiner, locations PingRecorder, runner ScheduleRunner, checks map[string]HealthCheck) *Handler {
	return &Handler{
		checkins:  checkins,
		locations: locations,
		runner:    runner,
		checks:    checks,
	}
}
