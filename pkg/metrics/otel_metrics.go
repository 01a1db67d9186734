package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckinMetrics 打卡引擎指标集合，方法对 nil 接收者安全
type CheckinMetrics struct {
	// 自动打卡批次指标
	TicksTotal         metric.Int64Counter
	TickDuration       metric.Float64Histogram
	SchedulesEvaluated metric.Int64Counter
	TagsSkipped        metric.Int64Counter
	UsersProcessed     metric.Int64Counter
	CheckinsCreated    metric.Int64Counter
	CheckinsSkipped    metric.Int64Counter
	TickErrors         metric.Int64Counter
	MembershipsAdded   metric.Int64Counter

	// 手动打卡与位置上报
	ManualCheckinsTotal metric.Int64Counter
	PingsIngested       metric.Int64Counter
}

var (
	metrics     *CheckinMetrics
	metricsOnce sync.Once
)

// Default 返回基于全局 MeterProvider 的指标实例
func Default() *CheckinMetrics {
	metricsOnce.Do(func() {
		m, err := New(otel.Meter("geocheckin"))
		if err == nil {
			metrics = m
		}
	})
	return metrics
}

// New 使用指定 meter 创建指标
func New(meter metric.Meter) (*CheckinMetrics, error) {
	m := &CheckinMetrics{}
	var err error

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&m.TicksTotal, "checkin_ticks_total", "Total number of automatic check-in ticks", "{tick}"},
		{&m.SchedulesEvaluated, "checkin_schedules_evaluated_total", "Schedules evaluated by ticks", "{schedule}"},
		{&m.TagsSkipped, "checkin_tags_skipped_total", "Tags skipped because they cannot be checked into", "{tag}"},
		{&m.UsersProcessed, "checkin_users_processed_total", "Users evaluated against a tag", "{user}"},
		{&m.CheckinsCreated, "checkin_auto_created_total", "Automatic check-ins created", "{checkin}"},
		{&m.CheckinsSkipped, "checkin_auto_skipped_total", "Automatic check-ins skipped by deduplication", "{checkin}"},
		{&m.TickErrors, "checkin_tick_errors_total", "Errors raised while processing ticks", "{error}"},
		{&m.MembershipsAdded, "checkin_memberships_added_total", "Group memberships added automatically", "{membership}"},
		{&m.ManualCheckinsTotal, "checkin_manual_total", "Manual check-in requests", "{request}"},
		{&m.PingsIngested, "checkin_pings_ingested_total", "Location pings appended", "{ping}"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	m.TickDuration, err = meter.Float64Histogram(
		"checkin_tick_duration_seconds",
		metric.WithDescription("Time spent processing one tick in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// TickSummary 一轮批次的计数
type TickSummary struct {
	Outcome            string
	SchedulesEvaluated int
	TagsSkipped        int
	UsersProcessed     int
	CheckinsCreated    int
	CheckinsSkipped    int
	Errors             int
	DurationSeconds    float64
}

// RecordTick 记录一轮批次
func (m *CheckinMetrics) RecordTick(ctx context.Context, s TickSummary) {
	if m == nil {
		return
	}
	outcome := metric.WithAttributes(attribute.String("outcome", s.Outcome))
	m.TicksTotal.Add(ctx, 1, outcome)
	m.TickDuration.Record(ctx, s.DurationSeconds, outcome)
	m.SchedulesEvaluated.Add(ctx, int64(s.SchedulesEvaluated))
	m.TagsSkipped.Add(ctx, int64(s.TagsSkipped))
	m.UsersProcessed.Add(ctx, int64(s.UsersProcessed))
	m.CheckinsCreated.Add(ctx, int64(s.CheckinsCreated))
	m.CheckinsSkipped.Add(ctx, int64(s.CheckinsSkipped))
	m.TickErrors.Add(ctx, int64(s.Errors))
}

// RecordMembershipsAdded 记录自动加入分组数
func (m *CheckinMetrics) RecordMembershipsAdded(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MembershipsAdded.Add(ctx, int64(n))
}

// RecordManualCheckin outcome: completed, outside_radius, duplicate, rejected, error
func (m *CheckinMetrics) RecordManualCheckin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ManualCheckinsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPingIngested source: http, mq
func (m *CheckinMetrics) RecordPingIngested(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.PingsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
