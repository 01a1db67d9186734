package schedule

// 自动打卡调度器：按固定间隔扫描激活中的排班，
// 对标签附近近期上报过位置的用户写入自动打卡，并加入排班关联的分组

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/repository"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/geo"
	"GeoCheckin/pkg/metrics"
	"GeoCheckin/pkg/snowflake"
)

const tickLockKey = "checkin:auto:tick"

// ScheduleSource 排班与标签查询
type ScheduleSource interface {
	ListActiveSchedules(ctx context.Context) ([]model.Schedule, error)
	GetSchedule(ctx context.Context, scheduleID int64) (*model.Schedule, error)
	ListScheduleTags(ctx context.Context, scheduleID int64) ([]model.Tag, error)
}

// LocationSource 标签附近用户的最近位置
type LocationSource interface {
	RecentUsersNearTag(ctx context.Context, tagID int64, freshness time.Duration) ([]repository.UserLocation, error)
}

// TickLocker 多实例部署时防止同一轮被重复执行，可为空
type TickLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Config 调度参数
type Config struct {
	Interval      time.Duration
	Freshness     time.Duration
	DefaultRadius float64
	DBTimeout     time.Duration
	Concurrency   int
	LockTTL       time.Duration
}

// Deps 调度依赖，Associator、Publisher、Locker 与 Metrics 可为空
type Deps struct {
	Schedules  ScheduleSource
	Locations  LocationSource
	Ledger     *service.Ledger
	Associator *service.GroupAssociator
	Publisher  service.EventPublisher
	Locker     TickLocker
	Metrics    *metrics.CheckinMetrics
	Logger     *zap.Logger
}

// ScheduleRunStats 单个排班一次执行的统计
type ScheduleRunStats struct {
	BatchID           string `json:"batch_id"`
	ScheduleID        int64  `json:"schedule_id"`
	TagsSkipped       int    `json:"tags_skipped"`
	UsersProcessed    int    `json:"users_processed"`
	UsersWithinRadius int    `json:"users_within_radius"`
	UsersSkipped      int    `json:"users_skipped"`
	CheckinsCreated   int    `json:"checkins_created"`
	Errors            int    `json:"errors"`
}

func (s *ScheduleRunStats) add(o userOutcome) {
	s.UsersProcessed++
	switch {
	case o.err:
		s.Errors++
	case !o.created:
		s.UsersSkipped++
	default:
		s.CheckinsCreated++
	}
	if o.within && !o.err {
		s.UsersWithinRadius++
	}
}

// TickStats 一轮调度的统计，Skipped 表示上一轮仍在执行或锁被其他实例持有
type TickStats struct {
	BatchID            string
	Skipped            bool
	SchedulesEvaluated int
	SchedulesActive    int
	TagsSkipped        int
	UsersProcessed     int
	CheckinsCreated    int
	CheckinsSkipped    int
	Errors             int
	Duration           time.Duration
	Schedules          []ScheduleRunStats
}

func (t *TickStats) merge(s ScheduleRunStats) {
	t.TagsSkipped += s.TagsSkipped
	t.UsersProcessed += s.UsersProcessed
	t.CheckinsCreated += s.CheckinsCreated
	t.CheckinsSkipped += s.UsersSkipped
	t.Errors += s.Errors
	t.Schedules = append(t.Schedules, s)
}

func (t *TickStats) summary(outcome string) metrics.TickSummary {
	return metrics.TickSummary{
		Outcome:            outcome,
		SchedulesEvaluated: t.SchedulesEvaluated,
		TagsSkipped:        t.TagsSkipped,
		UsersProcessed:     t.UsersProcessed,
		CheckinsCreated:    t.CheckinsCreated,
		CheckinsSkipped:    t.CheckinsSkipped,
		Errors:             t.Errors,
		DurationSeconds:    t.Duration.Seconds(),
	}
}

type userOutcome struct {
	created bool
	within  bool
	err     bool
}

// AutoCheckinScheduler 自动打卡调度器，同一时刻只有一轮在执行
type AutoCheckinScheduler struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	tickMu      sync.Mutex
	tickRunning bool
	lastTickAt  time.Time
	inflight    sync.WaitGroup

	lifecycleMu sync.Mutex
	stopping    bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// ErrStopped Stop 开始后拒绝新的执行
var ErrStopped = stderrors.New("auto check-in scheduler stopped")

func NewAutoCheckinScheduler(deps Deps, cfg Config) *AutoCheckinScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 30 * time.Minute
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AutoCheckinScheduler{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		now:    time.Now,
	}
}

// WithClock 替换时钟，测试使用
func (s *AutoCheckinScheduler) WithClock(now func() time.Time) *AutoCheckinScheduler {
	s.now = now
	return s
}

// Start 启动后台循环，立即执行一轮，此后每个 Interval 执行一次。
// 某轮超时运行时，错过的触发直接丢弃
func (s *AutoCheckinScheduler) Start(ctx context.Context) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.stopCh != nil || s.stopping {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.doneCh)

	s.logger.Info("Auto check-in scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("freshness", s.cfg.Freshness),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
}

// Stop 停止循环并等待进行中的一轮结束
func (s *AutoCheckinScheduler) Stop() {
	s.lifecycleMu.Lock()
	s.stopping = true
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.lifecycleMu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	s.inflight.Wait()
	s.logger.Info("Auto check-in scheduler stopped")
}

func (s *AutoCheckinScheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// 父 ctx 取消时让当前这一轮跑完
	tickCtx := context.WithoutCancel(ctx)

	for {
		if _, err := s.RunTick(tickCtx); err != nil {
			s.logger.Error("Auto check-in tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// RunTick 执行一轮自动打卡。数据库不可达时中止本轮并返回 PersistenceUnavailable，
// 单个用户或标签的错误只计数
func (s *AutoCheckinScheduler) RunTick(ctx context.Context) (*TickStats, error) {
	if !s.track() {
		return &TickStats{Skipped: true}, nil
	}
	defer s.inflight.Done()

	startTime := s.now()

	s.tickMu.Lock()
	if s.tickRunning {
		s.tickMu.Unlock()
		s.logger.Info("Auto check-in tick already running, skipping")
		return &TickStats{Skipped: true}, nil
	}
	s.tickRunning = true
	s.lastTickAt = startTime
	s.tickMu.Unlock()

	defer func() {
		s.tickMu.Lock()
		s.tickRunning = false
		s.tickMu.Unlock()
	}()

	if s.deps.Locker != nil {
		token, ok, err := s.deps.Locker.TryLock(ctx, tickLockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Tick lock unavailable, running without it", zap.Error(err))
		case !ok:
			s.logger.Info("Tick lock held by another instance, skipping")
			return &TickStats{Skipped: true}, nil
		default:
			defer func() {
				if err := s.deps.Locker.Unlock(context.WithoutCancel(ctx), tickLockKey, token); err != nil {
					s.logger.Warn("Failed to release tick lock", zap.Error(err))
				}
			}()
		}
	}

	began := time.Now()
	stats := &TickStats{BatchID: s.nextBatchID()}
	log := s.logger.With(zap.String("batch_id", stats.BatchID))

	log.Info("Starting auto check-in tick", zap.Time("start_time", startTime))

	err := s.runTick(ctx, log, startTime, stats)
	stats.Duration = time.Since(began)

	outcome := "completed"
	switch {
	case err != nil:
		outcome = "aborted"
	case stats.SchedulesActive == 0:
		outcome = "idle"
	}
	s.deps.Metrics.RecordTick(ctx, stats.summary(outcome))

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Int("schedules_evaluated", stats.SchedulesEvaluated),
		zap.Int("schedules_active", stats.SchedulesActive),
		zap.Int("tags_skipped", stats.TagsSkipped),
		zap.Int("users_processed", stats.UsersProcessed),
		zap.Int("checkins_created", stats.CheckinsCreated),
		zap.Int("checkins_skipped", stats.CheckinsSkipped),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration),
	}
	if err != nil {
		log.Error("Auto check-in tick aborted", append(fields, zap.Error(err))...)
		return stats, err
	}
	log.Info("Auto check-in tick completed", fields...)
	return stats, nil
}

func (s *AutoCheckinScheduler) runTick(ctx context.Context, log *zap.Logger, now time.Time, stats *TickStats) error {
	listCtx, cancel := s.withTimeout(ctx)
	schedules, err := s.deps.Schedules.ListActiveSchedules(listCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: failed to list schedules: %v", errors.PersistenceUnavailable, err)
	}

	stats.SchedulesEvaluated = len(schedules)
	if len(schedules) == 0 {
		log.Debug("No active schedules, skipping tick")
		return nil
	}

	var active []*model.Schedule
	for i := range schedules {
		ok, err := service.IsActive(&schedules[i], now)
		if err != nil {
			stats.Errors++
			log.Warn("Skipping misconfigured schedule",
				zap.Int64("schedule_id", schedules[i].ID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			active = append(active, &schedules[i])
		}
	}

	stats.SchedulesActive = len(active)
	if len(active) == 0 {
		log.Debug("No schedule within its window, skipping tick")
		return nil
	}

	// 排班顺序处理，标签内的用户并发处理
	for _, schedule := range active {
		runStats, err := s.runSchedule(ctx, log, schedule, now, stats.BatchID)
		stats.merge(runStats)
		if err != nil {
			return err
		}
	}
	return nil
}

// RunSchedule 立即对单个排班执行一次，供管理接口使用。
// 排班不存在返回 ScheduleNotFound，未处于激活窗口返回 ScheduleNotActive
func (s *AutoCheckinScheduler) RunSchedule(ctx context.Context, scheduleID int64) (*ScheduleRunStats, error) {
	if !s.track() {
		return nil, ErrStopped
	}
	defer s.inflight.Done()

	getCtx, cancel := s.withTimeout(ctx)
	schedule, err := s.deps.Schedules.GetSchedule(getCtx, scheduleID)
	cancel()
	if err != nil {
		if stderrors.Is(err, errors.ScheduleNotFound) {
			return nil, err
		}
		return nil, persistenceError(err)
	}

	now := s.now()
	ok, err := service.IsActive(schedule, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("schedule %d: %w", scheduleID, errors.ScheduleNotActive)
	}

	batchID := s.nextBatchID()
	log := s.logger.With(zap.String("batch_id", batchID), zap.Bool("manual_run", true))
	stats, err := s.runSchedule(ctx, log, schedule, now, batchID)
	if err != nil {
		return &stats, err
	}
	return &stats, nil
}

func (s *AutoCheckinScheduler) runSchedule(
	ctx context.Context,
	log *zap.Logger,
	schedule *model.Schedule,
	now time.Time,
	batchID string,
) (ScheduleRunStats, error) {
	stats := ScheduleRunStats{BatchID: batchID, ScheduleID: schedule.ID}
	log = log.With(zap.Int64("schedule_id", schedule.ID))

	loc, err := schedule.Location()
	if err != nil {
		stats.Errors++
		log.Warn("Skipping schedule with unknown timezone", zap.Error(err))
		return stats, nil
	}
	day := model.CalendarDay(now, loc)

	tagsCtx, cancel := s.withTimeout(ctx)
	tags, err := s.deps.Schedules.ListScheduleTags(tagsCtx, schedule.ID)
	cancel()
	if err != nil {
		if repository.IsUnavailable(err) {
			return stats, persistenceError(err)
		}
		stats.Errors++
		log.Error("Failed to list schedule tags", zap.Error(err))
		return stats, nil
	}

	for i := range tags {
		tag := &tags[i]
		if !tag.AcceptsCheckin() || !tag.HasGeolocation() {
			stats.TagsSkipped++
			log.Debug("Skipping tag without geolocation or check-in disabled", zap.Int64("tag_id", tag.ID))
			continue
		}

		if err := s.runTag(ctx, log, schedule, tag, day, batchID, &stats); err != nil {
			return stats, err
		}
	}

	log.Info("Schedule processed",
		zap.String("day", day),
		zap.Int("tags_skipped", stats.TagsSkipped),
		zap.Int("users_processed", stats.UsersProcessed),
		zap.Int("users_within_radius", stats.UsersWithinRadius),
		zap.Int("checkins_created", stats.CheckinsCreated),
		zap.Int("users_skipped", stats.UsersSkipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// runTag 用有界的 worker 池处理标签附近的用户，出现数据库不可达时停止派发并返回
func (s *AutoCheckinScheduler) runTag(
	ctx context.Context,
	log *zap.Logger,
	schedule *model.Schedule,
	tag *model.Tag,
	day string,
	batchID string,
	stats *ScheduleRunStats,
) error {
	log = log.With(zap.Int64("tag_id", tag.ID))

	usersCtx, cancel := s.withTimeout(ctx)
	users, err := s.deps.Locations.RecentUsersNearTag(usersCtx, tag.ID, s.cfg.Freshness)
	cancel()
	if err != nil {
		if repository.IsUnavailable(err) {
			return persistenceError(err)
		}
		stats.Errors++
		log.Error("Failed to load recent users", zap.Error(err))
		return nil
	}
	if len(users) == 0 {
		return nil
	}

	radius := tag.EffectiveRadius(s.cfg.DefaultRadius)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		abortErr error
	)
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, user := range users {
		mu.Lock()
		aborted := abortErr != nil
		mu.Unlock()
		if aborted {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(user repository.UserLocation) {
			defer func() {
				<-sem
				wg.Done()
			}()

			outcome, err := s.processUser(ctx, log, schedule, tag, radius, day, batchID, user)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if abortErr == nil {
					abortErr = err
				}
				return
			}
			stats.add(outcome)
		}(user)
	}
	wg.Wait()

	return abortErr
}

// processUser 只有数据库不可达时返回错误，其余错误记入 outcome
func (s *AutoCheckinScheduler) processUser(
	ctx context.Context,
	log *zap.Logger,
	schedule *model.Schedule,
	tag *model.Tag,
	radius float64,
	day string,
	batchID string,
	user repository.UserLocation,
) (userOutcome, error) {
	log = log.With(zap.Int64("user_id", user.UserID))

	distance, err := geo.Distance(user.Latitude, user.Longitude, *tag.Latitude, *tag.Longitude)
	if err != nil {
		log.Warn("Skipping ping with invalid coordinate", zap.Int64("ping_id", user.PingID), zap.Error(err))
		return userOutcome{err: true}, nil
	}
	within := geo.WithinRadius(distance, radius)

	writeCtx, cancel := s.withTimeout(ctx)
	result, err := s.deps.Ledger.TryRecordAutomatic(writeCtx, service.AutomaticCheckin{
		Day:            day,
		UserID:         user.UserID,
		TagID:          tag.ID,
		ScheduleID:     schedule.ID,
		Latitude:       user.Latitude,
		Longitude:      user.Longitude,
		DistanceMeters: distance,
		IsWithinRadius: within,
	})
	cancel()
	if err != nil {
		if repository.IsUnavailable(err) {
			return userOutcome{}, persistenceError(err)
		}
		log.Error("Failed to record automatic check-in", zap.Error(err))
		return userOutcome{within: within, err: true}, nil
	}
	if !result.Created {
		log.Debug("Automatic check-in already recorded today", zap.String("day", day))
		return userOutcome{within: within}, nil
	}

	if within {
		if s.deps.Associator != nil {
			assocCtx, cancel := s.withTimeout(ctx)
			if _, err := s.deps.Associator.EnsureMembership(assocCtx, user.UserID, schedule.ID); err != nil {
				log.Warn("Group association failed after automatic check-in", zap.Error(err))
			}
			cancel()
		}
		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishCheckinCreated(ctx, result.Checkin, batchID); err != nil {
				log.Warn("Failed to publish checkin event", zap.Int64("checkin_id", result.Checkin.ID), zap.Error(err))
			}
		}
	}

	log.Debug("Automatic check-in recorded",
		zap.Int64("checkin_id", result.Checkin.ID),
		zap.Float64("distance_meters", distance),
		zap.Bool("within_radius", within),
	)
	return userOutcome{created: true, within: within}, nil
}

// track 登记一次进行中的执行，与 Stop 在同一把锁下判断，避免 Add 与 Wait 并发
func (s *AutoCheckinScheduler) track() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.stopping {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *AutoCheckinScheduler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DBTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.DBTimeout)
}

// nextBatchID snowflake 未初始化时退回 uuid
func (s *AutoCheckinScheduler) nextBatchID() string {
	id, err := snowflake.NextBatchID()
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// LastTickAt 最近一轮的开始时间
func (s *AutoCheckinScheduler) LastTickAt() time.Time {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.lastTickAt
}

func persistenceError(err error) error {
	if stderrors.Is(err, errors.PersistenceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.PersistenceUnavailable, err)
}
