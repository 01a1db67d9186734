package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/repository"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/geo"
	"GeoCheckin/pkg/metrics"
)

// TagReader 标签查询
type TagReader interface {
	GetTag(ctx context.Context, tagID int64) (*model.Tag, error)
}

// TagScheduleLookup 查询关联标签的排班
type TagScheduleLookup interface {
	SchedulesForTag(ctx context.Context, tagID int64) ([]model.Schedule, error)
}

// ManualCheckinLookup 查询当天已完成的手动打卡
type ManualCheckinLookup interface {
	FindCompletedManual(ctx context.Context, userID, tagID int64, day string) (*model.Checkin, error)
}

// ClaimStore 手动打卡占位，不可用时降级为仅数据库校验
type ClaimStore interface {
	TryClaim(ctx context.Context, userID, tagID int64, day string) (bool, error)
	Release(ctx context.Context, userID, tagID int64, day string) error
}

// EventPublisher 打卡事件发布
type EventPublisher interface {
	PublishCheckinCreated(ctx context.Context, checkin *model.Checkin, batchID string) error
}

// ManualCheckinRequest 手动打卡参数
type ManualCheckinRequest struct {
	UserID    int64
	TagID     int64
	Latitude  float64
	Longitude float64
}

// ManualCheckinResult 范围外同样返回结果，由客户端展示距离
type ManualCheckinResult struct {
	Checkin        *model.Checkin
	RedirectURL    string
	DistanceMeters float64
	RadiusMeters   float64
	IsWithinRadius bool
}

// ManualCheckinConfig 手动打卡配置
type ManualCheckinConfig struct {
	Location      *time.Location // 手动打卡日界所用时区
	DefaultRadius float64
	DBTimeout     time.Duration
}

// ManualCheckinDeps 手动打卡依赖，Claims 与 Publisher 可为空
type ManualCheckinDeps struct {
	Tags       TagReader
	Schedules  TagScheduleLookup
	Checkins   ManualCheckinLookup
	Ledger     *Ledger
	Associator *GroupAssociator
	Claims     ClaimStore
	Publisher  EventPublisher
	Metrics    *metrics.CheckinMetrics
	Logger     *zap.Logger
}

// ManualCheckinService 同步手动打卡
type ManualCheckinService struct {
	deps ManualCheckinDeps
	cfg  ManualCheckinConfig
	now  func() time.Time
}

func NewManualCheckinService(deps ManualCheckinDeps, cfg ManualCheckinConfig) *ManualCheckinService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ManualCheckinService{deps: deps, cfg: cfg, now: time.Now}
}

// WithClock 替换时钟，测试使用
func (s *ManualCheckinService) WithClock(now func() time.Time) *ManualCheckinService {
	s.now = now
	return s
}

func (s *ManualCheckinService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DBTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.DBTimeout)
}

// CheckIn 手动打卡：校验标签与坐标，计算距离并写入；范围内时关联当前激活排班的分组
func (s *ManualCheckinService) CheckIn(ctx context.Context, req ManualCheckinRequest) (*ManualCheckinResult, error) {
	result, outcome, err := s.checkIn(ctx, req)
	s.deps.Metrics.RecordManualCheckin(ctx, outcome)
	return result, err
}

func (s *ManualCheckinService) checkIn(ctx context.Context, req ManualCheckinRequest) (*ManualCheckinResult, string, error) {
	log := s.deps.Logger.With(zap.Int64("user_id", req.UserID), zap.Int64("tag_id", req.TagID))

	if err := geo.ValidateCoordinate(req.Latitude, req.Longitude); err != nil {
		return nil, "rejected", err
	}

	tag, err := s.getTag(ctx, req.TagID)
	if err != nil {
		if stderrors.Is(err, errors.TagNotFound) {
			return nil, "rejected", err
		}
		return nil, "error", persistenceError(err)
	}
	if !tag.AcceptsCheckin() {
		return nil, "rejected", fmt.Errorf("tag %d does not accept check-ins: %w", tag.ID, errors.TagNotFound)
	}
	if !tag.HasGeolocation() {
		return nil, "rejected", fmt.Errorf("tag %d: %w", tag.ID, errors.GeolocationNotConfigured)
	}

	now := s.now()
	day := model.CalendarDay(now, s.cfg.Location)

	if existing, err := s.findCompleted(ctx, req.UserID, tag.ID, day); err != nil {
		return nil, "error", persistenceError(err)
	} else if existing != nil {
		return nil, "duplicate", alreadyCheckedIn(existing, tag)
	}

	distance, err := geo.Distance(req.Latitude, req.Longitude, *tag.Latitude, *tag.Longitude)
	if err != nil {
		return nil, "rejected", err
	}
	radius := tag.EffectiveRadius(s.cfg.DefaultRadius)
	within := geo.WithinRadius(distance, radius)

	claimed := false
	if within && s.deps.Claims != nil {
		ok, err := s.deps.Claims.TryClaim(ctx, req.UserID, tag.ID, day)
		switch {
		case err != nil:
			log.Warn("Manual check-in claim unavailable, falling back to database check", zap.Error(err))
		case !ok:
			// 另一请求持有占位，优先返回已落库的记录
			if existing, findErr := s.findCompleted(ctx, req.UserID, tag.ID, day); findErr == nil && existing != nil {
				return nil, "duplicate", alreadyCheckedIn(existing, tag)
			}
			return nil, "duplicate", fmt.Errorf("concurrent check-in in progress: %w", errors.AlreadyCheckedInToday)
		default:
			claimed = true
		}
	}

	var scheduleID *int64
	if within {
		scheduleID = s.activeScheduleFor(ctx, log, tag.ID, now)
	}

	writeCtx, cancel := s.withTimeout(ctx)
	checkin, err := s.deps.Ledger.TryRecordManual(writeCtx, ManualCheckin{
		UserID:         req.UserID,
		TagID:          tag.ID,
		ScheduleID:     scheduleID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		DistanceMeters: distance,
		IsWithinRadius: within,
		Day:            day,
	})
	cancel()
	if err != nil {
		if claimed {
			s.releaseClaim(ctx, log, req.UserID, tag.ID, day)
		}
		log.Error("Failed to persist manual check-in", zap.Error(err))
		return nil, "error", persistenceError(err)
	}

	if within && scheduleID != nil && s.deps.Associator != nil {
		assocCtx, cancel := s.withTimeout(ctx)
		if _, err := s.deps.Associator.EnsureMembership(assocCtx, req.UserID, *scheduleID); err != nil {
			log.Warn("Group association failed after manual check-in",
				zap.Int64("schedule_id", *scheduleID),
				zap.Error(err),
			)
		}
		cancel()
	}

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishCheckinCreated(ctx, checkin, ""); err != nil {
			log.Warn("Failed to publish checkin event", zap.Int64("checkin_id", checkin.ID), zap.Error(err))
		}
	}

	outcome := "outside_radius"
	if within {
		outcome = "completed"
	}
	log.Info("Manual check-in recorded",
		zap.Int64("checkin_id", checkin.ID),
		zap.Float64("distance_meters", distance),
		zap.Float64("radius_meters", radius),
		zap.Bool("within_radius", within),
	)

	return &ManualCheckinResult{
		Checkin:        checkin,
		RedirectURL:    tag.Redirect(),
		DistanceMeters: distance,
		RadiusMeters:   radius,
		IsWithinRadius: within,
	}, outcome, nil
}

func (s *ManualCheckinService) getTag(ctx context.Context, tagID int64) (*model.Tag, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.deps.Tags.GetTag(ctx, tagID)
}

func (s *ManualCheckinService) findCompleted(ctx context.Context, userID, tagID int64, day string) (*model.Checkin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.deps.Checkins.FindCompletedManual(ctx, userID, tagID, day)
}

// activeScheduleFor 返回标签当前激活的第一个排班（按 ID），查询失败时不关联
func (s *ManualCheckinService) activeScheduleFor(ctx context.Context, log *zap.Logger, tagID int64, now time.Time) *int64 {
	if s.deps.Schedules == nil {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	schedules, err := s.deps.Schedules.SchedulesForTag(ctx, tagID)
	if err != nil {
		log.Warn("Failed to look up schedules for tag", zap.Error(err))
		return nil
	}
	for i := range schedules {
		active, err := IsActive(&schedules[i], now)
		if err != nil {
			log.Warn("Skipping misconfigured schedule", zap.Int64("schedule_id", schedules[i].ID), zap.Error(err))
			continue
		}
		if active {
			id := schedules[i].ID
			return &id
		}
	}
	return nil
}

func (s *ManualCheckinService) releaseClaim(ctx context.Context, log *zap.Logger, userID, tagID int64, day string) {
	if err := s.deps.Claims.Release(ctx, userID, tagID, day); err != nil {
		log.Warn("Failed to release manual check-in claim", zap.Error(err))
	}
}

func alreadyCheckedIn(existing *model.Checkin, tag *model.Tag) error {
	return &errors.AlreadyCheckedInError{
		CheckinID:   existing.ID,
		CheckedInAt: existing.CreatedAt,
		RedirectURL: tag.Redirect(),
	}
}

// persistenceError 数据库不可达时统一映射为 PersistenceUnavailable
func persistenceError(err error) error {
	if repository.IsUnavailable(err) && !stderrors.Is(err, errors.PersistenceUnavailable) {
		return fmt.Errorf("%w: %v", errors.PersistenceUnavailable, err)
	}
	return err
}
