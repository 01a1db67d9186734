package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GeoCheckin/internal/model"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/geo"
	"GeoCheckin/pkg/metrics"
)

// 设备时钟允许的超前量
const maxClockSkew = 5 * time.Minute

// PingAppender 位置写入
type PingAppender interface {
	AppendPing(ctx context.Context, ping *model.LocationPing) error
}

// LocationPingInput 位置上报参数，RecordedAt 为零值时取服务端时间
type LocationPingInput struct {
	RecordedAt time.Time
	TagID      *int64
	Accuracy   *float64
	Source     string
	UserID     int64
	Latitude   float64
	Longitude  float64
}

// LocationService 位置上报
type LocationService struct {
	store   PingAppender
	logger  *zap.Logger
	metrics *metrics.CheckinMetrics
	timeout time.Duration
	now     func() time.Time
}

func NewLocationService(store PingAppender, logger *zap.Logger, m *metrics.CheckinMetrics, timeout time.Duration) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{store: store, logger: logger, metrics: m, timeout: timeout, now: time.Now}
}

// WithClock 替换时钟，测试使用
func (s *LocationService) WithClock(now func() time.Time) *LocationService {
	s.now = now
	return s
}

// RecordPing 追加一条位置记录
func (s *LocationService) RecordPing(ctx context.Context, in LocationPingInput) (*model.LocationPing, error) {
	if in.UserID <= 0 {
		return nil, fmt.Errorf("user_id must be positive: %w", errors.InvalidRequest)
	}
	if err := geo.ValidateCoordinate(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.Accuracy != nil && *in.Accuracy < 0 {
		return nil, fmt.Errorf("accuracy must not be negative: %w", errors.InvalidRequest)
	}

	now := s.now()
	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}
	if recordedAt.After(now.Add(maxClockSkew)) {
		return nil, fmt.Errorf("recorded_at %s is in the future: %w", recordedAt.Format(time.RFC3339), errors.InvalidRequest)
	}

	ping := &model.LocationPing{
		UserID:     in.UserID,
		TagID:      in.TagID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Accuracy:   in.Accuracy,
		RecordedAt: recordedAt.UTC(),
	}

	writeCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.store.AppendPing(writeCtx, ping); err != nil {
		s.logger.Error("Failed to append location ping", zap.Int64("user_id", in.UserID), zap.Error(err))
		return nil, persistenceError(err)
	}

	source := in.Source
	if source == "" {
		source = "http"
	}
	s.metrics.RecordPingIngested(ctx, source)
	return ping, nil
}

// IsClientError 请求本身非法，重试无意义
func IsClientError(err error) bool {
	return stderrors.Is(err, errors.InvalidRequest) || stderrors.Is(err, errors.InvalidCoordinate)
}
