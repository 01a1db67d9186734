package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"GeoCheckin/internal/model"
)

// UserLocation 用户最近一次位置
type UserLocation struct {
	RecordedAt time.Time
	Accuracy   *float64
	UserID     int64
	PingID     int64
	Latitude   float64
	Longitude  float64
}

// LocationRepository 位置上报存储
type LocationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db, now: time.Now}
}

// WithClock 替换时钟，测试使用
func (r *LocationRepository) WithClock(now func() time.Time) *LocationRepository {
	r.now = now
	return r
}

// AppendPing 追加一条位置记录
func (r *LocationRepository) AppendPing(ctx context.Context, ping *model.LocationPing) error {
	ping.RecordedAt = ping.RecordedAt.UTC()
	if err := r.db.WithContext(ctx).Create(ping).Error; err != nil {
		return fmt.Errorf("failed to append location ping: %w", err)
	}
	return nil
}

// RecentUsersNearTag 返回与标签关联过的用户（任一上报携带该 tag_id）
// 的最近一次位置，只保留 recorded_at >= now - freshness 的记录。
// 不做距离过滤，由调用方计算
func (r *LocationRepository) RecentUsersNearTag(ctx context.Context, tagID int64, freshness time.Duration) ([]UserLocation, error) {
	cutoff := r.now().Add(-freshness).UTC()

	associated := r.db.Model(&model.LocationPing{}).
		Select("DISTINCT user_id").
		Where("tag_id = ?", tagID)

	latest := r.db.Model(&model.LocationPing{}).
		Select("user_id, MAX(recorded_at) AS max_recorded_at").
		Where("user_id IN (?)", associated).
		Group("user_id")

	var pings []model.LocationPing
	err := r.db.WithContext(ctx).
		Table("location_pings AS p").
		Select("p.*").
		Joins("JOIN (?) AS latest ON latest.user_id = p.user_id AND latest.max_recorded_at = p.recorded_at", latest).
		Where("p.recorded_at >= ?", cutoff).
		Order("p.user_id, p.id DESC").
		Scan(&pings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent locations for tag %d: %w", tagID, err)
	}

	// 同一时间戳多条时取 ID 最大的一条
	users := make([]UserLocation, 0, len(pings))
	var lastUser int64 = -1
	for _, p := range pings {
		if p.UserID == lastUser {
			continue
		}
		lastUser = p.UserID
		users = append(users, UserLocation{
			UserID:     p.UserID,
			PingID:     p.ID,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Accuracy:   p.Accuracy,
			RecordedAt: p.RecordedAt,
		})
	}
	return users, nil
}
