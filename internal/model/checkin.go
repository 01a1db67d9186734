package model

import "time"

// CheckinType 打卡来源
type CheckinType string

const (
	CheckinTypeManual    CheckinType = "manual"
	CheckinTypeAutomatic CheckinType = "automatic"
)

// CheckinStatus 范围内为 completed，范围外为 failed
type CheckinStatus string

const (
	CheckinStatusCompleted CheckinStatus = "completed"
	CheckinStatusFailed    CheckinStatus = "failed"
)

// Checkin 打卡记录，创建后不可修改。
// AutoDedupDay 仅自动打卡写入，(user_id, schedule_id, auto_dedup_day) 唯一，
// 手动打卡该列为 NULL，不参与唯一约束
type Checkin struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64         `gorm:"not null;uniqueIndex:idx_checkins_auto_dedup,priority:1;index:idx_checkins_user_tag_date,priority:1" json:"user_id"`
	TagID          int64         `gorm:"not null;index:idx_checkins_user_tag_date,priority:2" json:"tag_id"`
	ScheduleID     *int64        `gorm:"uniqueIndex:idx_checkins_auto_dedup,priority:2" json:"schedule_id,omitempty"`
	Latitude       float64       `gorm:"not null" json:"latitude"`
	Longitude      float64       `gorm:"not null" json:"longitude"`
	DistanceMeters float64       `gorm:"not null" json:"distance_meters"`
	IsWithinRadius bool          `gorm:"not null" json:"is_within_radius"`
	Type           CheckinType   `gorm:"type:varchar(16);not null" json:"type"`
	Status         CheckinStatus `gorm:"type:varchar(16);not null" json:"status"`
	CheckinDate    string        `gorm:"type:varchar(10);not null;index:idx_checkins_user_tag_date,priority:3" json:"checkin_date"` // YYYY-MM-DD
	AutoDedupDay   *string       `gorm:"type:varchar(10);uniqueIndex:idx_checkins_auto_dedup,priority:3" json:"-"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (Checkin) TableName() string {
	return "checkins"
}

// CalendarDay 返回 t 在 loc 时区下的日期
func CalendarDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
