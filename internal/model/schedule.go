package model

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"GeoCheckin/pkg/errors"
)

// Schedule 打卡排班：按星期与当天时间窗激活，关联若干标签
type Schedule struct {
	BaseModel
	Name       string        `gorm:"type:varchar(128);not null" json:"name"`
	Tags       []Tag         `gorm:"many2many:schedule_tags;" json:"tags,omitempty"`
	DaysOfWeek pq.Int64Array `gorm:"type:integer[];not null" json:"days_of_week"` // 0 = 周日
	StartTime  string        `gorm:"type:varchar(8);not null" json:"start_time"`  // HH:MM 或 HH:MM:SS
	EndTime    string        `gorm:"type:varchar(8);not null" json:"end_time"`
	Timezone   string        `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	IsActive   bool          `gorm:"not null;index" json:"is_active"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// ScheduleTag 排班与标签的关联表
type ScheduleTag struct {
	ScheduleID int64 `gorm:"primaryKey"`
	TagID      int64 `gorm:"primaryKey;index"`
}

func (ScheduleTag) TableName() string {
	return "schedule_tags"
}

// BeforeSave 拒绝跨天窗口与未知时区
func (s *Schedule) BeforeSave(tx *gorm.DB) error {
	if _, _, err := s.WindowMinutes(); err != nil {
		return err
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week %d out of range: %w", d, errors.InvalidScheduleWindow)
		}
	}
	return nil
}

// Location 解析排班时区，空值视为 UTC
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s.Timezone, errors.InvalidScheduleWindow)
	}
	return loc, nil
}

// WindowMinutes 返回当天起止分钟数，start > end 视为非法
func (s *Schedule) WindowMinutes() (start, end int, err error) {
	start, err = ParseClockMinutes(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClockMinutes(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("window %s-%s crosses midnight: %w", s.StartTime, s.EndTime, errors.InvalidScheduleWindow)
	}
	return start, end, nil
}

// HasDay 判断星期是否在排班内
func (s *Schedule) HasDay(day time.Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == int64(day) {
			return true
		}
	}
	return false
}

// ParseClockMinutes 解析 "HH:MM" 或 "HH:MM:SS"，秒被忽略
func ParseClockMinutes(clock string) (int, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid clock %q: %w", clock, errors.InvalidScheduleWindow)
}
