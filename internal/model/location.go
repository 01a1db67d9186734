package model

import "time"

// LocationPing 设备上报的位置，只追加不修改
type LocationPing struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"not null;index:idx_location_pings_user_recorded,priority:1" json:"user_id"`
	TagID      *int64    `gorm:"index" json:"tag_id,omitempty"` // 上报时设备关联的标签
	Latitude   float64   `gorm:"not null" json:"latitude"`
	Longitude  float64   `gorm:"not null" json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `gorm:"not null;index:idx_location_pings_user_recorded,priority:2,sort:desc" json:"recorded_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (LocationPing) TableName() string {
	return "location_pings"
}
