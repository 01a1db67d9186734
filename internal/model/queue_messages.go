package model

// CheckinCreatedEvent 打卡创建事件，发布到 checkin.events 供监控面板消费
type CheckinCreatedEvent struct {
	MessageID      string  `json:"message_id"` // 消息唯一ID，用于幂等性检查
	BatchID        string  `json:"batch_id,omitempty"`
	EventType      string  `json:"event_type"`
	CheckinID      int64   `json:"checkin_id"`
	UserID         int64   `json:"user_id"`
	TagID          int64   `json:"tag_id"`
	ScheduleID     *int64  `json:"schedule_id,omitempty"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	DistanceMeters float64 `json:"distance_meters"`
	IsWithinRadius bool    `json:"is_within_radius"`
	CheckinDate    string  `json:"checkin_date"`
	OccurredAt     string  `json:"occurred_at"`
}

// LocationPingMessage 设备网关上报的位置消息
type LocationPingMessage struct {
	MessageID  string   `json:"message_id"`
	UserID     int64    `json:"user_id"`
	TagID      *int64   `json:"tag_id,omitempty"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	RecordedAt string   `json:"recorded_at,omitempty"` // RFC3339，为空时取接收时间
}
