package dto

import "time"

// ========== Checkin 相关 DTO ==========

// ManualCheckinRequest 手动打卡请求
type ManualCheckinRequest struct {
	UserID    int64    `json:"user_id" vd:"$>0"`
	TagID     int64    `json:"tag_id" vd:"$>0"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ManualCheckinResponse 手动打卡结果，范围外时同样返回距离供客户端提示
type ManualCheckinResponse struct {
	CheckedInAt    time.Time `json:"checked_in_at"`
	RedirectURL    string    `json:"redirect_url,omitempty"`
	Status         string    `json:"status"`
	CheckinID      int64     `json:"checkin_id"`
	ScheduleID     *int64    `json:"schedule_id,omitempty"`
	DistanceMeters float64   `json:"distance_meters"`
	RadiusMeters   float64   `json:"radius_meters"`
	IsWithinRadius bool      `json:"is_within_radius"`
}

// ScheduleRunResponse 手动触发单个排班的结果
type ScheduleRunResponse struct {
	BatchID           string `json:"batch_id"`
	ScheduleID        int64  `json:"schedule_id"`
	UsersProcessed    int    `json:"users_processed"`
	UsersWithinRadius int    `json:"users_within_radius"`
	UsersSkipped      int    `json:"users_skipped"`
	Errors            int    `json:"errors"`
}

// ========== Location 相关 DTO ==========

// LocationPingRequest 位置上报请求
type LocationPingRequest struct {
	UserID     int64      `json:"user_id" vd:"$>0"`
	TagID      *int64     `json:"tag_id,omitempty"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// LocationPingResponse 位置上报结果
type LocationPingResponse struct {
	RecordedAt time.Time `json:"recorded_at"`
	PingID     int64     `json:"ping_id"`
}
